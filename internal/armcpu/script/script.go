// Package script provides a Stepper test double that replays a fixed
// sequence of traps instead of decoding real ARM instructions. It exists so
// the emulator/loader/SWI packages can be exercised end-to-end (the
// emulator package's E1 test) without pulling in a real ARMv2/v3 interpreter, which
// spec.md §1 places out of this repository's scope.
package script

import (
	"context"
	"fmt"

	"rixrun/internal/armcpu"
)

// Step is one scripted instruction: Before runs (to let the test poke
// registers that a real decode would have produced), then Trap/SWI are
// returned to the caller.
type Step struct {
	Before func(*armcpu.State)
	Trap   armcpu.Trap
	SWI    uint32
}

// Stepper replays Steps in order; once exhausted, Step returns an error
// rather than looping, since a real decoder would just keep fetching.
type Stepper struct {
	state *armcpu.State
	steps []Step
	pos   int
}

// New returns a Stepper bound to state that will replay steps in order.
func New(state *armcpu.State, steps []Step) *Stepper {
	return &Stepper{state: state, steps: steps}
}

func (s *Stepper) Step(ctx context.Context) (armcpu.Trap, uint32, error) {
	if s.pos >= len(s.steps) {
		return armcpu.TrapNone, 0, fmt.Errorf("script: ran out of steps at %d", s.pos)
	}
	step := s.steps[s.pos]
	s.pos++
	if step.Before != nil {
		step.Before(s.state)
	}
	return step.Trap, step.SWI, nil
}
