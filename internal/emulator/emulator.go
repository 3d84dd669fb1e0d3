// Package emulator implements the emulator aggregate (C8): the single
// struct that owns guest memory, CPU state, the loaded exec header/library
// chain, and the vfork/sbrk bookkeeping the original C implementation kept
// as process-globals (spec.md §9's "re-architect as fields of a single
// aggregate" design note). It drives the cooperative step/trap/dispatch
// loop, simplified from the teacher's emu/core.Core goroutine-per-CPU model
// down to single-threaded stepping since spec.md §5 rules out concurrency.
package emulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"rixrun/internal/armcpu"
	"rixrun/internal/fpe"
	"rixrun/internal/guestmem"
	"rixrun/internal/loader"
	"rixrun/internal/swi"
)

// ErrUnknownTrap is fatal: a Stepper reported a Trap value this aggregate
// does not know how to route, matching spec.md §7's "unknown vector" kind.
var ErrUnknownTrap = errors.New("emulator: unknown trap")

// Config carries the values internal/config.Config resolves into the
// aggregate's construction.
type Config struct {
	Root    string
	Verbose int
}

// Emulator is the aggregate C8 describes.
type Emulator struct {
	Memory *guestmem.Memory
	CPU    *armcpu.State

	Header loader.ExecHeader
	Libs   loader.LibChain

	dispatcher *swi.Dispatcher
	swiState   *swi.State

	Log *slog.Logger
}

// New constructs an Emulator with a fresh 32 MiB guest address space (abort
// window disabled: it exists for internal/guestmem's own tests, not for
// real loads, since the default documented window would overlap the
// library-data/stack region) and installs the FPE.
func New(cfg Config, log *slog.Logger) (*Emulator, error) {
	mem := guestmem.New(0, 0)
	cpu := armcpu.New()
	cpu.Verbose = cfg.Verbose

	if err := fpe.Install(mem, cpu); err != nil {
		return nil, fmt.Errorf("emulator: installing FPE: %w", err)
	}

	state := &swi.State{}
	e := &Emulator{
		Memory:     mem,
		CPU:        cpu,
		swiState:   state,
		dispatcher: swi.New(mem, cpu, state, log),
		Log:        log,
	}
	return e, nil
}

// Load resolves path's shared-library chain and sets the CPU's entry PC and
// stack pointer, driving internal/loader.
func (e *Emulator) Load(root, path string, argv, envp []string) error {
	l := loader.New(root, e.Memory)
	hdr, libs, err := l.Load(e.CPU, path, argv, envp)
	if err != nil {
		return err
	}
	e.Header = hdr
	e.Libs = libs
	return nil
}

// Run drives the cooperative step/trap loop: cpu.Step executes one guest
// instruction and reports a Trap. TrapSWI is routed to the C6 dispatcher;
// TrapUndefined falls into the FPE installed at construction (the vector
// already points there, so Run just lets execution continue); any other
// trap is fatal, matching spec.md §7. Guest exit unwinds via
// swi.ExitError, which Run treats as a normal (non-error) return.
func (e *Emulator) Run(ctx context.Context, cpu armcpu.Stepper) (exitCode int, err error) {
	for {
		select {
		case <-ctx.Done():
			return 1, ctx.Err()
		default:
		}

		trap, swiNumber, err := cpu.Step(ctx)
		if err != nil {
			return 1, fmt.Errorf("emulator: step failed: %w", err)
		}

		switch trap {
		case armcpu.TrapNone, armcpu.TrapUndefined:
			// TrapUndefined means the guest hit vector 4, which the FPE
			// installer already patched to branch into the FPE blob; there
			// is nothing further for the aggregate to do.
		case armcpu.TrapSWI:
			if err := e.dispatcher.Dispatch(swiNumber); err != nil {
				var exit *swi.ExitError
				if errors.As(err, &exit) {
					return exit.Status, nil
				}
				return 1, err
			}
		case armcpu.TrapPrefetchAbort, armcpu.TrapDataAbort:
			return 1, fmt.Errorf("emulator: unhandled memory abort at PC %#x", e.CPU.PC())
		default:
			return 1, fmt.Errorf("%w: %v", ErrUnknownTrap, trap)
		}
	}
}
