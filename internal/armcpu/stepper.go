package armcpu

import "context"

// Trap identifies why Step returned control to the emulator aggregate
// instead of continuing to the next instruction.
type Trap int

const (
	// TrapNone means the instruction completed with no exception.
	TrapNone Trap = iota
	// TrapSWI means the instruction was a software interrupt; Step's
	// swiNumber result holds the 24-bit immediate.
	TrapSWI
	// TrapUndefined means an undefined instruction was hit (vector 4);
	// this is how control reaches the FPE installed by the fpe package.
	TrapUndefined
	// TrapPrefetchAbort/TrapDataAbort mirror the guestmem abort surface.
	TrapPrefetchAbort
	TrapDataAbort
)

// Stepper is the interface any conformant 26-bit ARMv2/v3 interpreter with
// floating-point-emulation support must implement to drive a guest through
// this emulator. Decoding and executing ARM instructions is explicitly out
// of scope for this repository (spec.md §1): Stepper is the seam.
type Stepper interface {
	// Step executes exactly one guest instruction against the State and
	// Memory it was constructed with, returning the trap (if any) that
	// interrupted normal execution and the 24-bit SWI immediate when
	// Trap == TrapSWI.
	Step(ctx context.Context) (trap Trap, swiNumber uint32, err error)
}
