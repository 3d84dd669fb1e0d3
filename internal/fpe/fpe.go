// Package fpe installs the floating-point emulator (C4): it blits a
// pre-assembled code blob into low guest memory and patches the
// undefined-instruction vector so coprocessor instructions trap into it.
// Grounded on original_source/os.c's os_init, itself adapted from GDB's ARM
// simulator armos.c (per that file's own comment).
package fpe

import (
	"errors"
	"fmt"

	"rixrun/internal/armcpu"
	"rixrun/internal/guestmem"
)

const (
	// Start is the guest address the FPE blob is copied to.
	Start uint32 = 0x2000

	// SentinelWord terminates the blob; the word immediately before it is
	// the FPE's entry point as an absolute guest address.
	SentinelWord uint32 = 0xFFFFFFFF

	// undefinedVector is the guest address of the undefined-instruction
	// exception vector.
	undefinedVector uint32 = 4
)

var ErrNoSentinel = errors.New("fpe: blob has no sentinel word")

// branchEncoding returns the ARM branch-always instruction that jumps from
// the undefined-instruction vector (address 4) to entry, including the
// pipeline's -8-byte fetch/decode offset (the "-3" word-count adjustment).
func branchEncoding(entry uint32) uint32 {
	return 0xEA000000 + (entry >> 2) - 3
}

// Install copies the FPE blob to Start, locates its entry address via the
// trailing SentinelWord, patches the undefined-instruction vector with a
// branch to it, sets the SVC26 stack pointer below the blob, and switches
// cpu to USER26 mode for the guest program about to run.
func Install(mem *guestmem.Memory, cpu *armcpu.State) error {
	if !mem.WriteBytes(Start, code) {
		return fmt.Errorf("fpe: blob of %d bytes does not fit at %#x", len(code), Start)
	}

	entry, ok := findEntry(mem)
	if !ok {
		return ErrNoSentinel
	}

	mem.StoreWordN(undefinedVector, branchEncoding(entry))

	cpu.SetReg(armcpu.ModeSVC26, 13, Start-4)
	cpu.Mode = armcpu.ModeUser26

	return nil
}

// findEntry scans backward from the end of the copied blob for
// SentinelWord and returns the word immediately preceding it.
func findEntry(mem *guestmem.Memory) (uint32, bool) {
	end := Start + uint32(len(code))
	for addr := end; addr > Start; addr -= 4 {
		if mem.LoadWordN(addr-4) == SentinelWord {
			if addr-4 < Start+4 {
				return 0, false
			}
			return mem.LoadWordN(addr - 8), true
		}
	}
	return 0, false
}
