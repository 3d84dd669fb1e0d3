package fpe

import (
	"testing"

	"rixrun/internal/armcpu"
	"rixrun/internal/guestmem"
)

func TestInstall(t *testing.T) {
	mem := guestmem.New(0, 0)
	cpu := armcpu.New()

	if err := Install(mem, cpu); err != nil {
		t.Fatalf("Install: %v", err)
	}

	gotBlob, ok := mem.ReadBytes(Start, uint32(len(code)))
	if !ok || string(gotBlob) != string(code) {
		t.Fatalf("blob not copied to %#x", Start)
	}

	wantEntry := Start + placeholderEntryOffset
	wantVector := branchEncoding(wantEntry)
	if got := mem.LoadWordN(4); got != wantVector {
		t.Fatalf("vector 4 = %#x, want %#x", got, wantVector)
	}

	if got := cpu.GetReg(armcpu.ModeSVC26, 13); got != Start-4 {
		t.Fatalf("SVC26 R13 = %#x, want %#x", got, Start-4)
	}
	if cpu.Mode != armcpu.ModeUser26 {
		t.Fatalf("Mode = %v, want ModeUser26", cpu.Mode)
	}
}

func TestBranchEncoding(t *testing.T) {
	// The branch placed at the undefined-instruction vector (address 4) to
	// entry 0x2400 is 0xEA000000 + (0x2400 >> 2) - 3: the -3 word adjustment
	// covers the vector's own address plus the 8-byte fetch/decode offset.
	const entry = 0x2400
	got := branchEncoding(entry)
	want := uint32(0xEA000000 + (uint32(entry) >> 2) - 3)
	if got != want {
		t.Fatalf("branchEncoding(%#x) = %#x, want %#x", entry, got, want)
	}
}
