package loader

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"rixrun/internal/armcpu"
	"rixrun/internal/guestmem"
)

// writeZMFile builds a synthetic ZMAGIC object on disk: a headerSize header
// followed by text bytes at RXZMTextOffs then data bytes immediately after.
func writeZMFile(t *testing.T, dir, name string, magic, entry uint32, text, data []byte, shlibname string) string {
	t.Helper()

	hdr := make([]byte, headerSize)
	le := binary.LittleEndian
	le.PutUint32(hdr[0:], magic)
	le.PutUint32(hdr[4:], uint32(len(text)))
	le.PutUint32(hdr[8:], uint32(len(data)))
	le.PutUint32(hdr[20:], entry)
	copy(hdr[100:160], shlibname)

	buf := make([]byte, RXZMTextOffs)
	copy(buf, hdr)
	buf = append(buf, text...)
	buf = append(buf, data...)

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

// TestLoaderLayout exercises testable property 4: text segments stack in
// reverse-dependency order, library data lands at its a_sldatabase address,
// and PC is set to the binary's a_entry.
func TestLoaderLayout(t *testing.T) {
	dir := t.TempDir()

	const libDataAddr = 0x01780000
	libText := make([]byte, 0x100)
	libData := []byte{1, 2, 3, 4}
	writeZMFile(t, dir, "libc.so", MagicSLZMAGIC, libDataAddr, libText, libData, "")

	const binEntry = 0x9000
	binText := make([]byte, 0x80)
	writeZMFile(t, dir, "prog", MagicSPZMAGIC, binEntry, binText, nil, "libc.so")

	mem := guestmem.New(0, 0)
	cpu := armcpu.New()
	l := New(dir, mem)

	_, libs, err := l.Load(cpu, filepath.Join(dir, "prog"), nil, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(libs) != 1 {
		t.Fatalf("len(libs) = %d, want 1", len(libs))
	}

	libTextStart := uint32(RXMapStartAddr)
	binTextStart := libTextStart + uint32(len(libText))

	gotLibText, ok := mem.ReadBytes(libTextStart, uint32(len(libText)))
	if !ok || string(gotLibText) != string(libText) {
		t.Fatalf("library text not at %#x", libTextStart)
	}
	gotBinText, ok := mem.ReadBytes(binTextStart, uint32(len(binText)))
	if !ok || string(gotBinText) != string(binText) {
		t.Fatalf("binary text not at %#x", binTextStart)
	}

	gotLibData, ok := mem.ReadBytes(libDataAddr, uint32(len(libData)))
	if !ok || string(gotLibData) != string(libData) {
		t.Fatalf("library data not at %#x", uint32(libDataAddr))
	}

	if cpu.PC() != binEntry {
		t.Fatalf("PC = %#x, want %#x", cpu.PC(), uint32(binEntry))
	}
}

// TestLoaderStack exercises testable property 5: argc at R13, R13+4 pointing
// at argv[0]'s string, and the string table holding argv then envp in order.
func TestLoaderStack(t *testing.T) {
	dir := t.TempDir()

	writeZMFile(t, dir, "libc.so", MagicSLZMAGIC, 0x01780000, make([]byte, 0x10), nil, "")
	writeZMFile(t, dir, "prog", MagicSPZMAGIC, 0x9000, make([]byte, 0x10), nil, "libc.so")

	mem := guestmem.New(0, 0)
	cpu := armcpu.New()
	l := New(dir, mem)

	argv := []string{"foo", "bar"}
	envp := []string{"A=1"}
	_, _, err := l.Load(cpu, filepath.Join(dir, "prog"), argv, envp)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	sp := cpu.SP()
	if got := mem.LoadWordN(sp); got != uint32(len(argv)) {
		t.Fatalf("argc at R13 = %d, want %d", got, len(argv))
	}
	argv0Ptr := mem.LoadWordN(sp + 4)
	s, ok := mem.ReadCString(argv0Ptr)
	if !ok || s != "foo" {
		t.Fatalf("argv[0] = %q, %v, want \"foo\"", s, ok)
	}
	argv1Ptr := mem.LoadWordN(sp + 8)
	s, ok = mem.ReadCString(argv1Ptr)
	if !ok || s != "bar" {
		t.Fatalf("argv[1] = %q, %v, want \"bar\"", s, ok)
	}

	envNulAt := sp + 4 + 4*uint32(len(argv))
	if got := mem.LoadWordN(envNulAt); got != 0 {
		t.Fatalf("argv NUL terminator = %#x, want 0", got)
	}
	envp0Ptr := mem.LoadWordN(envNulAt + 4)
	s, ok = mem.ReadCString(envp0Ptr)
	if !ok || s != "A=1" {
		t.Fatalf("envp[0] = %q, %v, want \"A=1\"", s, ok)
	}
}

// TestLoaderBadMagic exercises E5: a plain ZMAGIC (no shared-library bit)
// binary is rejected.
func TestLoaderBadMagic(t *testing.T) {
	dir := t.TempDir()
	writeZMFile(t, dir, "prog", MagicZMAGIC, 0x9000, make([]byte, 0x10), nil, "")

	mem := guestmem.New(0, 0)
	cpu := armcpu.New()
	l := New(dir, mem)

	_, _, err := l.Load(cpu, filepath.Join(dir, "prog"), nil, nil)
	if err == nil {
		t.Fatalf("Load succeeded, want ErrBadMagic")
	}
}

// TestLoaderTooManyLibs exercises E6: a dependency chain longer than
// MaxSharedLibs fails to resolve.
func TestLoaderTooManyLibs(t *testing.T) {
	dir := t.TempDir()

	// Chain: prog -> lib0 -> lib1 -> lib2 -> lib3 -> lib4 (never reaches an
	// SLZMAGIC terminator within MaxSharedLibs hops).
	for i := 0; i < 5; i++ {
		next := ""
		if i < 4 {
			next = libName(i + 1)
		}
		writeZMFile(t, dir, libName(i), MagicSLPZMAGIC, 0x01780000, make([]byte, 0x10), nil, next)
	}
	writeZMFile(t, dir, "prog", MagicSPZMAGIC, 0x9000, make([]byte, 0x10), nil, libName(0))

	mem := guestmem.New(0, 0)
	cpu := armcpu.New()
	l := New(dir, mem)

	_, _, err := l.Load(cpu, filepath.Join(dir, "prog"), nil, nil)
	if err == nil {
		t.Fatalf("Load succeeded, want ErrTooManyLibs")
	}
}

func libName(i int) string {
	return "lib" + string(rune('0'+i)) + ".so"
}
