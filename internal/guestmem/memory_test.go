package guestmem

import "testing"

func TestBoundsRejectsOutOfRangeStore(t *testing.T) {
	m := New(0, 0)
	addr := Size - 2 // a word store here would spill past Size.

	if ok := m.StoreWordN(addr, 0xdeadbeef); ok {
		t.Fatalf("StoreWordN at %#x should have been rejected", addr)
	}

	b, ok := m.ReadBytes(Size-16, 16)
	if !ok {
		t.Fatalf("ReadBytes near the end of memory should succeed")
	}
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d of the last 16 below Size was touched: %#x", i, v)
		}
	}
}

func TestWordRoundTrip(t *testing.T) {
	m := New(0, 0)
	const addr = 0x1000
	const val = 0x11223344

	if !m.StoreWordN(addr, val) {
		t.Fatalf("StoreWordN failed")
	}
	if got := m.LoadWordN(addr); got != val {
		t.Fatalf("LoadWordN = %#x, want %#x", got, val)
	}
}

func TestHalfwordPreservesSurroundingBytes(t *testing.T) {
	m := New(0, 0)
	const addr = 0x2000

	m.StoreWordN(addr, 0xAABBCCDD)
	if !m.StoreHalfword(addr, 0x1234) {
		t.Fatalf("StoreHalfword failed")
	}
	got := m.LoadWordN(addr)
	// Low halfword replaced, high halfword (0xAABB) preserved.
	if want := uint32(0xAABB1234); got != want {
		t.Fatalf("word after halfword store = %#x, want %#x", got, want)
	}
	if h := m.LoadHalfword(addr); h != 0x1234 {
		t.Fatalf("LoadHalfword = %#x, want 0x1234", h)
	}
}

func TestByteRoundTrip(t *testing.T) {
	m := New(0, 0)
	const addr = 0x3000

	m.StoreWordN(addr, 0x11223344)
	if !m.StoreByte(addr+1, 0xFF) {
		t.Fatalf("StoreByte failed")
	}
	if got := m.LoadWordN(addr); got != 0x1122FF44 {
		t.Fatalf("word after byte store = %#x, want 0x1122ff44", got)
	}
	if b := m.LoadByte(addr + 1); b != 0xFF {
		t.Fatalf("LoadByte = %#x, want 0xff", b)
	}
}

func TestAbortWindow(t *testing.T) {
	const low, high = 8 * 1024 * 1024, 26 * 1024 * 1024
	m := New(low, high)

	if w := m.ReloadInstr(low, 4); w != AbortWord {
		t.Fatalf("ReloadInstr in window returned %#x, want AbortWord", w)
	}
	if !m.PrefetchAbort() {
		t.Fatalf("expected PrefetchAbort set for fetch inside window")
	}

	m.ReloadInstr(0x1000, 4)
	if m.PrefetchAbort() {
		t.Fatalf("PrefetchAbort should clear on a fetch outside the window")
	}

	m.LoadWordN(low)
	if !m.DataAbort() {
		t.Fatalf("expected DataAbort set for load inside window")
	}
	m.LoadWordN(0x1000)
	if m.DataAbort() {
		t.Fatalf("DataAbort should clear on a load outside the window")
	}

	if !m.StoreWordN(0x1000, 1) {
		t.Fatalf("store outside the window should succeed")
	}
	if ok := m.StoreWordN(low, 1); ok {
		t.Fatalf("store inside the window should be rejected")
	}

	if ok := m.StoreHalfword(low, 0x1234); ok {
		t.Fatalf("halfword store inside the window should be rejected")
	}
	if !m.DataAbort() {
		t.Fatalf("expected DataAbort set for halfword store inside window")
	}
	if !m.StoreHalfword(0x1000, 0x1234) {
		t.Fatalf("halfword store outside the window should succeed")
	}
	if m.DataAbort() {
		t.Fatalf("DataAbort should clear on a halfword store outside the window")
	}

	if ok := m.StoreByte(low, 0xFF); ok {
		t.Fatalf("byte store inside the window should be rejected")
	}
	if !m.DataAbort() {
		t.Fatalf("expected DataAbort set for byte store inside window")
	}
	if !m.StoreByte(0x1000, 0xFF) {
		t.Fatalf("byte store outside the window should succeed")
	}
	if m.DataAbort() {
		t.Fatalf("DataAbort should clear on a byte store outside the window")
	}
}

func TestSwapWord(t *testing.T) {
	m := New(0, 0)
	const addr = 0x4000

	m.StoreWordN(addr, 0xCAFEBABE)
	old := m.SwapWord(addr, 0x1)
	if old != 0xCAFEBABE {
		t.Fatalf("SwapWord returned %#x, want 0xcafebabe", old)
	}
	if got := m.LoadWordN(addr); got != 1 {
		t.Fatalf("SwapWord did not store new value, got %#x", got)
	}
}

func TestCStringRoundTrip(t *testing.T) {
	m := New(0, 0)
	next, ok := m.WriteCString(0x5000, "hello")
	if !ok {
		t.Fatalf("WriteCString failed")
	}
	if next != 0x5000+6 {
		t.Fatalf("next = %#x, want %#x", next, 0x5000+6)
	}
	s, ok := m.ReadCString(0x5000)
	if !ok || s != "hello" {
		t.Fatalf("ReadCString = %q, %v, want \"hello\", true", s, ok)
	}
}
