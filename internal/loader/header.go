// Package loader implements the ZMAGIC loader (C5): RISCiX a.out header
// parsing, shared-library chain resolution, and guest address-space/stack
// layout, grounded on original_source/zload.c's load_zmagic_binary.
package loader

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// RISCiX a.out magic numbers (original_source/zload.h).
const (
	MagicZMAGIC    uint32 = 0o413
	mfUsesSL       uint32 = 0o2000
	mfIsSL         uint32 = 0o4000
	MagicSPZMAGIC  uint32 = mfUsesSL | MagicZMAGIC
	MagicSLZMAGIC  uint32 = mfIsSL | MagicZMAGIC
	MagicSLPZMAGIC uint32 = mfUsesSL | MagicSLZMAGIC
)

// Guest address-space layout constants (original_source/zload.h).
const (
	RXMapStartAddr uint32 = 0x8000
	RXZMTextOffs   uint32 = 0x8000
	RXMapDataLen   uint32 = 0x100000
	RXMapDataAddr  uint32 = 0x01800000 - RXMapDataLen

	// MaxSharedLibs bounds the library chain. The walk fails once it has
	// recorded MaxSharedLibs entries and still has a next hop.
	MaxSharedLibs = 4
)

var (
	ErrBadMagic    = errors.New("loader: bad a.out magic")
	ErrHeaderShort = errors.New("loader: header short read")
	ErrTooManyLibs = errors.New("loader: too many shared libraries")
)

// headerSize is sizeof(struct exec_hdr) in original_source/zload.h: 8 LE
// uint32s, a rix_version (4 + 32 bytes), 6 squeeze-bookkeeping uint32s, two
// rix_time_t (int32) timestamps, and a 60-byte shared-library path.
const headerSize = 4*8 + 4 + 32 + 4*6 + 4*2 + 60

// ExecHeader mirrors struct exec_hdr field-by-field. Parsed with explicit
// little-endian offsets rather than a host struct overlay, per spec.md §9's
// note that guest records are serialized field-by-field.
type ExecHeader struct {
	Magic      uint32
	TextSize   uint32
	DataSize   uint32
	BSSSize    uint32
	SymSize    uint32
	Entry      uint32 // a_entry for an executable; a_sldatabase for a library.
	TRelocSize uint32
	DRelocSize uint32

	VersionIDs uint32
	Version    [32]byte

	Sq4Items uint32
	Sq3Items uint32
	Sq4Size  uint32
	Sq3Size  uint32
	Sq4Last  uint32
	Sq3Last  uint32

	Timestamp      int32
	ShlibTimestamp int32

	ShlibName [60]byte
}

// ParseHeader decodes an ExecHeader from the first headerSize bytes of data.
func ParseHeader(data []byte) (ExecHeader, error) {
	if len(data) < headerSize {
		return ExecHeader{}, fmt.Errorf("%w: got %d bytes, want %d", ErrHeaderShort, len(data), headerSize)
	}
	le := binary.LittleEndian
	var h ExecHeader
	h.Magic = le.Uint32(data[0:])
	h.TextSize = le.Uint32(data[4:])
	h.DataSize = le.Uint32(data[8:])
	h.BSSSize = le.Uint32(data[12:])
	h.SymSize = le.Uint32(data[16:])
	h.Entry = le.Uint32(data[20:])
	h.TRelocSize = le.Uint32(data[24:])
	h.DRelocSize = le.Uint32(data[28:])
	h.VersionIDs = le.Uint32(data[32:])
	copy(h.Version[:], data[36:68])
	h.Sq4Items = le.Uint32(data[68:])
	h.Sq3Items = le.Uint32(data[72:])
	h.Sq4Size = le.Uint32(data[76:])
	h.Sq3Size = le.Uint32(data[80:])
	h.Sq4Last = le.Uint32(data[84:])
	h.Sq3Last = le.Uint32(data[88:])
	h.Timestamp = int32(le.Uint32(data[92:]))
	h.ShlibTimestamp = int32(le.Uint32(data[96:]))
	copy(h.ShlibName[:], data[100:160])
	return h, nil
}

// ShlibNameString returns the NUL-terminated shared-library path a.k.a
// a_shlibname, trimmed at the first NUL byte.
func (h ExecHeader) ShlibNameString() string {
	n := 0
	for n < len(h.ShlibName) && h.ShlibName[n] != 0 {
		n++
	}
	return string(h.ShlibName[:n])
}

// IsLibrary reports whether magic identifies a shared library (SLZMAGIC or
// SLPZMAGIC), as opposed to a top-level executable (SPZMAGIC).
func IsLibrary(magic uint32) bool {
	return magic == MagicSLZMAGIC || magic == MagicSLPZMAGIC
}

// LibEntry is one hop of the resolved shared-library chain.
type LibEntry struct {
	Header    ExecHeader
	GuestPath string // path as named in a_shlibname, relative to RIX_ROOT
	HostPath  string // resolved host filesystem path actually opened
}

// LibChain is the bounded, ordered (dependency-first) library chain: index 0
// is the object the top-level binary directly depends on, and the last
// entry is the primordial library (SLZMAGIC).
type LibChain []LibEntry
