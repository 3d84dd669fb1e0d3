package swi

import (
	"encoding/binary"
	"os"

	"rixrun/internal/guestmem"
)

// statSize is sizeof(struct rix_stat) from original_source/rix_os.h: 64
// bytes, packed field-by-field rather than via host struct layout.
const statSize = 64

// RixStat is the packed guest rix_stat layout (original_source/rix_os.h),
// synthesized from a host os.FileInfo since the host kernel's stat(2)
// layout has no fixed relationship to RISCiX's.
type RixStat struct {
	Dev     uint16
	Ino     uint32
	Mode    uint16
	Nlink   uint16
	Uid     uint16
	Gid     uint16
	Rdev    uint16
	Size    int32
	ATime   int32
	MTime   int32
	CTime   int32
	Blksize int32
	Blocks  int32
}

// fromHostStat synthesizes a RixStat from a host os.FileInfo's underlying
// syscall.Stat_t, per original_source/os.c's host_to_rix_stat. dev/rdev are
// always synthesized as 0x0101, matching spec.md §3; st_mode is passed
// through unchanged since S_IFMT occupies the same bits with the same
// values on both systems.
func fromHostStat(fi os.FileInfo) RixStat {
	st := hostStat(fi)
	return RixStat{
		Dev:     0x0101,
		Ino:     uint32(st.Ino),
		Mode:    uint16(st.Mode),
		Nlink:   uint16(st.Nlink),
		Uid:     uint16(st.Uid),
		Gid:     uint16(st.Gid),
		Rdev:    0x0101,
		Size:    int32(st.Size),
		ATime:   int32(st.Atim.Sec),
		MTime:   int32(st.Mtim.Sec),
		CTime:   int32(st.Ctim.Sec),
		Blksize: int32(st.Blksize),
		Blocks:  int32(st.Blocks),
	}
}

// Marshal writes s into mem at addr in the packed little-endian layout,
// including the spare/pad words original_source zero-fills implicitly.
func (s RixStat) Marshal(mem *guestmem.Memory, addr uint32) bool {
	var buf [statSize]byte
	le := binary.LittleEndian
	le.PutUint16(buf[0:], s.Dev)
	le.PutUint32(buf[4:], s.Ino)
	le.PutUint16(buf[8:], s.Mode)
	le.PutUint16(buf[10:], s.Nlink)
	le.PutUint16(buf[12:], s.Uid)
	le.PutUint16(buf[14:], s.Gid)
	le.PutUint16(buf[16:], s.Rdev)
	le.PutUint32(buf[20:], uint32(s.Size))
	le.PutUint32(buf[24:], uint32(s.ATime))
	le.PutUint32(buf[32:], uint32(s.MTime))
	le.PutUint32(buf[40:], uint32(s.CTime))
	le.PutUint32(buf[48:], uint32(s.Blksize))
	le.PutUint32(buf[52:], uint32(s.Blocks))
	return mem.WriteBytes(addr, buf[:])
}
