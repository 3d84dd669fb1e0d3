package loader

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"rixrun/internal/armcpu"
	"rixrun/internal/guestmem"
)

// Loader resolves a RISCiX ZMAGIC executable and its shared-library chain
// into a guestmem.Memory and sets the entry PC/SP on an armcpu.State,
// mirroring original_source/zload.c's load_zmagic_binary.
type Loader struct {
	// Root stands in for the guest's root filesystem; shared-library paths
	// are resolved relative to it. Empty means "resolve relative to cwd".
	Root string

	mem *guestmem.Memory
}

// New returns a Loader that places segments into mem.
func New(root string, mem *guestmem.Memory) *Loader {
	return &Loader{Root: root, mem: mem}
}

func (l *Loader) hostPath(guestPath string, relative bool) string {
	if !relative {
		return guestPath
	}
	return filepath.Join(l.Root, guestPath)
}

func (l *Loader) readHeader(guestPath string, relative bool) (ExecHeader, string, error) {
	host := l.hostPath(guestPath, relative)
	f, err := os.Open(host)
	if err != nil {
		return ExecHeader{}, host, err
	}
	defer f.Close()

	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return ExecHeader{}, host, fmt.Errorf("%w: %v", ErrHeaderShort, err)
	}
	h, err := ParseHeader(buf)
	return h, host, err
}

// readInto pread(2)s length bytes from f at fileOffset into guest memory at
// addr, mirroring original_source/zload.c's target_pread.
func (l *Loader) readInto(f *os.File, addr, length, fileOffset uint32) error {
	if length == 0 {
		return nil
	}
	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, int64(fileOffset)); err != nil {
		return err
	}
	if !l.mem.WriteBytes(addr, buf) {
		return fmt.Errorf("loader: write of %d bytes at %#x out of range", length, addr)
	}
	return nil
}

// loadZMFile loads one object's text (and, for the primary binary, its
// data) at *tsegBase, advancing the high-water-mark, and for a library
// copies its data segment to its a_sldatabase address instead. It returns
// hdr.Entry (the object's a_entry, or a_sldatabase for a library), matching
// original_source/zload.c's load_zm_file.
func (l *Loader) loadZMFile(f *os.File, hdr ExecHeader, tsegBase *uint32) (uint32, error) {
	switch hdr.Magic {
	case MagicSPZMAGIC, MagicSLZMAGIC, MagicSLPZMAGIC:
	default:
		return 0, fmt.Errorf("%w: %#o", ErrBadMagic, hdr.Magic)
	}

	textPos := *tsegBase
	if err := l.readInto(f, textPos, hdr.TextSize, RXZMTextOffs); err != nil {
		return 0, fmt.Errorf("loader: reading text segment: %w", err)
	}
	*tsegBase += hdr.TextSize

	if hdr.DataSize > 0 {
		fileOffset := RXZMTextOffs + hdr.TextSize
		if IsLibrary(hdr.Magic) {
			if err := l.readInto(f, hdr.Entry, hdr.DataSize, fileOffset); err != nil {
				return 0, fmt.Errorf("loader: reading library data segment: %w", err)
			}
		} else {
			dataPos := *tsegBase
			if err := l.readInto(f, dataPos, hdr.DataSize, fileOffset); err != nil {
				return 0, fmt.Errorf("loader: reading data segment: %w", err)
			}
			*tsegBase += hdr.DataSize
		}
	}

	return hdr.Entry, nil
}

// copyStrings writes strs contiguously downward from p (last string ends at
// p, first string ends up at the lowest address) and returns the new,
// lowest address used. Mirrors original_source/zload.c's copy_strings.
func (l *Loader) copyStrings(p uint32, strs []string) uint32 {
	for i := len(strs) - 1; i >= 0; i-- {
		data := append([]byte(strs[i]), 0)
		p -= uint32(len(data))
		l.mem.WriteBytes(p, data)
	}
	return p
}

func (l *Loader) putWord(addr, val uint32) {
	l.mem.StoreWordN(addr, val)
}

// buildArgPointers lays out the argc/argv[]/envp[] pointer tables below sp,
// with stringp (the lowest string address, as returned by copyStrings)
// walked forward to recover each string's address. Mirrors
// original_source/zload.c's loader_build_argptr.
func (l *Loader) buildArgPointers(argc, envc int, sp, stringp uint32) uint32 {
	sp -= 4
	l.putWord(sp, 0) // envp NUL terminator
	sp -= uint32(envc) * 4
	envp := sp

	sp -= 4
	l.putWord(sp, 0) // argv NUL terminator
	sp -= uint32(argc) * 4
	argv := sp

	sp -= 4
	l.putWord(sp, uint32(argc))

	for i := 0; i < argc; i++ {
		l.putWord(argv, stringp)
		argv += 4
		s, _ := l.mem.ReadCString(stringp)
		stringp += uint32(len(s)) + 1
	}
	for i := 0; i < envc; i++ {
		l.putWord(envp, stringp)
		envp += 4
		s, _ := l.mem.ReadCString(stringp)
		stringp += uint32(len(s)) + 1
	}

	return sp
}

// resolveChain walks the shared-library chain starting at hdr's
// a_shlibname, recording each hop. The chain must terminate at an SLZMAGIC
// (primordial) library within MaxSharedLibs entries.
func (l *Loader) resolveChain(hdr ExecHeader) (LibChain, error) {
	var libs LibChain

	next := hdr.ShlibNameString()
	for next != "" {
		if len(libs) == MaxSharedLibs {
			return nil, ErrTooManyLibs
		}

		libHdr, host, err := l.readHeader(next, true)
		if err != nil {
			return nil, fmt.Errorf("loader: opening library %q: %w", next, err)
		}
		libs = append(libs, LibEntry{Header: libHdr, GuestPath: next, HostPath: host})

		switch libHdr.Magic {
		case MagicSLZMAGIC:
			next = ""
		case MagicSLPZMAGIC:
			next = libHdr.ShlibNameString()
		default:
			return nil, fmt.Errorf("%w: %#o in library %q", ErrBadMagic, libHdr.Magic, next)
		}
	}
	return libs, nil
}

// Load resolves path's shared-library chain, lays out text/data segments
// and the initial stack, and sets cpu's PC and current-mode R13 to the
// guest entry point. argv/envp are host strings copied verbatim onto the
// guest stack.
func (l *Loader) Load(cpu *armcpu.State, path string, argv, envp []string) (ExecHeader, LibChain, error) {
	hdr, _, err := l.readHeader(path, false)
	if err != nil {
		return ExecHeader{}, nil, fmt.Errorf("loader: opening %q: %w", path, err)
	}
	if hdr.Magic != MagicSPZMAGIC {
		return ExecHeader{}, nil, fmt.Errorf("%w: %#o", ErrBadMagic, hdr.Magic)
	}

	libs, err := l.resolveChain(hdr)
	if err != nil {
		return ExecHeader{}, nil, err
	}

	sp := RXMapDataAddr + RXMapDataLen
	tsegBase := RXMapStartAddr

	for i := len(libs) - 1; i >= 0; i-- {
		f, err := os.Open(libs[i].HostPath)
		if err != nil {
			return ExecHeader{}, nil, fmt.Errorf("loader: opening library %q: %w", libs[i].HostPath, err)
		}
		dataAddr, err := l.loadZMFile(f, libs[i].Header, &tsegBase)
		f.Close()
		if err != nil {
			return ExecHeader{}, nil, err
		}
		if sp >= dataAddr {
			sp = dataAddr - 4
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return ExecHeader{}, nil, fmt.Errorf("loader: opening %q: %w", path, err)
	}
	entryAddr, err := l.loadZMFile(f, hdr, &tsegBase)
	f.Close()
	if err != nil {
		return ExecHeader{}, nil, err
	}

	envStart := l.copyStrings(sp, envp)
	argStart := l.copyStrings(envStart, argv)
	sp = argStart &^ 3
	sp = l.buildArgPointers(len(argv), len(envp), sp, argStart)

	cpu.SetPC(entryAddr)
	cpu.SetSP(sp)

	return hdr, libs, nil
}
