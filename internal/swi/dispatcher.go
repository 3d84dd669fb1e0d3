// Package swi implements the SWI dispatcher (C6): it decodes a guest
// software-interrupt number, marshals register arguments between the
// 32-bit little-endian guest ABI and the host kernel interface, and writes
// back a result/errno with the CPSR carry-flag convention. Grounded on
// original_source/os.c's rix_sc_* handlers and ARMul_OSHandleSWI dispatch.
package swi

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"
	"time"

	"rixrun/internal/armcpu"
	"rixrun/internal/guestmem"
)

// ErrUnhandledSWI is returned for any SWI number the table has no handler
// for, matching spec.md §7's "unhandled-SWI: fatal" error kind.
var ErrUnhandledSWI = errors.New("swi: unhandled SWI number")

// ExitError unwinds Dispatch/Run when the guest issues the exit SWI.
type ExitError struct{ Status int }

func (e *ExitError) Error() string { return fmt.Sprintf("swi: guest called exit(%d)", e.Status) }

// State holds the mutable fields the dispatcher shares with the rest of the
// emulator aggregate (sbrk high-water-mark, the vfork CPU snapshot and its
// pending exit status). It is a field of internal/emulator.Emulator, not a
// package global, per spec.md §9's "re-architect as fields of a single
// aggregate" note.
type State struct {
	Sbrk        uint32
	VforkBackup *armcpu.State
	VforkStatus int
}

// Dispatcher routes SWI numbers to their handlers.
type Dispatcher struct {
	Mem    *guestmem.Memory
	CPU    *armcpu.State
	State  *State
	Log    *slog.Logger
	warned map[int]bool
}

// New returns a Dispatcher operating against mem/cpu/state, logging via log
// (which may be nil to discard trace output).
func New(mem *guestmem.Memory, cpu *armcpu.State, state *State, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{Mem: mem, CPU: cpu, State: state, Log: log, warned: map[int]bool{}}
}

type handlerFunc func(d *Dispatcher, a0, a1, a2, a3 uint32) error

var handlers = map[uint32]handlerFunc{
	1:  (*Dispatcher).scExit,
	3:  (*Dispatcher).scRead,
	4:  (*Dispatcher).scWrite,
	6:  (*Dispatcher).scClose,
	8:  (*Dispatcher).scCreat,
	9:  (*Dispatcher).scLink,
	10: (*Dispatcher).scUnlink,
	11: (*Dispatcher).scWaitpid,
	15: scNOP, 16: scNOP, 54: scNOP, 60: scNOP,
	108: scNOP, 109: scNOP, 110: scNOP, 111: scNOP, 112: scNOP,
	17:  (*Dispatcher).scSbreak,
	19:  (*Dispatcher).scLseek,
	20:  (*Dispatcher).scGetpid,
	28:  (*Dispatcher).scOpen,
	34:  (*Dispatcher).scAccess,
	59:  (*Dispatcher).scExecve,
	62:  (*Dispatcher).scFstat,
	64:  (*Dispatcher).scGetpagesize,
	66:  (*Dispatcher).scVfork,
	89:  (*Dispatcher).scGetdtablesize,
	116: (*Dispatcher).scGettimeofday,
	117: (*Dispatcher).scGetrusage,
	130: (*Dispatcher).scFtruncate,
}

// Dispatch decodes the low 20 bits of swiNumber and invokes its handler.
// Any error returned is fatal to the run loop (spec.md §7); guest-visible
// syscall failures are signalled through R0/carry, not a Go error, except
// for ExitError which the emulator aggregate's Run loop unwraps normally.
func (d *Dispatcher) Dispatch(swiNumber uint32) error {
	scnum := swiNumber & 0xFFFFF
	h, ok := handlers[scnum]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnhandledSWI, scnum)
	}

	a0 := d.CPU.GetReg(d.CPU.Mode, 0)
	a1 := d.CPU.GetReg(d.CPU.Mode, 1)
	a2 := d.CPU.GetReg(d.CPU.Mode, 2)
	a3 := d.CPU.GetReg(d.CPU.Mode, 3)

	return h(d, a0, a1, a2, a3)
}

// ret signals a successful syscall: R0 = v, carry clear.
func (d *Dispatcher) ret(v uint32) error {
	d.CPU.SetReg(d.CPU.Mode, 0, v)
	d.CPU.ClearCarry()
	return nil
}

// fail signals a failed syscall: R0 = mapped errno, carry set.
func (d *Dispatcher) fail(err error) error {
	e := hostToRixErrno(d, err)
	d.CPU.SetReg(d.CPU.Mode, 0, uint32(e))
	d.CPU.SetCarry()
	return nil
}

// hostToRixErrno passes host errno values through unchanged. Per
// original_source/os.c's host_to_rix_errno, values >= 35 have no verified
// RISCiX mapping; rather than spam a warning on every occurrence (the C
// original's unconditional fprintf), this logs each distinct unmapped value
// once — documented open question, see spec.md §9 and DESIGN.md.
func hostToRixErrno(d *Dispatcher, err error) int {
	errno := errnoOf(err)
	if errno >= 35 && !d.warned[errno] {
		d.warned[errno] = true
		d.Log.Warn("errno not mapped to a verified RISCiX value, passing through", "errno", errno)
	}
	return errno
}

func errnoOf(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return int(syscall.EIO)
}

func (d *Dispatcher) scExit(a0, a1, a2, a3 uint32) error {
	return &ExitError{Status: int(int32(a0))}
}

func (d *Dispatcher) scRead(fd, buf, length, a3 uint32) error {
	data := make([]byte, length)
	n, err := syscall.Read(int(fd), data)
	if err != nil {
		return d.fail(err)
	}
	d.Mem.WriteBytes(buf, data[:n])
	return d.ret(uint32(n))
}

func (d *Dispatcher) scWrite(fd, buf, length, a3 uint32) error {
	data, ok := d.Mem.ReadBytes(buf, length)
	if !ok {
		return d.fail(syscall.EFAULT)
	}
	n, err := syscall.Write(int(fd), data)
	if err != nil {
		return d.fail(err)
	}
	return d.ret(uint32(n))
}

func (d *Dispatcher) scClose(fd, a1, a2, a3 uint32) error {
	if fd <= 2 {
		return d.ret(0)
	}
	if err := syscall.Close(int(fd)); err != nil {
		return d.fail(err)
	}
	return d.ret(0)
}

func (d *Dispatcher) scCreat(pathAddr, mode, a2, a3 uint32) error {
	path, _ := d.Mem.ReadCString(pathAddr)
	fd, err := syscall.Creat(path, mode)
	if err != nil {
		return d.fail(err)
	}
	return d.ret(uint32(fd))
}

func (d *Dispatcher) scLink(oldAddr, newAddr, a2, a3 uint32) error {
	oldPath, _ := d.Mem.ReadCString(oldAddr)
	newPath, _ := d.Mem.ReadCString(newAddr)
	if err := os.Link(oldPath, newPath); err != nil {
		return d.fail(err)
	}
	return d.ret(0)
}

func (d *Dispatcher) scUnlink(pathAddr, a1, a2, a3 uint32) error {
	path, _ := d.Mem.ReadCString(pathAddr)
	if err := syscall.Unlink(path); err != nil {
		return d.fail(err)
	}
	return d.ret(0)
}

const fakeVforkPID = 1234

func (d *Dispatcher) scWaitpid(pid, statusAddr, flags, a3 uint32) error {
	if int32(pid) < 1 || pid == fakeVforkPID {
		if statusAddr != 0 {
			d.Mem.StoreWordN(statusAddr, uint32(d.State.VforkStatus))
		}
		return d.ret(fakeVforkPID)
	}
	return d.fail(syscall.ECHILD)
}

func scNOP(d *Dispatcher, a0, a1, a2, a3 uint32) error {
	return d.ret(0)
}

func (d *Dispatcher) scSbreak(newBrk, a1, a2, a3 uint32) error {
	// No enforcement against guestmem.Size yet — documented open question,
	// see spec.md §9.
	d.State.Sbrk = newBrk
	return d.ret(0)
}

func (d *Dispatcher) scLseek(fd, offset, whence, a3 uint32) error {
	off, err := syscall.Seek(int(fd), int64(int32(offset)), int(whence))
	if err != nil {
		return d.fail(err)
	}
	return d.ret(uint32(off))
}

func (d *Dispatcher) scGetpid(a0, a1, a2, a3 uint32) error {
	// 16-bit truncation is a known limitation carried from
	// original_source/os.c's rix_sc_getpid — documented open question.
	return d.ret(uint32(uint16(os.Getpid())))
}

func (d *Dispatcher) scOpen(pathAddr, flags, mode, a3 uint32) error {
	path, _ := d.Mem.ReadCString(pathAddr)
	fd, err := syscall.Open(path, rixToHostOpenFlags(int(flags)), uint32(mode))
	if err != nil {
		return d.fail(err)
	}
	return d.ret(uint32(fd))
}

func (d *Dispatcher) scAccess(pathAddr, mode, a2, a3 uint32) error {
	path, _ := d.Mem.ReadCString(pathAddr)
	if err := syscall.Access(path, uint32(mode)); err != nil {
		return d.fail(err)
	}
	return d.ret(0)
}

func (d *Dispatcher) scFstat(fd, bufAddr, a2, a3 uint32) error {
	info, err := os.NewFile(uintptr(fd), "").Stat()
	if err != nil {
		return d.fail(err)
	}
	fromHostStat(info).Marshal(d.Mem, bufAddr)
	return d.ret(0)
}

func (d *Dispatcher) scGetpagesize(a0, a1, a2, a3 uint32) error {
	return d.ret(32768)
}

func (d *Dispatcher) scVfork(a0, a1, a2, a3 uint32) error {
	d.State.VforkBackup = d.CPU.Snapshot()
	return d.ret(0)
}

func (d *Dispatcher) scGetdtablesize(a0, a1, a2, a3 uint32) error {
	return d.ret(512)
}

func (d *Dispatcher) scGettimeofday(tvAddr, a1, a2, a3 uint32) error {
	now := time.Now()
	d.Mem.StoreWordN(tvAddr, uint32(now.Unix()))
	d.Mem.StoreWordN(tvAddr+4, uint32(now.Nanosecond()/1000))
	return d.ret(0)
}

func (d *Dispatcher) scGetrusage(who, bufAddr, a2, a3 uint32) error {
	zero := make([]byte, 8+8+14*4)
	d.Mem.WriteBytes(bufAddr, zero)
	return d.ret(0)
}

func (d *Dispatcher) scFtruncate(fd, length, a2, a3 uint32) error {
	if err := syscall.Ftruncate(int(fd), int64(length)); err != nil {
		return d.fail(err)
	}
	return d.ret(0)
}

// rixToHostOpenFlags remaps a RISCiX open(2) flags word to the host's,
// per spec.md §4.4. The low two bits (access mode) are assumed identical.
func rixToHostOpenFlags(f int) int {
	o := f & 3
	if f&(1<<9) != 0 {
		o |= syscall.O_CREAT
	}
	if f&(1<<11) != 0 {
		o |= syscall.O_EXCL
	}
	if f&(1<<12) != 0 {
		o |= syscall.O_NOCTTY
	}
	if f&(1<<10) != 0 {
		o |= syscall.O_TRUNC
	}
	if f&(1<<3) != 0 {
		o |= syscall.O_APPEND
	}
	if f&(1<<14) != 0 {
		o |= syscall.O_NONBLOCK
	}
	if f&(1<<13) != 0 {
		o |= syscall.O_SYNC
	}
	return o
}
