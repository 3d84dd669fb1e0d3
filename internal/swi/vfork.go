package swi

import (
	"os/exec"
	"strings"
	"syscall"
)

// vforkExecArgsMax bounds the guest argv walk, matching
// original_source/os.c's rix_execve_handler args_max.
const vforkExecArgsMax = 16

// cpCommandPrefix is the one system(3) idiom this trampoline recognizes:
// shells invoked as `sh -c "/sbin/cp ..."`, the pattern RISCiX's unsqueeze
// and build tools use. Anything else fails with ENOENT, matching
// original_source/os.c.
const cpCommandPrefix = "/sbin/cp "

// scExecve implements the vfork/execve/waitpid collapse (C7): it reads the
// guest argv array, matches the sh -c "/sbin/cp ..." idiom, rewrites it to
// a host `cp` invocation, runs it, restores the CPU state saved by the
// preceding vfork, and returns the fake PID. Any other pattern is
// "unhandled": execve fails with ENOENT, matching
// original_source/os.c's rix_execve_handler.
func (d *Dispatcher) scExecve(pathAddr, argvAddr, envpAddr, a3 uint32) error {
	args, ok := d.readArgv(argvAddr)
	if !ok {
		return d.fail(syscall.ENOENT)
	}

	if len(args) >= 2 && args[0] == "sh" && args[1] == "-c" && len(args) >= 3 &&
		strings.HasPrefix(args[2], cpCommandPrefix) {
		cmd := "cp " + strings.TrimPrefix(args[2], cpCommandPrefix)
		return d.runShellCommand(cmd)
	}

	return d.fail(syscall.ENOENT)
}

// readArgv reads up to vforkExecArgsMax NUL-terminated guest C-strings from
// the pointer array at argvAddr, stopping at the first NULL pointer. ok is
// false if the array never terminates within the cap.
func (d *Dispatcher) readArgv(argvAddr uint32) ([]string, bool) {
	var args []string
	addr := argvAddr
	for i := 0; i < vforkExecArgsMax; i++ {
		ptr := d.Mem.LoadWordN(addr)
		if ptr == 0 {
			return args, true
		}
		s, _ := d.Mem.ReadCString(ptr)
		args = append(args, s)
		addr += 4
	}
	return args, false
}

// runShellCommand invokes cmd via the host shell (the modern, fork-free
// replacement for original_source/os.c's system(3) call), stashes its exit
// status, restores the CPU state vfork snapshotted, and returns the fake
// child PID with carry clear.
//
// VforkStatus must carry the same encoding original_source/os.c's
// system(3)/wait() pair produces: the raw wait-status word, which packs a
// normal exit's code into bits 8-15 rather than the bare 0-255 code
// exec.ExitError.ExitCode() returns. A guest applying WEXITSTATUS() to the
// value waitpid (SWI 11) writes back would otherwise see 0 for every
// nonzero exit code.
func (d *Dispatcher) runShellCommand(cmd string) error {
	c := exec.Command("sh", "-c", cmd)
	status := 0
	if err := c.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				status = int(ws)
			} else {
				status = exitErr.ExitCode() << 8
			}
		} else {
			status = -1
		}
	}
	d.State.VforkStatus = status

	if d.State.VforkBackup != nil {
		d.CPU.Restore(d.State.VforkBackup)
		d.State.VforkBackup = nil
	}

	return d.ret(fakeVforkPID)
}
