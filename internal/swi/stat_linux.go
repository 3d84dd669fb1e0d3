package swi

import (
	"os"
	"syscall"
)

// hostStat extracts fi's underlying Linux stat_t, matching
// original_source/os.c's direct struct stat access.
func hostStat(fi os.FileInfo) *syscall.Stat_t {
	return fi.Sys().(*syscall.Stat_t)
}
