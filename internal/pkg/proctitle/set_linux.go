//go:build linux

package proctitle

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// The kernel keeps at most 15 bytes plus the terminating NUL.
const threadNameMax = 15

func setThreadName(title string) error {
	if len(title) > threadNameMax {
		title = title[:threadNameMax]
	}
	name, err := unix.BytePtrFromString(title)
	if err != nil {
		return err
	}
	return unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(name)), 0, 0, 0)
}
