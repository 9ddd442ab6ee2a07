package backingfs

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// futimens has no direct wrapper in golang.org/x/sys/unix; glibc itself
// implements it as utimensat(fd, NULL, times, 0), which is the same raw
// syscall invoked here.
func futimens(fd int, times *[2]unix.Timespec) error {
	_, _, errno := unix.Syscall6(unix.SYS_UTIMENSAT, uintptr(fd), 0, uintptr(unsafe.Pointer(times)), 0, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}
