package fs

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Errno extracts a negative-errno value suitable for a fuse_out_header.error
// field from err, defaulting to -EIO for errors that don't carry one. Every
// handler in this package funnels its backing-syscall error through this
// function exactly once, per §7's propagation policy: "every handler either
// returns SYNC_DONE with error possibly non-zero ... errors are never
// converted to exceptions across the HAL boundary."
func Errno(err error) int32 {
	if err == nil {
		return 0
	}
	var errno unix.Errno
	if e, ok := err.(unix.Errno); ok {
		errno = e
	} else if ue, ok := unwrapErrno(err); ok {
		errno = ue
	} else {
		return -int32(unix.EIO)
	}
	return -int32(errno)
}

func unwrapErrno(err error) (unix.Errno, bool) {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if e, ok := err.(unix.Errno); ok {
			return e, true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return 0, false
		}
		err = u.Unwrap()
	}
	return 0, false
}

// ErrProtocolFatal is raised (by panicking) when the kernel's own
// bookkeeping is violated — currently only a forget whose count exceeds
// the tracked nlookup (§4.3, §7 "Protocol-fatal: negative lookup-count
// arithmetic -> abort the server"). Grounded directly on the teacher's
// inode.lookupCount.Dec, which panics under the identical condition; no
// recover() is installed around dispatch, so the panic brings the process
// down, matching "abort the server."
type ErrProtocolFatal struct {
	Reason string
}

func (e ErrProtocolFatal) Error() string { return fmt.Sprintf("protocol-fatal: %s", e.Reason) }
