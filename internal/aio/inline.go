package aio

import (
	"context"

	"golang.org/x/sys/unix"
)

// InlineRing performs each submitted read/write synchronously with
// pread/pwrite and queues the result for Reap, rather than going through a
// real kernel async-I/O context. It satisfies the same Ring interface the
// io_uring-backed implementation does, so internal/fs's dispatcher and its
// completion reaper are exercised identically either way — only the
// backing mechanism differs. Used by internal/fs's tests in place of a
// real io_uring ring, the same role gcsfuse's fake GCS bucket plays for its
// fs package tests.
type InlineRing struct {
	completions chan Completion
}

func NewInlineRing(queueDepth uint32) *InlineRing {
	return &InlineRing{completions: make(chan Completion, queueDepth)}
}

func (r *InlineRing) SubmitRead(fd int, iovecs [][]byte, offset int64, userData uint64) error {
	n, err := unix.Preadv(fd, iovecs, offset)
	r.completions <- toCompletion(userData, n, err)
	return nil
}

func (r *InlineRing) SubmitWrite(fd int, iovecs [][]byte, offset int64, userData uint64) error {
	n, err := unix.Pwritev(fd, iovecs, offset)
	r.completions <- toCompletion(userData, n, err)
	return nil
}

func (r *InlineRing) Reap(ctx context.Context, max int) ([]Completion, error) {
	select {
	case c := <-r.completions:
		out := []Completion{c}
		for len(out) < max {
			select {
			case next := <-r.completions:
				out = append(out, next)
			default:
				return out, nil
			}
		}
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *InlineRing) Close() error {
	return nil
}

func toCompletion(userData uint64, n int, err error) Completion {
	if err != nil {
		errno, ok := err.(unix.Errno)
		if !ok {
			return Completion{UserData: userData, Res: -int32(unix.EIO)}
		}
		return Completion{UserData: userData, Res: -int32(errno)}
	}
	return Completion{UserData: userData, Res: int32(n)}
}
