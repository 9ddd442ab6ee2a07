package fs

import (
	"context"
	"errors"

	"golang.org/x/sys/unix"

	"github.com/stonet-research/DPFS/internal/aio"
	"github.com/stonet-research/DPFS/internal/hal"
)

// ReadOp is the decoded FUSE read request (§3 "Async I/O Cookie", §4.6).
// Buf is the already-allocated reply data region living inside the HAL's
// out_iov — the kernel async-I/O context writes directly into it, so no
// copy happens on this side of the submission.
type ReadOp struct {
	Handle HandleID
	Offset int64
	Buf    []byte

	// Filled in by the Reaper once the completion arrives.
	OutLen uint32
	Error  int32
}

// WriteOp is the decoded FUSE write request. Data is the request payload
// living in the HAL's in_iov.
type WriteOp struct {
	Handle HandleID
	Offset int64
	Data   []byte

	OutSize uint32
	Error   int32
}

// dispatchRead implements the §4.6 submit path for read: acquire a cookie,
// submit a single PREADV control block, and either return ASYNC_PENDING or
// resolve synchronously on submit failure.
func (s *Server) dispatchRead(op *ReadOp, cctx hal.CompletionContext) hal.DispatchResult {
	fh, ok := s.lookupFileHandle(op.Handle)
	if !ok {
		op.Error = Errno(unix.EINVAL)
		return hal.SyncDone
	}

	c := s.pool.acquire()
	c.kind = cookieRead
	c.cctx = cctx
	c.readOp = op

	if err := s.cfg.Ring.SubmitRead(fh.fd, [][]byte{op.Buf}, op.Offset, uint64(c.idx)); err != nil {
		op.Error = Errno(err)
		s.pool.release(c)
		return hal.SyncDone
	}
	if s.metrics != nil {
		s.metrics.AsyncInFlight.Inc()
	}
	return hal.AsyncPending
}

// dispatchWrite mirrors dispatchRead for PWRITEV.
func (s *Server) dispatchWrite(op *WriteOp, cctx hal.CompletionContext) hal.DispatchResult {
	fh, ok := s.lookupFileHandle(op.Handle)
	if !ok {
		op.Error = Errno(unix.EINVAL)
		return hal.SyncDone
	}

	c := s.pool.acquire()
	c.kind = cookieWrite
	c.cctx = cctx
	c.writeOp = op

	if err := s.cfg.Ring.SubmitWrite(fh.fd, [][]byte{op.Data}, op.Offset, uint64(c.idx)); err != nil {
		op.Error = Errno(err)
		s.pool.release(c)
		return hal.SyncDone
	}
	if s.metrics != nil {
		s.metrics.AsyncInFlight.Inc()
	}
	return hal.AsyncPending
}

// reapLoop is the Completion Reaper (§2 item 4, §4.6): it drains the Ring
// in batches for as long as the server runs and resolves each completion's
// cookie, exactly mirroring the submit path it pairs with. NewServer starts
// one or more of these on their own goroutines (Config.ReaperThreads, when
// Config.CQPolling is set) so the HAL's own poll threads are never the
// ones blocked waiting on completions (§5's non-blocking requirement); the
// Ring itself (see aio.URing's cqMu) is what keeps concurrent reapers from
// racing each other over the same completion queue.
func (s *Server) reapLoop(ctx context.Context) {
	for {
		comps, err := s.cfg.Ring.Reap(ctx, 64)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			s.logger.Error("reap failed", "error", err)
			continue
		}
		for _, comp := range comps {
			s.completeOne(comp)
		}
	}
}

// completeOne resolves a single completion event: writes the reply
// header/write-out fields on the cookie's Op, invokes the HAL's
// async_complete exactly once (§6 "Core -> HAL"), and returns the cookie
// to the pool (§2 item 5).
func (s *Server) completeOne(comp aio.Completion) {
	c := s.pool.lookup(uint32(comp.UserData))
	if c == nil {
		// Stale/unknown user-data; nothing owns this completion. Can only
		// happen if the Ring delivers an event the Submitter never issued.
		s.logger.Error("completion for unknown cookie", "user_data", comp.UserData)
		return
	}

	status := hal.Success
	switch c.kind {
	case cookieRead:
		if comp.Res < 0 {
			c.readOp.Error = comp.Res
			status = hal.Error
		} else {
			c.readOp.OutLen = uint32(comp.Res)
		}
	case cookieWrite:
		if comp.Res < 0 {
			c.writeOp.Error = comp.Res
			status = hal.Error
		} else {
			c.writeOp.OutSize = uint32(comp.Res)
		}
	}

	kind := c.kind
	cctx := c.cctx
	s.pool.release(c)
	if s.metrics != nil {
		s.metrics.AsyncInFlight.Dec()
		op := "read"
		if kind == cookieWrite {
			op = "write"
		}
		errno := comp.Res
		if errno > 0 {
			errno = 0
		}
		s.metrics.ObserveDispatch(op, errno)
	}
	s.cfg.Completer.AsyncComplete(cctx, status)
}
