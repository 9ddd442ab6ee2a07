// Package aio is the Async I/O Submitter & Completion Reaper (§4.6): it
// owns a kernel asynchronous I/O context and exposes submit(read|write, fd,
// iovecs, offset, cookie) plus a completion pump. The dispatcher in
// internal/fs depends only on the Ring interface below, never on a
// concrete io_uring binding, mirroring how the teacher's fs package depends
// on gcs.Bucket rather than a concrete GCS client.
package aio

import "context"

// Completion is one reaped event: UserData is whatever 64-bit cookie was
// supplied at submit time (§9: "a table index cast to 64-bit" — see
// internal/fs.CookiePool), and Res is the raw syscall result: a
// non-negative byte count on success, or a negative errno on failure,
// matching the kernel async-I/O completion convention directly.
type Completion struct {
	UserData uint64
	Res      int32
}

// Ring is a shared kernel async-I/O context: thread-safe to submit against
// (§5: "Async-I/O context: thread-safe submit"). §5 also names a
// single-threaded reaper as the default shared-resource policy, but §6's
// uring_cq_polling_nthreads explicitly asks for more than one reaper
// "when polling is enabled" — so Reap itself must tolerate being called
// concurrently by several goroutines; implementations serialize internally
// as needed (see URing's cqMu). internal/fs.Server is what actually decides
// how many goroutines call Reap; it is the single-threaded case whenever
// CQPolling is off.
type Ring interface {
	// SubmitRead/SubmitWrite enqueue a single control block. iovecs is the
	// already-scattered reply/request iovec vector from the HAL.
	SubmitRead(fd int, iovecs [][]byte, offset int64, userData uint64) error
	SubmitWrite(fd int, iovecs [][]byte, offset int64, userData uint64) error
	// Reap waits until at least one completion is available (or ctx is
	// done) and returns up to max of them. When the Ring was constructed
	// with CQPolling set, waiting means busy-spinning on the completion
	// queue instead of blocking in the kernel; otherwise it blocks.
	Reap(ctx context.Context, max int) ([]Completion, error)
	Close() error
}

// Config parameterises a Ring. QueueDepth bounds in-flight submissions;
// CQPolling maps directly to the uring_cq_polling config key (§6): it
// selects busy-poll completion reaping over blocking waits. The matching
// uring_cq_polling_nthreads key does not belong here — it governs how many
// goroutines call Reap, which is internal/fs.Server's decision, not the
// Ring's (see fs.Config.ReaperThreads).
type Config struct {
	QueueDepth uint32
	CQPolling  bool
}
