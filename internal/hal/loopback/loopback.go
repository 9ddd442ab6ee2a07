// Package loopback is an in-process stand-in for the DPU HAL, analogous to
// net/http/httptest: it lets internal/fs's dispatcher be exercised end to
// end without a real SmartNIC or a real /dev/fuse mount. It is not a wire
// decoder — callers hand it already-decoded Op values directly, the same
// shape a real HAL would have produced after parsing a fuse_in_header.
package loopback

import (
	"sync"

	"github.com/stonet-research/DPFS/internal/hal"
)

// Completion records one async_complete call, keyed by the CompletionContext
// that was handed to Dispatch.
type Completion struct {
	Ctx    hal.CompletionContext
	Status hal.CompletionStatus
}

// Harness implements hal.Completer and records completions for later
// assertions. It does not implement hal.Device; device registration calls
// go to the hal.Dispatcher (internal/fs.Server) itself.
type Harness struct {
	mu          sync.Mutex
	cond        *sync.Cond
	completions []Completion
}

func New() *Harness {
	h := &Harness{}
	h.cond = sync.NewCond(&h.mu)
	return h
}

func (h *Harness) AsyncComplete(cctx hal.CompletionContext, status hal.CompletionStatus) {
	h.mu.Lock()
	h.completions = append(h.completions, Completion{Ctx: cctx, Status: status})
	h.cond.Broadcast()
	h.mu.Unlock()
}

// WaitN blocks until at least n completions have been recorded and returns
// them. Intended for tests driving an aio.Ring where completion
// timing is not deterministic.
func (h *Harness) WaitN(n int) []Completion {
	h.mu.Lock()
	defer h.mu.Unlock()
	for len(h.completions) < n {
		h.cond.Wait()
	}
	out := make([]Completion, len(h.completions))
	copy(out, h.completions)
	return out
}

func (h *Harness) Completions() []Completion {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Completion, len(h.completions))
	copy(out, h.completions)
	return out
}
