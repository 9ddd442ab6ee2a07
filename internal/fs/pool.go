package fs

import "github.com/stonet-research/DPFS/internal/hal"

type cookieKind uint8

const (
	cookieRead cookieKind = iota
	cookieWrite
)

// Cookie is the Async I/O Cookie (§3): the small per-request record
// carried as the kernel async-I/O user-data, identifying which reply to
// resolve and how, once the Reaper sees its completion.
type Cookie struct {
	idx  uint32
	kind cookieKind
	cctx hal.CompletionContext

	readOp  *ReadOp
	writeOp *WriteOp
}

// CookiePool is the Callback-Data Pool (§2 item 5): thread-safe
// acquire/release of Cookie records, identified by a stable slot index
// rather than a pointer address — §9's "a table index cast to 64-bit"
// alternative, chosen because Go's garbage collector gives no portable way
// to round-trip a live pointer through a plain uint64 and back.
type CookiePool struct {
	mu    chan struct{} // binary semaphore; see acquire/release
	slots []*Cookie
	free  []uint32
}

func NewCookiePool() *CookiePool {
	p := &CookiePool{mu: make(chan struct{}, 1)}
	p.mu <- struct{}{}
	return p
}

func (p *CookiePool) lock()   { <-p.mu }
func (p *CookiePool) unlock() { p.mu <- struct{}{} }

func (p *CookiePool) acquire() *Cookie {
	p.lock()
	defer p.unlock()

	if len(p.free) == 0 {
		c := &Cookie{idx: uint32(len(p.slots))}
		p.slots = append(p.slots, c)
		return c
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return p.slots[idx]
}

func (p *CookiePool) release(c *Cookie) {
	p.lock()
	defer p.unlock()
	idx := c.idx
	*c = Cookie{idx: idx}
	p.free = append(p.free, idx)
}

func (p *CookiePool) lookup(idx uint32) *Cookie {
	p.lock()
	defer p.unlock()
	if int(idx) >= len(p.slots) {
		return nil
	}
	return p.slots[idx]
}
