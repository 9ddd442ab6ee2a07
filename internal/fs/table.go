package fs

import (
	"sync"

	"github.com/stonet-research/DPFS/internal/backingfs"
)

// Attr is the backing-stat-derived attribute payload a handler copies into
// a reply; kept as a plain alias so this package's call sites read in terms
// of fs.Attr without a second type wrapping backingfs.Attr for no reason.
type Attr = backingfs.Attr

// unlinkedSentinel marks a Record whose backing fd has been closed while
// the record itself is retained pending forget (§3, §4.8's
// Unlinked-Retained state).
const unlinkedSentinel = -1

// Record is one Inode (§3): backing identity, the path-only fd, and the
// kernel bookkeeping (nlookup/nopen/generation) that governs its lifetime.
// mu protects every field below; the lock-ordering rule throughout this
// package is record mutex before table mutex, see Table.erase.
type Record struct {
	mu sync.Mutex

	handle     NodeID
	srcIno     uint64
	srcDev     uint64
	fd         int // >=0: live path-only fd. unlinkedSentinel: invalidated.
	nlookup    uint64
	nopen      uint32
	generation uint64
	isDir      bool
}

// withLock runs f with rec.mu held and returns whatever f returns.
func (rec *Record) withLock(f func() error) error {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return f()
}

// Table is the Inode Table (§4.1): a keyed store from backing inode number
// to Record, plus the handle->Record index the wire's node-id resolves
// through.
type Table struct {
	mu         sync.Mutex
	bySrcIno   map[uint64]*Record
	byHandle   map[NodeID]*Record
	nextHandle NodeID
}

// NewTable constructs a table seeded with the root record at the reserved
// external identifier 1 (§3 "The root inode is special").
func NewTable(rootSrcIno, rootSrcDev uint64, rootFd int) *Table {
	root := &Record{
		handle:  RootNodeID,
		srcIno:  rootSrcIno,
		srcDev:  rootSrcDev,
		fd:      rootFd,
		nlookup: 1, // the root is always reachable; never forgotten to zero in practice
		isDir:   true,
	}
	return &Table{
		bySrcIno:   map[uint64]*Record{rootSrcIno: root},
		byHandle:   map[NodeID]*Record{RootNodeID: root},
		nextHandle: RootNodeID + 1,
	}
}

// GetOrInsert returns the existing record for srcIno if one is already
// tracked, otherwise constructs and inserts a fresh record with nlookup=0,
// generation=0, and an unset fd — exactly per §4.1's get_or_insert
// contract. The caller fills in the fresh record's fields (and bumps
// nlookup) under the returned record's lock before anyone else can observe
// it; see fs.Lookup.
func (t *Table) GetOrInsert(srcIno uint64) (rec *Record, existed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if r, ok := t.bySrcIno[srcIno]; ok {
		return r, true
	}

	// Constructed and published while still holding the table mutex: the
	// narrow, documented exception to "record mutex before table mutex"
	// (§4.1, §9) — no other goroutine can reach this record until this
	// function returns it, so there is nothing to order against yet.
	rec = &Record{srcIno: srcIno}
	rec.handle = t.nextHandle
	t.nextHandle++
	t.bySrcIno[srcIno] = rec
	t.byHandle[rec.handle] = rec
	return rec, false
}

// LookupByHandle resolves a wire node-id back to its record in O(1).
func (t *Table) LookupByHandle(h NodeID) (*Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.byHandle[h]
	return r, ok
}

// erase removes rec from both indexes. Callers must already hold rec.mu
// and must guarantee rec.nlookup == 0 (§4.1). This is the one path that
// acquires the table mutex while a record mutex is already held, which is
// the package's record-before-table order; no path takes a record mutex
// while holding the table mutex.
func (t *Table) erase(rec *Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.bySrcIno, rec.srcIno)
	delete(t.byHandle, rec.handle)
}

// Len reports the number of live records, used by the property test for
// §8 invariant 3 and by internal/metrics.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byHandle)
}

// Forget applies a kernel forget(handle, n): decrements nlookup by n and,
// if it reaches zero, erases the record and closes its fd if still live
// (§4.3, §4.8). A negative result is protocol-fatal (§7).
func (t *Table) Forget(rec *Record, n uint64) (destroyed bool) {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if n > rec.nlookup {
		panic(ErrProtocolFatal{Reason: "forget count exceeds nlookup"})
	}
	rec.nlookup -= n
	if rec.nlookup != 0 {
		return false
	}

	t.erase(rec)
	if rec.fd >= 0 {
		_ = closeFd(rec.fd)
		rec.fd = unlinkedSentinel
	}
	return true
}

// closeFd is a tiny seam so table.go doesn't need to import backingfs just
// for one call; kept here rather than inlined because Record.fd's zero/
// sentinel handling is easy to get wrong and this keeps it in one place.
func closeFd(fd int) error {
	return backingfs.Close(fd)
}
