package fs

import "golang.org/x/sys/unix"

// ForgetOne is a single (handle, nlookup-decrement) pair, the unit both
// Forget and BatchForget operate on (§4.3).
type ForgetOne struct {
	NodeID NodeID
	N      uint64
}

// Forget applies a single forget. There is no reply on the wire for
// forget/batch-forget (§4.3 "These operations produce no reply"); Forget
// returns only whether the record was destroyed, for callers (tests,
// metrics) that want to observe it.
func (s *Server) Forget(node NodeID, n uint64) (destroyed bool, err error) {
	rec, ok := s.table.LookupByHandle(node)
	if !ok {
		return false, unix.EINVAL
	}
	return s.table.Forget(rec, n), nil
}

// BatchForget applies each pair in order. A single malformed handle does
// not abort the batch (an unknown node-id is a protocol error the kernel
// shouldn't produce, but §4.3 only defines fatality for negative-count
// arithmetic, not for unknown handles); it is skipped.
func (s *Server) BatchForget(batch []ForgetOne) {
	for _, f := range batch {
		rec, ok := s.table.LookupByHandle(f.NodeID)
		if !ok {
			continue
		}
		s.table.Forget(rec, f.N)
	}
}
