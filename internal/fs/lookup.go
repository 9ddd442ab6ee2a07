package fs

import (
	"golang.org/x/sys/unix"

	"github.com/stonet-research/DPFS/internal/backingfs"
)

// Lookup resolves (parent, name) to an Entry, implementing §4.2's
// algorithm exactly: open path-only under the parent, reject mountpoint
// crossings and the reserved root ino, then get-or-insert the child
// record, handling all three insertion branches (fresh / existing-live /
// existing-unlinked-sentinel).
func (s *Server) Lookup(parent NodeID, name string) (Entry, error) {
	prec, ok := s.table.LookupByHandle(parent)
	if !ok {
		return Entry{}, unix.EINVAL
	}

	prec.mu.Lock()
	parentFd := prec.fd
	prec.mu.Unlock()
	if parentFd < 0 {
		return Entry{}, unix.EINVAL
	}

	childFd, err := backingfs.OpenPathOnly(parentFd, name)
	if err != nil {
		if backingfs.IsNotExist(err) {
			return Entry{NodeID: 0, EntryTimeout: s.session.EntryTimeout}, nil
		}
		return Entry{}, err
	}

	st, err := backingfs.Fstat(childFd)
	if err != nil {
		backingfs.Close(childFd)
		return Entry{}, err
	}

	if uint64(st.Dev) != s.rootDev {
		backingfs.Close(childFd)
		return Entry{}, unix.ENOTSUP
	}
	if st.Ino == s.rootIno {
		backingfs.Close(childFd)
		return Entry{}, unix.EIO
	}

	rec, existed := s.table.GetOrInsert(st.Ino)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	switch {
	case existed && rec.fd >= 0:
		// Existing record with a live fd: this lookup just confirms an
		// already-resolved name; discard the redundant fd we just opened.
		backingfs.Close(childFd)
		rec.nlookup++

	case existed && rec.fd < 0:
		// Recycled backing ino (§4.2 bullet 2): the prior occupant was
		// unlinked (generation already bumped at that time, §4.4), and the
		// backing filesystem has reused its ino for this new object.
		// nlookup is not reset — it was already non-zero, which is exactly
		// why the record survived in the table — it is simply incremented
		// like any other lookup.
		rec.fd = childFd
		rec.srcDev = uint64(st.Dev)
		rec.isDir = (st.Mode & unix.S_IFMT) == unix.S_IFDIR
		rec.nlookup++

	default:
		rec.srcDev = uint64(st.Dev)
		rec.fd = childFd
		rec.isDir = (st.Mode & unix.S_IFMT) == unix.S_IFDIR
		rec.nlookup = 1
	}

	return Entry{
		NodeID:       rec.handle,
		Generation:   rec.generation,
		Attr:         backingfs.AttrFromStat(&st),
		AttrTimeout:  s.session.AttrTimeout,
		EntryTimeout: s.session.EntryTimeout,
	}, nil
}
