package fs

import (
	"io"

	"golang.org/x/sys/unix"
)

// DirEntry is one directory entry ready for the wire encoder. Off is the
// cursor value the kernel should echo back as the offset of the *next*
// readdir call once this entry has actually been written out.
type DirEntry struct {
	Name string
	Ino  uint64
	Off  uint64
	Type uint8

	// Plus-variant fields, populated only when ReadDir was called with
	// plus=true.
	NodeID NodeID
	Entry  *Entry
}

// DirentWriter is the out-of-scope wire encoder's callback into this
// component (§1(b), §4.5): it reports whether the entry fit in the
// remaining reply space. Returning false means "no room" and stops the
// iteration.
type DirentWriter func(DirEntry) (wrote bool)

// ReadDir iterates a directory handle from offset, seeking the underlying
// stream only if offset differs from what's cached (§4.5). For the plus
// variant, each entry is looked up first (bumping nlookup, per §9's
// lookup-count discipline) before being offered to write; if write
// declines an entry because there's no room, the just-performed lookup is
// compensated with forget(ino, 1) so the buffer-full entry leaves nlookup
// unchanged, and iteration stops — the entry is naturally re-delivered on
// the next call because its Off was never reported as written (§8
// Scenario F).
//
// If the very first entry's plus-lookup fails, the error is reported to
// the caller; a lookup failure on a later entry instead stops iteration
// with the partial result treated as success, per §4.5's error-reporting
// rule.
func (s *Server) ReadDir(h HandleID, dirNode NodeID, offset uint64, plus bool, write DirentWriter) error {
	dh, ok := s.lookupDirHandle(h)
	if !ok {
		return unix.EINVAL
	}

	dh.mu.Lock()
	defer dh.mu.Unlock()

	if err := dh.stream.SeekTo(offset); err != nil {
		return err
	}

	first := true
	for {
		dent, err := dh.stream.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		de := DirEntry{Name: dent.Name, Ino: dent.Ino, Off: dent.Off, Type: dent.Type}
		if plus {
			entry, lerr := s.Lookup(dirNode, dent.Name)
			if lerr != nil {
				if first {
					return lerr
				}
				return nil
			}
			de.NodeID = entry.NodeID
			de.Entry = &entry
		}
		first = false

		if !write(de) {
			if plus && de.Entry != nil && !de.Entry.Negative() {
				s.Forget(de.NodeID, 1)
			}
			return nil
		}
	}
}
