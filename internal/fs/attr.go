package fs

import (
	"golang.org/x/sys/unix"

	"github.com/stonet-research/DPFS/internal/backingfs"
)

// GetAttr refreshes the cached attributes for node (§4.4).
func (s *Server) GetAttr(node NodeID) (Entry, error) {
	rec, ok := s.table.LookupByHandle(node)
	if !ok {
		return Entry{}, unix.EINVAL
	}
	rec.mu.Lock()
	fd := rec.fd
	gen := rec.generation
	rec.mu.Unlock()
	if fd < 0 {
		return Entry{}, unix.EINVAL
	}

	st, err := backingfs.Fstat(fd)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		NodeID:      node,
		Generation:  gen,
		Attr:        backingfs.AttrFromStat(&st),
		AttrTimeout: s.session.AttrTimeout,
	}, nil
}

// TimeSpec carries either an explicit (sec, nsec) value, "set to now", or
// "leave unchanged" (Omit), mirroring the real utimensat UTIME_NOW/
// UTIME_OMIT sentinels §4.4 calls out by name.
type TimeSpec struct {
	Omit bool
	Now  bool
	Sec  int64
	Nsec int64
}

func (t TimeSpec) toUnix() unix.Timespec {
	switch {
	case t.Omit:
		return unix.Timespec{Nsec: unix.UTIME_OMIT}
	case t.Now:
		return unix.Timespec{Nsec: unix.UTIME_NOW}
	default:
		return unix.Timespec{Sec: t.Sec, Nsec: t.Nsec}
	}
}

// SetAttrRequest selects, via nil fields, exactly the attributes to
// change (§4.4's bitmask). Handle, when non-nil, routes the change through
// an already-open file handle (fchmod/fchown/ftruncate/futimens);
// otherwise it is applied via the inode's path-only fd reopened as
// /proc/self/fd/<fd> so path-only descriptors remain targetable.
type SetAttrRequest struct {
	NodeID NodeID
	Handle *HandleID

	Mode  *uint32
	Uid   *uint32
	Gid   *uint32
	Size  *uint64
	Atime *TimeSpec
	Mtime *TimeSpec
}

func (s *Server) SetAttr(req SetAttrRequest) (Entry, error) {
	rec, ok := s.table.LookupByHandle(req.NodeID)
	if !ok {
		return Entry{}, unix.EINVAL
	}
	rec.mu.Lock()
	fd := rec.fd
	gen := rec.generation
	rec.mu.Unlock()
	if fd < 0 {
		return Entry{}, unix.EINVAL
	}

	var dataFd int = -1
	if req.Handle != nil {
		s.handlesMu.Lock()
		fh, ok := s.fileHandle[*req.Handle]
		s.handlesMu.Unlock()
		if ok {
			dataFd = fh.fd
		}
	}

	path := backingfs.ProcPath(fd)

	if req.Mode != nil {
		if dataFd >= 0 {
			if err := backingfs.Fchmod(dataFd, *req.Mode); err != nil {
				return Entry{}, err
			}
		} else if err := backingfs.Chmod(path, *req.Mode); err != nil {
			return Entry{}, err
		}
	}
	if req.Uid != nil || req.Gid != nil {
		uid, gid := -1, -1
		if req.Uid != nil {
			uid = int(*req.Uid)
		}
		if req.Gid != nil {
			gid = int(*req.Gid)
		}
		if dataFd >= 0 {
			if err := backingfs.Fchown(dataFd, uid, gid); err != nil {
				return Entry{}, err
			}
		} else if err := backingfs.Chown(path, uid, gid); err != nil {
			return Entry{}, err
		}
	}
	if req.Size != nil {
		if dataFd >= 0 {
			if err := backingfs.Ftruncate(dataFd, int64(*req.Size)); err != nil {
				return Entry{}, err
			}
		} else if err := backingfs.Truncate(path, int64(*req.Size)); err != nil {
			return Entry{}, err
		}
	}
	if req.Atime != nil || req.Mtime != nil {
		at := TimeSpec{Omit: true}
		mt := TimeSpec{Omit: true}
		if req.Atime != nil {
			at = *req.Atime
		}
		if req.Mtime != nil {
			mt = *req.Mtime
		}
		times := [2]unix.Timespec{at.toUnix(), mt.toUnix()}
		if dataFd >= 0 {
			if err := backingfs.Futimens(dataFd, times); err != nil {
				return Entry{}, err
			}
		} else if err := backingfs.UtimesNanoAt(path, times); err != nil {
			return Entry{}, err
		}
	}

	st, err := backingfs.Fstat(fd)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		NodeID:      req.NodeID,
		Generation:  gen,
		Attr:        backingfs.AttrFromStat(&st),
		AttrTimeout: s.session.AttrTimeout,
	}, nil
}

// StatfsReply is the backing filesystem's own statfs(2) result, passed
// through.
type StatfsReply struct {
	Blocks, BFree, BAvail uint64
	Files, FFree          uint64
	Bsize, Frsize         uint32
	NameLen               uint32
}

func (s *Server) Statfs() (StatfsReply, error) {
	st, err := backingfs.Statfs(s.cfg.Dir)
	if err != nil {
		return StatfsReply{}, err
	}
	return StatfsReply{
		Blocks:  st.Blocks,
		BFree:   st.Bfree,
		BAvail:  st.Bavail,
		Files:   st.Files,
		FFree:   st.Ffree,
		Bsize:   uint32(st.Bsize),
		Frsize:  uint32(st.Frsize),
		NameLen: uint32(st.Namelen),
	}, nil
}
