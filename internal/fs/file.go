package fs

import (
	"golang.org/x/sys/unix"

	"github.com/stonet-research/DPFS/internal/backingfs"
)

// fileHandle is the per-open-file state behind a kernel file handle: a
// data-capable fd (reopened from the inode's path-only fd) and a back
// pointer to the owning record so Release can decrement nopen.
type fileHandle struct {
	fd   int
	node *Record
}

type OpenRequest struct {
	NodeID NodeID
	Flags  int
}

type OpenReply struct {
	Handle HandleID
}

// Open reopens the inode's path-only fd through /proc/self/fd/<fd> with
// the requested flags, dropping O_NOFOLLOW (§4.4): the path-only fd
// already pins the exact object, so there is nothing left to refuse to
// follow, and O_NOFOLLOW on the /proc magic-symlink path would defeat the
// whole trick. With a non-zero metadata timeout, O_APPEND and write-only
// opens are rewritten to O_RDWR so the writeback cache can satisfy reads
// locally, exactly as specified.
func (s *Server) Open(req OpenRequest) (OpenReply, error) {
	rec, ok := s.table.LookupByHandle(req.NodeID)
	if !ok {
		return OpenReply{}, unix.EINVAL
	}
	rec.mu.Lock()
	fd := rec.fd
	rec.mu.Unlock()
	if fd < 0 {
		return OpenReply{}, unix.EINVAL
	}

	flags := req.Flags &^ unix.O_NOFOLLOW
	if s.cfg.MetadataTimeout != 0 {
		if flags&unix.O_APPEND != 0 || (flags&unix.O_ACCMODE) == unix.O_WRONLY {
			flags = (flags &^ unix.O_APPEND &^ unix.O_ACCMODE) | unix.O_RDWR
		}
	}

	dataFd, err := backingfs.Reopen(fd, flags)
	if err != nil {
		return OpenReply{}, err
	}

	rec.mu.Lock()
	rec.nopen++
	rec.mu.Unlock()

	h := s.allocHandle()
	s.handlesMu.Lock()
	s.fileHandle[h] = &fileHandle{fd: dataFd, node: rec}
	s.handlesMu.Unlock()

	return OpenReply{Handle: h}, nil
}

// Release decrements nopen and closes the file handle (§4.4).
func (s *Server) Release(h HandleID) error {
	s.handlesMu.Lock()
	fh, ok := s.fileHandle[h]
	if ok {
		delete(s.fileHandle, h)
	}
	s.handlesMu.Unlock()
	if !ok {
		return unix.EINVAL
	}

	fh.node.mu.Lock()
	fh.node.nopen--
	fh.node.mu.Unlock()

	return backingfs.Close(fh.fd)
}

// Flush is a no-op against a local backing file: every write has already
// landed through the async pipeline by the time flush (issued on every
// close(2) of the handle, possibly more than once) arrives, so there is no
// separate buffered state to push out. Still validated against a live
// handle so an unknown handle is reported as EINVAL rather than silently
// succeeding.
func (s *Server) Flush(h HandleID) error {
	s.handlesMu.Lock()
	_, ok := s.fileHandle[h]
	s.handlesMu.Unlock()
	if !ok {
		return unix.EINVAL
	}
	return nil
}

func (s *Server) Fsync(h HandleID) error {
	fh, ok := s.lookupFileHandle(h)
	if !ok {
		return unix.EINVAL
	}
	return backingfs.Fsync(fh.fd)
}

func (s *Server) Flock(h HandleID, how int) error {
	fh, ok := s.lookupFileHandle(h)
	if !ok {
		return unix.EINVAL
	}
	return backingfs.Flock(fh.fd, how)
}

func (s *Server) Fallocate(h HandleID, mode uint32, offset, length int64) error {
	fh, ok := s.lookupFileHandle(h)
	if !ok {
		return unix.EINVAL
	}
	return backingfs.Fallocate(fh.fd, mode, offset, length)
}

func (s *Server) lookupFileHandle(h HandleID) (*fileHandle, bool) {
	s.handlesMu.Lock()
	defer s.handlesMu.Unlock()
	fh, ok := s.fileHandle[h]
	return fh, ok
}
