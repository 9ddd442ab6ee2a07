package fs

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/stonet-research/DPFS/internal/backingfs"
)

// dirHandle is the Directory Handle component (§2 item 3, §3): a streaming
// directory iterator over a directory fd with a cached seek offset, owned
// by opendir/readdir/releasedir.
//
// Single-owner contract (§9 open question, resolved as "document, don't
// change" in DESIGN.md): mu serializes opendir/readdir/releasedir calls
// against *this* handle only. The cached offset in backingfs.DirStream is
// meaningless if two callers interleave readdir calls on the same handle
// concurrently — the kernel itself never does this for one open directory
// file description, and this implementation assumes that guarantee holds.
type dirHandle struct {
	mu     sync.Mutex
	node   *Record
	fd     int
	stream *backingfs.DirStream
}

func newDirHandle(node *Record, fd int) *dirHandle {
	return &dirHandle{node: node, fd: fd, stream: backingfs.NewDirStream(fd)}
}

func (s *Server) lookupDirHandle(h HandleID) (*dirHandle, bool) {
	s.handlesMu.Lock()
	defer s.handlesMu.Unlock()
	dh, ok := s.dirHandle[h]
	return dh, ok
}

// OpenDir allocates a Directory Handle wrapping a fresh directory stream
// over the inode's fd (§4.5).
func (s *Server) OpenDir(node NodeID) (HandleID, error) {
	rec, ok := s.table.LookupByHandle(node)
	if !ok {
		return 0, unix.EINVAL
	}
	rec.mu.Lock()
	fd := rec.fd
	isDir := rec.isDir
	rec.mu.Unlock()
	if fd < 0 || !isDir {
		return 0, unix.EINVAL
	}

	dataFd, err := backingfs.Reopen(fd, unix.O_RDONLY|unix.O_DIRECTORY)
	if err != nil {
		return 0, err
	}

	rec.mu.Lock()
	rec.nopen++
	rec.mu.Unlock()

	h := s.allocHandle()
	s.handlesMu.Lock()
	s.dirHandle[h] = newDirHandle(rec, dataFd)
	s.handlesMu.Unlock()
	return h, nil
}

// ReleaseDir destroys the Directory Handle (§3 "Destroyed by releasedir").
func (s *Server) ReleaseDir(h HandleID) error {
	s.handlesMu.Lock()
	dh, ok := s.dirHandle[h]
	if ok {
		delete(s.dirHandle, h)
	}
	s.handlesMu.Unlock()
	if !ok {
		return unix.EINVAL
	}

	dh.mu.Lock()
	defer dh.mu.Unlock()

	dh.node.mu.Lock()
	dh.node.nopen--
	dh.node.mu.Unlock()

	return backingfs.Close(dh.fd)
}

func (s *Server) FsyncDir(h HandleID) error {
	dh, ok := s.lookupDirHandle(h)
	if !ok {
		return unix.EINVAL
	}
	return backingfs.Fsync(dh.fd)
}
