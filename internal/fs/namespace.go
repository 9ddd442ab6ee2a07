package fs

import (
	"golang.org/x/sys/unix"

	"github.com/stonet-research/DPFS/internal/backingfs"
)

func (s *Server) parentFd(parent NodeID) (int, error) {
	prec, ok := s.table.LookupByHandle(parent)
	if !ok {
		return 0, unix.EINVAL
	}
	prec.mu.Lock()
	fd := prec.fd
	prec.mu.Unlock()
	if fd < 0 {
		return 0, unix.EINVAL
	}
	return fd, nil
}

func (s *Server) Mkdir(parent NodeID, name string, mode uint32) (Entry, error) {
	fd, err := s.parentFd(parent)
	if err != nil {
		return Entry{}, err
	}
	if err := backingfs.Mkdirat(fd, name, mode); err != nil {
		return Entry{}, err
	}
	return s.Lookup(parent, name)
}

func (s *Server) Mknod(parent NodeID, name string, mode uint32, dev int) (Entry, error) {
	fd, err := s.parentFd(parent)
	if err != nil {
		return Entry{}, err
	}
	if err := backingfs.Mknodat(fd, name, mode, dev); err != nil {
		return Entry{}, err
	}
	return s.Lookup(parent, name)
}

func (s *Server) Symlink(parent NodeID, name, target string) (Entry, error) {
	fd, err := s.parentFd(parent)
	if err != nil {
		return Entry{}, err
	}
	if err := backingfs.Symlinkat(target, fd, name); err != nil {
		return Entry{}, err
	}
	return s.Lookup(parent, name)
}

// Readlink reads a symlink's target through its path-only descriptor: an
// O_PATH|O_NOFOLLOW fd opened on a symlink names the link itself, and
// readlinkat(2) with that fd and an empty path yields the link's target
// string without re-resolving any path.
func (s *Server) Readlink(node NodeID) (string, error) {
	rec, ok := s.table.LookupByHandle(node)
	if !ok {
		return "", unix.EINVAL
	}
	rec.mu.Lock()
	fd := rec.fd
	rec.mu.Unlock()
	if fd < 0 {
		return "", unix.EINVAL
	}

	buf := make([]byte, unix.PathMax)
	n, err := backingfs.Readlinkat(fd, "", buf)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

// CreateRequest is the argument set for an atomic open-with-create
// (§4.4).
type CreateRequest struct {
	Parent NodeID
	Name   string
	Mode   uint32
	Flags  int
}

type CreateReply struct {
	Entry  Entry
	Handle HandleID
}

// Create atomically opens-with-create, then runs the lookup dance (§4.2)
// to register the resulting inode, reusing the fd the create already
// produced as the open file handle rather than reopening it. Increments
// nopen, per §4.4.
func (s *Server) Create(req CreateRequest) (CreateReply, error) {
	parentFd, err := s.parentFd(req.Parent)
	if err != nil {
		return CreateReply{}, err
	}

	flags := req.Flags | unix.O_CREAT
	dataFd, err := backingfs.Openat(parentFd, req.Name, flags, req.Mode)
	if err != nil {
		return CreateReply{}, err
	}

	entry, err := s.Lookup(req.Parent, req.Name)
	if err != nil {
		backingfs.Close(dataFd)
		return CreateReply{}, err
	}
	if entry.Negative() {
		backingfs.Close(dataFd)
		return CreateReply{}, unix.EIO
	}

	rec, ok := s.table.LookupByHandle(entry.NodeID)
	if !ok {
		backingfs.Close(dataFd)
		return CreateReply{}, unix.EIO
	}
	rec.mu.Lock()
	rec.nopen++
	rec.mu.Unlock()

	h := s.allocHandle()
	s.handlesMu.Lock()
	s.fileHandle[h] = &fileHandle{fd: dataFd, node: rec}
	s.handlesMu.Unlock()

	return CreateReply{Entry: entry, Handle: h}, nil
}

// Unlink removes name from parent. When the metadata timeout is zero
// (writeback cache disabled), it first performs a pre-unlink lookup: if
// the target's link count is 1 and it has no open handles, the inode's fd
// is closed and invalidated (unlinked sentinel, generation bumped) before
// the name is actually removed, and the extra lookup reference is undone
// with a compensating forget — preserving stable (ino, generation)
// semantics across backing-ino reuse (§4.4, §9).
func (s *Server) Unlink(parent NodeID, name string) error {
	parentFd, err := s.parentFd(parent)
	if err != nil {
		return err
	}

	if s.cfg.MetadataTimeout == 0 {
		entry, lerr := s.Lookup(parent, name)
		if lerr == nil && !entry.Negative() {
			if rec, ok := s.table.LookupByHandle(entry.NodeID); ok {
				rec.mu.Lock()
				if entry.Attr.Nlink == 1 && rec.nopen == 0 && rec.fd >= 0 {
					backingfs.Close(rec.fd)
					rec.fd = unlinkedSentinel
					rec.generation++
				}
				rec.mu.Unlock()
				s.table.Forget(rec, 1)
			}
		}
	}

	return backingfs.Unlinkat(parentFd, name, 0)
}

// Rmdir removes an empty directory. The unlink-pre-invalidate dance is
// specific to unlink (§4.4 names only unlink); directories carry no
// hard-link aliasing to preserve identity across, so rmdir is a direct
// pass-through.
func (s *Server) Rmdir(parent NodeID, name string) error {
	parentFd, err := s.parentFd(parent)
	if err != nil {
		return err
	}
	return backingfs.Unlinkat(parentFd, name, unix.AT_REMOVEDIR)
}

func (s *Server) Rename(oldParent NodeID, oldName string, newParent NodeID, newName string) error {
	oldFd, err := s.parentFd(oldParent)
	if err != nil {
		return err
	}
	newFd, err := s.parentFd(newParent)
	if err != nil {
		return err
	}
	return backingfs.Renameat(oldFd, oldName, newFd, newName)
}
