package backingfs

import (
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// Dirent is one entry decoded from a raw getdents64 buffer.
type Dirent struct {
	Ino  uint64
	Off  uint64 // the kernel's own stream cursor position after this entry
	Type uint8  // unix.DT_* constant
	Name string
}

// DirStream is a raw getdents64 reader over a directory fd, with a cached
// cursor so repeated reads only seek when the caller's requested offset
// doesn't match what's already buffered. This is the backing-syscall half
// of the Directory Handle component (§3, §4.5); fs.dirHandle layers the
// fuse_dirent/fuse_direntplus buffer-fill policy on top of it.
type DirStream struct {
	fd     int
	buf    []byte
	bpos   int
	nbuf   int
	cursor uint64 // getdents64 position just past the last entry consumed from buf
}

const direntBufSize = 32 * 1024

func NewDirStream(fd int) *DirStream {
	return &DirStream{fd: fd, buf: make([]byte, direntBufSize)}
}

// SeekTo repositions the underlying fd if off differs from the stream's
// current position, discarding any buffered-but-undelivered entries.
func (d *DirStream) SeekTo(off uint64) error {
	if off == d.cursor && d.bpos < d.nbuf {
		return nil
	}
	if off == 0 {
		if _, err := unix.Seek(d.fd, 0, io.SeekStart); err != nil {
			return fmt.Errorf("seek dirstream: %w", err)
		}
		d.cursor, d.bpos, d.nbuf = 0, 0, 0
		return nil
	}
	if _, err := unix.Seek(d.fd, int64(off), io.SeekStart); err != nil {
		return fmt.Errorf("seek dirstream: %w", err)
	}
	d.cursor, d.bpos, d.nbuf = off, 0, 0
	return nil
}

// Next returns the next entry, filling the internal buffer via getdents64
// as needed. io.EOF signals end of directory. "." and ".." are filtered
// out, matching §4.5's "opendir ... '.' and '..' are filtered".
func (d *DirStream) Next() (Dirent, error) {
	for {
		if d.bpos >= d.nbuf {
			n, err := unix.Getdents(d.fd, d.buf)
			if err != nil {
				return Dirent{}, fmt.Errorf("getdents: %w", err)
			}
			if n == 0 {
				return Dirent{}, io.EOF
			}
			d.nbuf = n
			d.bpos = 0
		}

		ent, adv, ok := parseDirent64(d.buf[d.bpos:d.nbuf])
		if !ok {
			// Malformed/truncated record; force a refill on next call.
			d.bpos = d.nbuf
			continue
		}
		d.bpos += adv
		d.cursor = ent.Off
		if ent.Name == "." || ent.Name == ".." {
			continue
		}
		return ent, nil
	}
}

// parseDirent64 decodes one struct linux_dirent64 from buf. Layout:
//
//	u64 d_ino; u64 d_off; u16 d_reclen; u8 d_type; char d_name[];
func parseDirent64(buf []byte) (Dirent, int, bool) {
	const hdr = 19 // 8 + 8 + 2 + 1
	if len(buf) < hdr {
		return Dirent{}, 0, false
	}
	ino := binary.LittleEndian.Uint64(buf[0:8])
	off := binary.LittleEndian.Uint64(buf[8:16])
	reclen := binary.LittleEndian.Uint16(buf[16:18])
	typ := buf[18]
	if int(reclen) > len(buf) || reclen < hdr {
		return Dirent{}, 0, false
	}
	nameBytes := buf[hdr:reclen]
	if i := indexByte(nameBytes, 0); i >= 0 {
		nameBytes = nameBytes[:i]
	}
	return Dirent{Ino: ino, Off: off, Type: typ, Name: string(nameBytes)}, int(reclen), true
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
