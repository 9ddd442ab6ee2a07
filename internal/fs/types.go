// Package fs is the file server translation layer: the inode table and its
// stable-identifier/lifetime discipline, the per-opcode dispatch surface,
// and the asynchronous read/write pipeline (§2 of the design). It is the
// "core" the rest of this repository exists to support.
//
// Grounded throughout on the teacher's fs/fs.go, fs/inode/lookup_count.go
// and fs/dir_handle.go, generalised from GCS-object-backed inodes to
// local-file-backed ones; see DESIGN.md for the full ledger.
package fs

import "time"

// NodeID is the wire node-id: a stable handle into the inode table, never
// the backing filesystem's own inode number (§3 "External identifiers").
type NodeID uint64

// RootNodeID is the reserved external identifier for the exported
// directory's own root.
const RootNodeID NodeID = 1

// HandleID is the kernel file/directory handle returned by open/opendir,
// keyed independently of NodeID so a single inode can have several
// concurrently open handles.
type HandleID uint64

// Entry is the (node_id, generation, attr, timeouts) tuple §4.2 says a
// lookup (or create, or a plus-readdir entry) returns to the kernel.
type Entry struct {
	NodeID       NodeID
	Generation   uint64
	Attr         Attr
	AttrTimeout  time.Duration
	EntryTimeout time.Duration
}

// Negative reports whether this is a negative dentry (node_id == 0): the
// name is confirmed absent and may be cached as such for EntryTimeout.
func (e Entry) Negative() bool { return e.NodeID == 0 }
