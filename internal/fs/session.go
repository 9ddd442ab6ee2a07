package fs

import (
	"sync"
	"time"

	"github.com/stonet-research/DPFS/internal/backingfs"
)

// Capability flags, named after the real FUSE init-reply bits they map to
// (§4.7's "Open Question decisions" resolve the ambiguity against the real
// protocol rather than inventing bespoke names).
const (
	CapExportSupport  = 1 << 4  // FUSE_EXPORT_SUPPORT
	CapWritebackCache = 1 << 16 // FUSE_WRITEBACK_CACHE
	CapFlockLocks     = 1 << 10 // FUSE_FLOCK_LOCKS
	// Splice is never offered: virtio-fs's transfer model has no splice
	// analogue (§4.7 "disable splice (incompatible with virtio-fs transfer
	// model)").
)

// Session is the process-wide handshake/capability state (§2 item 7, §4.7,
// §5 "Effective uid/gid: process-wide; set once during init").
type Session struct {
	mu sync.Mutex

	initialized bool

	AttrTimeout  time.Duration
	EntryTimeout time.Duration
	Capabilities uint32
}

// InitRequest is what the HAL hands Dispatch for the FUSE INIT opcode.
type InitRequest struct {
	// OfferedCapabilities is the kernel's own capability bitmask from the
	// init request, using the same bit layout as Cap* above.
	OfferedCapabilities uint32
	Uid                 uint32
	Gid                 uint32
	HasUidGid           bool
}

type InitReply struct {
	Capabilities uint32
}

// Init performs the session handshake exactly once (§4.7): negotiates
// capabilities, optionally drops effective uid/gid, and marks the session
// initialised. A second Init call is a protocol error the caller should
// treat as EINVAL; this function simply refuses to re-negotiate.
func (s *Server) Init(req InitRequest) (InitReply, error) {
	s.session.mu.Lock()
	defer s.session.mu.Unlock()

	if s.session.initialized {
		return InitReply{Capabilities: s.session.Capabilities}, nil
	}

	var caps uint32
	if req.OfferedCapabilities&CapExportSupport != 0 {
		caps |= CapExportSupport
	}
	if s.cfg.MetadataTimeout != 0 {
		caps |= CapWritebackCache
	}
	if req.OfferedCapabilities&CapFlockLocks != 0 {
		caps |= CapFlockLocks
	}
	s.session.Capabilities = caps

	if req.HasUidGid && (req.Uid != 0 || req.Gid != 0) {
		if err := backingfs.SetresuidGid(req.Uid, req.Gid); err != nil {
			return InitReply{}, err
		}
		s.logger.Info("dropped effective uid/gid", "uid", req.Uid, "gid", req.Gid)
	} else {
		s.logger.Info("init: no uid/gid offered, continuing under server identity")
	}

	s.session.initialized = true
	return InitReply{Capabilities: caps}, nil
}
