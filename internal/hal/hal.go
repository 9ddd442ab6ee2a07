// Package hal describes the boundary between the DPU Hardware Abstraction
// Layer and the file server translation layer. The HAL itself — the code
// that speaks to the SmartNIC queues and the virtio-fs/FUSE wire decoder —
// lives outside this module; only the contract is defined here, the same
// way internal/fs treats a GCS bucket as an external collaborator reached
// through a narrow interface.
package hal

// DispatchResult is returned by a Dispatcher's Dispatch method.
type DispatchResult int

const (
	// SyncDone means the reply is already filled in; the HAL may ship it
	// immediately.
	SyncDone DispatchResult = iota
	// AsyncPending means the reply will be completed later via exactly one
	// call to Completer.AsyncComplete with the CompletionContext supplied to
	// Dispatch.
	AsyncPending
)

func (r DispatchResult) String() string {
	if r == AsyncPending {
		return "ASYNC_PENDING"
	}
	return "SYNC_DONE"
}

// CompletionStatus is passed to AsyncComplete once a pending dispatch
// resolves.
type CompletionStatus int

const (
	Success CompletionStatus = iota
	Error
)

// CompletionContext is an opaque token minted by the HAL and handed back to
// Dispatch. The core never inspects it; it is only ever echoed back through
// Completer.AsyncComplete.
type CompletionContext any

// Completer is implemented by the HAL. Core code calls AsyncComplete
// exactly once for every Dispatch call that returned AsyncPending.
type Completer interface {
	AsyncComplete(cctx CompletionContext, status CompletionStatus)
}

// Device is the lifecycle boundary the HAL drives when a virtio-fs device
// is attached to, or detached from, this server.
type Device interface {
	RegisterDevice(deviceID uint32) error
	UnregisterDevice(deviceID uint32) error
}

// Dispatcher is the inward-facing half of the HAL contract: one call per
// decoded wire request. Implementations receive already-decoded typed
// arguments (see internal/fs.Op) and pointers into pre-allocated reply
// structs; the wire encoding of those structs back into out_iov happens in
// the HAL, not here.
type Dispatcher interface {
	Device
	// Dispatch routes a single decoded request to its handler. cctx is
	// forwarded verbatim to Completer.AsyncComplete if the result is
	// AsyncPending.
	Dispatch(op any, cctx CompletionContext) DispatchResult
}
