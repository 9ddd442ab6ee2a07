package fs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/stonet-research/DPFS/internal/aio"
	"github.com/stonet-research/DPFS/internal/hal"
	"github.com/stonet-research/DPFS/internal/hal/loopback"
)

// Scenario C (§8): open for read/write, write 8 bytes "ABCDEFGH" at offset
// 0, read 8 bytes at offset 0 — the read must return exactly "ABCDEFGH"
// regardless of which completed first on the async queue. Submission here
// goes through aio.InlineRing (synchronous under the hood), so ordering is
// guaranteed by the backing filesystem itself, matching the scenario's own
// caveat ("server must serialise on behalf of the test only if backing fs
// does").
func TestReadWrite_WriteThenRead(t *testing.T) {
	srv, harness, dir := newTestServer(t, 0)
	writeFile(t, dir, "rw", nil)

	entry, err := srv.Lookup(RootNodeID, "rw")
	require.NoError(t, err)

	openReply, err := srv.Open(OpenRequest{NodeID: entry.NodeID, Flags: unix.O_RDWR})
	require.NoError(t, err)

	writeOp := &WriteOp{Handle: openReply.Handle, Offset: 0, Data: []byte("ABCDEFGH")}
	result := srv.Dispatch(writeOp, "write-cctx")
	require.Equal(t, hal.AsyncPending, result)

	comps := harness.WaitN(1)
	require.Len(t, comps, 1)
	assert.Equal(t, hal.Success, comps[0].Status)
	assert.Equal(t, uint32(8), writeOp.OutSize)
	assert.Equal(t, int32(0), writeOp.Error)

	readOp := &ReadOp{Handle: openReply.Handle, Offset: 0, Buf: make([]byte, 8)}
	result = srv.Dispatch(readOp, "read-cctx")
	require.Equal(t, hal.AsyncPending, result)

	comps = harness.WaitN(2)
	require.Len(t, comps, 2)
	assert.Equal(t, uint32(8), readOp.OutLen)
	assert.Equal(t, "ABCDEFGH", string(readOp.Buf))

	require.NoError(t, srv.Release(openReply.Handle))
}

// Submit failure (unknown handle) resolves synchronously with the errno in
// the reply rather than going async (§4.6 step 3, §7 "Resource exhaustion
// in submit").
func TestReadWrite_UnknownHandleIsSyncError(t *testing.T) {
	srv, _, _ := newTestServer(t, 0)

	readOp := &ReadOp{Handle: 9999, Offset: 0, Buf: make([]byte, 8)}
	result := srv.Dispatch(readOp, "unused-cctx")
	assert.Equal(t, hal.SyncDone, result)
	assert.Equal(t, -int32(unix.EINVAL), readOp.Error)
}

// With uring_cq_polling set and uring_cq_polling_nthreads = 4 (§6), the
// server's reapers deliver every completion of 20 async writes. The number
// of reaper goroutines itself is not observed here.
func TestNewServer_CQPollingReapersCompleteAllWrites(t *testing.T) {
	dir := t.TempDir()
	harness := loopback.New()
	ring := aio.NewInlineRing(64)

	srv, err := NewServer(Config{
		Dir:           dir,
		Ring:          ring,
		Completer:     harness,
		CQPolling:     true,
		ReaperThreads: 4,
	})
	require.NoError(t, err)
	defer srv.Shutdown()

	writeFile(t, dir, "rw", nil)
	entry, err := srv.Lookup(RootNodeID, "rw")
	require.NoError(t, err)
	openReply, err := srv.Open(OpenRequest{NodeID: entry.NodeID, Flags: unix.O_RDWR})
	require.NoError(t, err)

	const n = 20
	for i := 0; i < n; i++ {
		op := &WriteOp{Handle: openReply.Handle, Offset: int64(i), Data: []byte{'x'}}
		require.Equal(t, hal.AsyncPending, srv.Dispatch(op, i))
	}
	comps := harness.WaitN(n)
	assert.Len(t, comps, n)

	require.NoError(t, srv.Release(openReply.Handle))
}

// With uring_cq_polling unset and a thread count of 8 configured (the §5
// default case, where NewServer starts one reaper), an async write still
// completes. The number of reaper goroutines itself is not observed here.
func TestNewServer_WithoutCQPollingCompletesWrite(t *testing.T) {
	dir := t.TempDir()
	harness := loopback.New()
	ring := aio.NewInlineRing(64)

	srv, err := NewServer(Config{
		Dir:           dir,
		Ring:          ring,
		Completer:     harness,
		CQPolling:     false,
		ReaperThreads: 8,
	})
	require.NoError(t, err)
	defer srv.Shutdown()

	writeFile(t, dir, "rw", nil)
	entry, err := srv.Lookup(RootNodeID, "rw")
	require.NoError(t, err)
	openReply, err := srv.Open(OpenRequest{NodeID: entry.NodeID, Flags: unix.O_RDWR})
	require.NoError(t, err)

	op := &WriteOp{Handle: openReply.Handle, Offset: 0, Data: []byte{'x'}}
	require.Equal(t, hal.AsyncPending, srv.Dispatch(op, "cctx"))
	comps := harness.WaitN(1)
	assert.Len(t, comps, 1)

	require.NoError(t, srv.Release(openReply.Handle))
}
