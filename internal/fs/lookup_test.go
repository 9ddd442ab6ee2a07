package fs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// Scenario A (§8): lookup("/hello") twice on a file. Both replies must
// carry the same node-id and generation; after two forgets (n=1 each), the
// record is erased.
func TestLookup_Idempotence(t *testing.T) {
	srv, _, dir := newTestServer(t, 0)
	writeFile(t, dir, "hello", []byte("hi"))

	e1, err := srv.Lookup(RootNodeID, "hello")
	require.NoError(t, err)
	require.False(t, e1.Negative())

	e2, err := srv.Lookup(RootNodeID, "hello")
	require.NoError(t, err)

	assert.Equal(t, e1.NodeID, e2.NodeID)
	assert.Equal(t, e1.Generation, e2.Generation)

	before := srv.TableLen()
	d1, err := srv.Forget(e1.NodeID, 1)
	require.NoError(t, err)
	assert.False(t, d1)
	d2, err := srv.Forget(e1.NodeID, 1)
	require.NoError(t, err)
	assert.True(t, d2)
	assert.Equal(t, before-1, srv.TableLen())
}

// Scenario B: lookup("missing") on an empty root returns a negative entry
// cached for the configured entry timeout.
func TestLookup_Negative(t *testing.T) {
	const timeout = 3 * time.Second
	srv, _, _ := newTestServer(t, timeout)

	e, err := srv.Lookup(RootNodeID, "missing")
	require.NoError(t, err)
	assert.True(t, e.Negative())
	assert.Equal(t, timeout, e.EntryTimeout)
}

// Related to Invariant 2 (§8): two distinct backing files looked up side by
// side get distinct node-ids.
func TestLookup_DistinctInodesGetDistinctHandles(t *testing.T) {
	srv, _, dir := newTestServer(t, 0)
	writeFile(t, dir, "a", []byte("a"))
	writeFile(t, dir, "b", []byte("b"))

	ea, err := srv.Lookup(RootNodeID, "a")
	require.NoError(t, err)
	eb, err := srv.Lookup(RootNodeID, "b")
	require.NoError(t, err)

	assert.NotEqual(t, ea.NodeID, eb.NodeID)
}

// Scenario E: lookup of an entry whose backing device differs from the
// root's returns ENOTSUP. Requires CAP_SYS_ADMIN to mount a tmpfs;
// skipped when the sandbox doesn't allow it.
func TestLookup_MountpointRefusal(t *testing.T) {
	srv, _, dir := newTestServer(t, 0)

	mountPoint := filepath.Join(dir, "other-device")
	require.NoError(t, os.Mkdir(mountPoint, 0o755))

	if err := unix.Mount("tmpfs", mountPoint, "tmpfs", 0, ""); err != nil {
		t.Skipf("cannot mount tmpfs in this sandbox: %v", err)
	}
	defer unix.Unmount(mountPoint, 0)

	_, err := srv.Lookup(RootNodeID, "other-device")
	assert.Equal(t, unix.ENOTSUP, err)
}

// Scenario D and the generation-bump-on-unlink invariant are exercised in
// namespace_test.go (TestUnlink_OpenFdSurvivesWithZeroTimeout and
// TestUnlink_GenerationBumpsOnLastLinkClose), not here: both need Unlink's
// compensating-forget path, which has nothing to do with lookup proper.
