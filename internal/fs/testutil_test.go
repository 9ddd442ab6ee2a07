package fs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stonet-research/DPFS/internal/aio"
	"github.com/stonet-research/DPFS/internal/hal/loopback"
)

// newTestServer builds a Server over a fresh temp directory, backed by an
// aio.InlineRing (synchronous pread/pwrite standing in for a real io_uring
// ring, per internal/aio's own doc comment) and a loopback.Harness acting
// as the HAL. Returned alongside the exported directory path so tests can
// create files/dirs the server should observe.
func newTestServer(t *testing.T, metadataTimeout time.Duration) (*Server, *loopback.Harness, string) {
	t.Helper()
	dir := t.TempDir()

	harness := loopback.New()
	ring := aio.NewInlineRing(64)

	srv, err := NewServer(Config{
		Dir:             dir,
		MetadataTimeout: metadataTimeout,
		Ring:            ring,
		Completer:       harness,
	})
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)

	return srv, harness, dir
}

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}
