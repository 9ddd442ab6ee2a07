package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Valid(t *testing.T) {
	path := writeConfig(t, `
[local_mirror]
dir = "/srv/export"
metadata_timeout = 1.5
uring_cq_polling = true
uring_cq_polling_nthreads = 2
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/export", cfg.LocalMirror.Dir)
	assert.True(t, cfg.LocalMirror.URingCQPolling)
	assert.Equal(t, 2, cfg.LocalMirror.URingCQPollingNThreads)
	assert.Equal(t, int64(1500*1e6), cfg.MetadataTimeout().Nanoseconds())
}

func TestLoad_MissingDir(t *testing.T) {
	path := writeConfig(t, `
[local_mirror]
metadata_timeout = 0
uring_cq_polling = false
uring_cq_polling_nthreads = 1
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "dir")
}

func TestLoad_ZeroTimeoutDisablesWriteback(t *testing.T) {
	path := writeConfig(t, `
[local_mirror]
dir = "/srv/export"
metadata_timeout = 0
uring_cq_polling = false
uring_cq_polling_nthreads = 1
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Zero(t, cfg.MetadataTimeout())
}

func TestLoad_BadNThreads(t *testing.T) {
	path := writeConfig(t, `
[local_mirror]
dir = "/srv/export"
metadata_timeout = 0
uring_cq_polling = false
uring_cq_polling_nthreads = 0
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "uring_cq_polling_nthreads")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
