package fs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario F (§8): a directory with many entries read with a buffer that
// fits only some plus-entries returns exactly that many the first call,
// with the next entry's lookup pre-compensated (nlookup unchanged), and the
// following call with the returned offset continues without duplicates.
func TestReadDir_PartialBufferPreCompensates(t *testing.T) {
	const total = 1000
	const fits = 37

	srv, _, dir := newTestServer(t, 0)
	for i := 0; i < total; i++ {
		writeFile(t, dir, fmt.Sprintf("f%04d", i), nil)
	}

	h, err := srv.OpenDir(RootNodeID)
	require.NoError(t, err)

	before := srv.TableLen()

	var first []DirEntry
	var lastOff uint64
	seen := 0
	err = srv.ReadDir(h, RootNodeID, 0, true, func(de DirEntry) bool {
		if seen == fits {
			return false
		}
		seen++
		lastOff = de.Off
		first = append(first, de)
		return true
	})
	require.NoError(t, err)
	assert.Len(t, first, fits)

	// The buffer-full entry's lookup was pre-compensated: table size grew
	// by exactly len(first), not len(first)+1.
	assert.Equal(t, before+fits, srv.TableLen())

	for _, de := range first {
		_, err := srv.Forget(de.NodeID, 1)
		require.NoError(t, err)
	}

	var second []DirEntry
	err = srv.ReadDir(h, RootNodeID, lastOff, true, func(de DirEntry) bool {
		second = append(second, de)
		return true
	})
	require.NoError(t, err)

	names := map[string]bool{}
	for _, de := range first {
		names[de.Name] = true
	}
	for _, de := range second {
		assert.False(t, names[de.Name], "entry %q duplicated across chunks", de.Name)
		names[de.Name] = true
	}
	assert.Len(t, names, total)

	for _, de := range second {
		_, _ = srv.Forget(de.NodeID, 1)
	}

	require.NoError(t, srv.ReleaseDir(h))
}

// Invariant 5 (§8): the multi-set of entries returned across an unchanged
// directory's full enumeration equals its entries minus "." and "..", and
// offsets are monotone.
func TestReadDir_MonotoneOffsetsNoDotEntries(t *testing.T) {
	srv, _, dir := newTestServer(t, 0)
	writeFile(t, dir, "a", nil)
	writeFile(t, dir, "b", nil)
	writeFile(t, dir, "c", nil)

	h, err := srv.OpenDir(RootNodeID)
	require.NoError(t, err)
	defer srv.ReleaseDir(h)

	var offsets []uint64
	names := map[string]bool{}
	err = srv.ReadDir(h, RootNodeID, 0, false, func(de DirEntry) bool {
		assert.NotEqual(t, ".", de.Name)
		assert.NotEqual(t, "..", de.Name)
		offsets = append(offsets, de.Off)
		names[de.Name] = true
		return true
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, names)
	for i := 1; i < len(offsets); i++ {
		assert.Greater(t, offsets[i], offsets[i-1])
	}
}
