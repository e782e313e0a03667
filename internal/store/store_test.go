package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureLayout(t *testing.T) {
	root := t.TempDir()

	got, err := EnsureLayout(root)
	require.NoError(t, err)
	assert.Equal(t, root, got)

	for _, sub := range []string{"cache", "memory", "token_history", "thinking", "optimization"} {
		assert.DirExists(t, filepath.Join(root, sub))
	}
}

func TestTokenHistoryPath(t *testing.T) {
	path, err := TokenHistoryPath("/data")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data", "token_history", "token_metrics.json"), path)
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "snap.json")

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, WriteSnapshot(path, payload{Name: "run", Count: 3}))

	var out payload
	ok, err := ReadSnapshot(path, &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, payload{Name: "run", Count: 3}, out)
}

func TestReadSnapshot_Missing(t *testing.T) {
	var out map[string]string
	ok, err := ReadSnapshot(filepath.Join(t.TempDir(), "absent.json"), &out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileLock_AcquireRelease(t *testing.T) {
	root := t.TempDir()

	fl, err := AcquireDataLock(root, nil)
	require.NoError(t, err)
	require.NoError(t, fl.Release())
	require.NoError(t, fl.Release())
}
