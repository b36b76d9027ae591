package wal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/reaper/types"
)

func TestWAL_AppendAndReplay(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir)
	require.NoError(t, err)

	decision := types.Decision{
		Action:     types.ActionTerminate,
		InstanceID: "i-1",
		Reason:     types.ReasonExpired,
	}

	require.NoError(t, w.Append(EntryObserved, "i-1", map[string]string{"lifetime": "1w"}))
	require.NoError(t, w.Append(EntryTermination, "i-1", decision))
	require.NoError(t, w.AppendError("i-2", nil, errors.New("api throttled")))
	path := w.Path()
	require.NoError(t, w.Close())

	entries, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, EntryObserved, entries[0].Type)
	assert.Equal(t, int64(1), entries[0].Sequence)
	assert.Equal(t, "i-1", entries[0].InstanceID)

	assert.Equal(t, EntryTermination, entries[1].Type)
	assert.Equal(t, int64(2), entries[1].Sequence)
	assert.Contains(t, string(entries[1].Data), "expired")

	assert.Equal(t, EntryError, entries[2].Type)
	assert.Equal(t, "api throttled", entries[2].Error)
}

func TestWAL_SequenceMonotonic(t *testing.T) {
	w, err := Open(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	for i := 0; i < 10; i++ {
		require.NoError(t, w.Append(EntryObserved, "i-1", nil))
	}

	entries, err := ReadAll(w.Path())
	require.NoError(t, err)
	require.Len(t, entries, 10)
	for i, entry := range entries {
		assert.Equal(t, int64(i+1), entry.Sequence)
	}
}

func TestReadAll_MissingFile(t *testing.T) {
	_, err := ReadAll("/nonexistent/reaper.wal")
	assert.Error(t, err)
}
