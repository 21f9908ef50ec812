package watcher

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T, debounce time.Duration) (string, *atomic.Int32) {
	t.Helper()

	target := filepath.Join(t.TempDir(), "wa_auth")
	require.NoError(t, os.MkdirAll(target, 0o700))

	var calls atomic.Int32
	w, err := New(target, func() { calls.Add(1) })
	require.NoError(t, err)
	w.SetDebounce(debounce)
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Stop() })

	return target, &calls
}

func TestWatcher_DeletionTriggersCallback(t *testing.T) {
	target, calls := newTestWatcher(t, 20*time.Millisecond)

	require.NoError(t, os.RemoveAll(target))

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_RecreatedWithinDebounceIsIgnored(t *testing.T) {
	target, calls := newTestWatcher(t, 300*time.Millisecond)

	require.NoError(t, os.RemoveAll(target))
	require.NoError(t, os.MkdirAll(target, 0o700))

	time.Sleep(500 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestWatcher_UnrelatedFilesIgnored(t *testing.T) {
	target, calls := newTestWatcher(t, 20*time.Millisecond)

	other := filepath.Join(filepath.Dir(target), "other.txt")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o600))
	require.NoError(t, os.Remove(other))

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	target := filepath.Join(t.TempDir(), "wa_auth")
	w, err := New(target, nil)
	require.NoError(t, err)

	require.NoError(t, w.Start())
	require.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}

func TestWatcher_MissingParent(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "missing", "wa_auth"), nil)
	require.NoError(t, err)

	assert.Error(t, w.Start())
}
