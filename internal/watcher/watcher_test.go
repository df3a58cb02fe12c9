package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWatchDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inventory.yaml")
	require.NoError(t, os.WriteFile(path, []byte("records: []\n"), 0o600))

	var calls atomic.Int32
	w := New(path, func() { calls.Add(1) }, zap.NewNop()).WithDebounce(100 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	// Give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("records: []\n"), 0o600))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o600))

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWatchMissingDirectory(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing", "inventory.yaml"), func() {}, zap.NewNop())
	assert.Error(t, w.Watch(context.Background()))
}
