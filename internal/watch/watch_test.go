package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"graphseed/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunDebouncesAndFilters(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	batches := make(chan []string, 4)
	w := New(logger.NewMockLogger(), 100*time.Millisecond, func(path string) bool {
		return strings.HasSuffix(path, ".ttl")
	})

	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, []string{dir, dir + "/"}, func(ctx context.Context, paths []string) error {
			batches <- paths
			return nil
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)
	target := filepath.Join(dir, "a.ttl")
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(target, []byte("<a> <b> <c> ."), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	select {
	case got := <-batches:
		assert.Equal(t, []string{target}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload batch received")
	}

	select {
	case extra := <-batches:
		t.Fatalf("unexpected second batch: %v", extra)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	require.NoError(t, <-done)
}

func TestRunMissingDirectory(t *testing.T) {
	w := New(logger.NewMockLogger(), 0, nil)
	err := w.Run(context.Background(), []string{filepath.Join(t.TempDir(), "missing")}, func(context.Context, []string) error { return nil })
	assert.Error(t, err)
}

func TestUniqueDirs(t *testing.T) {
	assert.Equal(t, []string{"/a", "/b"}, uniqueDirs([]string{"/b/", "/a", "/b"}))
}
