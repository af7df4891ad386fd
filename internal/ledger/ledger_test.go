package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	apperrors "graphseed/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRunLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	run, err := store.BeginRun(ctx, "bootstrap")
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)
	assert.Equal(t, RunRunning, run.Status)
	require.NoError(t, store.FinishRun(ctx, run.ID, RunSucceeded))

	var status, finished string
	require.NoError(t, store.db.QueryRowContext(ctx, `SELECT status, finished_at FROM runs WHERE id = ?`, run.ID).Scan(&status, &finished))
	assert.Equal(t, RunSucceeded, status)
	assert.NotEmpty(t, finished)
}

func TestLastLoadReturnsNewestSuccessfulLoad(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	run, err := store.BeginRun(ctx, "load")
	require.NoError(t, err)

	key := Key{Path: "/data/starwars-data.trig", Repository: "langchain"}
	base := LoadRecord{RunID: run.ID, Path: key.Path, Repository: key.Repository, Format: "trig", Size: 10}

	first := base
	first.SHA256 = "aaa"
	first.Status = LoadLoaded
	first.Duration = 1500 * time.Millisecond
	require.NoError(t, store.RecordLoad(ctx, first))

	second := base
	second.SHA256 = "bbb"
	second.Status = LoadLoaded
	require.NoError(t, store.RecordLoad(ctx, second))

	failed := base
	failed.SHA256 = "ccc"
	failed.Status = LoadFailed
	failed.Error = "HTTP 400"
	require.NoError(t, store.RecordLoad(ctx, failed))

	got, ok, err := store.LastLoad(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bbb", got.SHA256)
	assert.Equal(t, key, got.Key())
	assert.False(t, got.LoadedAt.IsZero())

	_, ok, err = store.LastLoad(ctx, Key{Path: key.Path, Repository: key.Repository, Context: "urn:other"})
	require.NoError(t, err)
	assert.False(t, ok)

	history, err := store.History(ctx, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "ccc", history[0].SHA256)
	assert.Equal(t, "HTTP 400", history[0].Error)

	all, err := store.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 1500*time.Millisecond, all[2].Duration)
}

func TestForgetDropsRepositoryHistory(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	run, err := store.BeginRun(ctx, "load")
	require.NoError(t, err)

	for _, repo := range []string{"langchain", "langchain", "other"} {
		require.NoError(t, store.RecordLoad(ctx, LoadRecord{RunID: run.ID, Path: "a.ttl", Repository: repo, SHA256: "x", Format: "turtle", Status: LoadLoaded}))
	}

	n, err := store.Forget(ctx, "langchain")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	all, err := store.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "other", all[0].Repository)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	store, err := Open(ctx, path)
	require.NoError(t, err)
	run, err := store.BeginRun(ctx, "load")
	require.NoError(t, err)
	require.NoError(t, store.RecordLoad(ctx, LoadRecord{RunID: run.ID, Path: "a.ttl", Repository: "r", SHA256: "x", Format: "turtle", Status: LoadLoaded}))
	require.NoError(t, store.Close())

	store, err = Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()
	_, ok, err := store.LastLoad(ctx, Key{Path: "a.ttl", Repository: "r"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpenFailure(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(context.Background(), dir)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCategoryStorage, appErr.Category)
}

func TestNoop(t *testing.T) {
	var store Store = Noop{}
	ctx := context.Background()
	run, err := store.BeginRun(ctx, "load")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	require.NoError(t, store.RecordLoad(ctx, LoadRecord{}))
	_, ok, err := store.LastLoad(ctx, Key{})
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, store.Close())
}
