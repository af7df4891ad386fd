package loader

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"graphseed/internal/config"
	apperrors "graphseed/internal/errors"
	"graphseed/internal/graphdb"
	"graphseed/internal/ledger"
	"graphseed/internal/logger"
	"graphseed/internal/readiness"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type upload struct {
	Repository string
	Context    string
	Body       string
	Gzip       bool
}

type fakeGraphDB struct {
	mu        sync.Mutex
	existing  map[string]bool
	created   []string
	cleared   []string
	uploads   []upload
	failures  map[string][]error
	createErr error
}

func newFakeGraphDB(existing ...string) *fakeGraphDB {
	f := &fakeGraphDB{existing: map[string]bool{}, failures: map[string][]error{}}
	for _, id := range existing {
		f.existing[id] = true
	}
	return f
}

func (f *fakeGraphDB) RepositoryExists(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.existing[id], nil
}

func (f *fakeGraphDB) CreateRepository(ctx context.Context, definition io.Reader, filename string) error {
	body, _ := io.ReadAll(definition)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, filename+":"+string(body))
	return nil
}

func (f *fakeGraphDB) ClearStatements(ctx context.Context, repository, graph string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, repository)
	return nil
}

func (f *fakeGraphDB) AddStatements(ctx context.Context, req graphdb.UploadRequest) error {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	key := req.Repository + "/" + string(body)
	if queue := f.failures[key]; len(queue) > 0 {
		f.failures[key] = queue[1:]
		return queue[0]
	}
	f.uploads = append(f.uploads, upload{Repository: req.Repository, Context: req.Context, Body: string(body), Gzip: req.Gzip})
	return nil
}

func (f *fakeGraphDB) bodies(repo string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, u := range f.uploads {
		if u.Repository == repo {
			out = append(out, u.Body)
		}
	}
	return out
}

func writeData(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func sum(content string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(content)))
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func newTestLoader(t *testing.T, client GraphDB, opts Options) (*Loader, ledger.Store) {
	t.Helper()
	store, err := ledger.Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	if opts.Policy.Attempts == 0 {
		opts.Policy = readiness.Policy{Attempts: 3, InitialDelay: time.Millisecond, Multiplier: 2}
	}
	opts.Retry.Sleep = noSleep
	return New(client, store, OSFileSystem{}, logger.NewMockLogger(), opts), store
}

func TestPlanOrdersAndDeduplicates(t *testing.T) {
	dir := t.TempDir()
	a := writeData(t, dir, "core/a.ttl", "a")
	b := writeData(t, dir, "core/b.nt.gz", "b")
	sw := writeData(t, dir, "starwars-data.trig", "sw")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "core", "nested.ttl"), 0o755))

	cfg := &config.Config{
		DefaultRepository: "langchain",
		Datasets: []config.DatasetConfig{
			{Path: sw, Order: 1},
			{Path: filepath.Join(dir, "core", "*"), Order: 0, Context: "urn:core"},
			{Path: a, Order: 0, Context: "urn:core"},
			{Path: sw, Repository: "other", Format: "turtle"},
		},
	}

	items, err := Plan(cfg, OSFileSystem{})
	require.NoError(t, err)

	turtle, _ := graphdb.LookupFormat("turtle")
	ntriples, _ := graphdb.LookupFormat("ntriples")
	trig, _ := graphdb.LookupFormat("trig")
	want := []Item{
		{Path: a, Repository: "langchain", Context: "urn:core", Format: turtle},
		{Path: b, Repository: "langchain", Context: "urn:core", Format: ntriples, Gzip: true},
		{Path: sw, Repository: "other", Format: turtle},
		{Path: sw, Repository: "langchain", Format: trig, Order: 1},
	}
	if diff := cmp.Diff(want, items); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Plan(&config.Config{Datasets: []config.DatasetConfig{{Path: filepath.Join(dir, "a.ttl")}}}, OSFileSystem{})
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeMissingRepository, appErr.Code)

	_, err = Plan(&config.Config{DefaultRepository: "r", Datasets: []config.DatasetConfig{{Path: filepath.Join(dir, "*.ttl")}}}, OSFileSystem{})
	appErr, ok = apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeDatasetNoMatch, appErr.Code)

	_, err = Plan(&config.Config{DefaultRepository: "r", Datasets: []config.DatasetConfig{{Path: filepath.Join(dir, "a.csv")}}}, OSFileSystem{})
	appErr, ok = apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeUnknownFormat, appErr.Code)
}

func TestPlanFilesKeepsArgumentOrder(t *testing.T) {
	items, err := PlanFiles([]string{"/data/z.ttl", "/data/a.nq", "/data/z.ttl"}, "langchain", "urn:g", "")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "/data/z.ttl", items[0].Path)
	assert.Equal(t, "application/n-quads", items[1].Format.ContentType)

	_, err = PlanFiles([]string{"a.ttl"}, "", "", "")
	assert.Error(t, err)
}

func TestMatches(t *testing.T) {
	cfg := &config.Config{Datasets: []config.DatasetConfig{{Path: "/data/*.ttl"}, {Path: "/seed/sw.trig"}}}
	assert.True(t, Matches(cfg, "/data/new.ttl"))
	assert.True(t, Matches(cfg, "/seed/sw.trig"))
	assert.False(t, Matches(cfg, "/data/new.nt"))
}

func TestWatchDirs(t *testing.T) {
	dir := t.TempDir()
	writeData(t, dir, "core/a.ttl", "a")
	writeData(t, dir, "extra/b.ttl", "b")
	writeData(t, dir, "notes.txt", "n")
	writeData(t, dir, "seed/sw.trig", "s")

	cfg := &config.Config{Datasets: []config.DatasetConfig{
		{Path: filepath.Join(dir, "*", "*.ttl")},
		{Path: filepath.Join(dir, "seed", "sw.trig")},
		{Path: filepath.Join(dir, "seed", "other.trig")},
	}}
	got := WatchDirs(cfg, OSFileSystem{})
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "core"),
		filepath.Join(dir, "extra"),
		filepath.Join(dir, "seed"),
		dir,
	}, got)

	assert.True(t, Matches(cfg, filepath.Join(dir, "extra", "new.ttl")))
	assert.False(t, Matches(cfg, filepath.Join(dir, "notes.txt")))
}

func TestDigest(t *testing.T) {
	dir := t.TempDir()
	path := writeData(t, dir, "a.ttl", "hello")

	item := Item{Path: path, ExpectedSHA256: strings.ToUpper(sum("hello"))}
	require.NoError(t, Digest(OSFileSystem{}, &item))
	assert.Equal(t, sum("hello"), item.SHA256)
	assert.EqualValues(t, 5, item.Size)

	cases := []struct {
		name string
		item Item
		code string
	}{
		{"mismatch", Item{Path: path, ExpectedSHA256: sum("other")}, apperrors.CodeChecksumMismatch},
		{"too small", Item{Path: path, MinSize: 100}, apperrors.CodeFileTooSmall},
		{"missing", Item{Path: filepath.Join(dir, "missing.ttl")}, apperrors.CodeFileUnreadable},
		{"directory", Item{Path: dir}, apperrors.CodeFileUnreadable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			it := tc.item
			err := Digest(OSFileSystem{}, &it)
			appErr, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, tc.code, appErr.Code)
			assert.Equal(t, apperrors.ErrCategoryIngest, appErr.Category)
		})
	}
}

func planFor(t *testing.T, files map[string][]string, dir string) []Item {
	t.Helper()
	var datasets []config.DatasetConfig
	order := 0
	for repo, contents := range files {
		for _, c := range contents {
			datasets = append(datasets, config.DatasetConfig{
				Path:       writeData(t, dir, repo+"-"+c+".ttl", c),
				Repository: repo,
				Order:      order,
			})
			order++
		}
	}
	items, err := Plan(&config.Config{Datasets: datasets}, OSFileSystem{})
	require.NoError(t, err)
	return items
}

func TestLoadUploadsInOrderAndSkipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	client := newFakeGraphDB("langchain", "other")
	l, store := newTestLoader(t, client, Options{Parallel: 2})
	ctx := context.Background()

	items := planFor(t, map[string][]string{"langchain": {"one", "two", "three"}, "other": {"x"}}, dir)
	run, err := store.BeginRun(ctx, "load")
	require.NoError(t, err)

	report, err := l.Load(ctx, run.ID, items)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Loaded)
	assert.EqualValues(t, len("one")+len("two")+len("three")+len("x"), report.Bytes)
	assert.Equal(t, []string{"one", "two", "three"}, client.bodies("langchain"))
	assert.Equal(t, []string{"x"}, client.bodies("other"))

	again, err := l.Load(ctx, run.ID, planFor(t, map[string][]string{"langchain": {"one", "two", "three"}, "other": {"x"}}, dir))
	require.NoError(t, err)
	assert.Equal(t, 4, again.Skipped)
	assert.Len(t, client.bodies("langchain"), 3)

	forced := New(client, store, OSFileSystem{}, logger.NewMockLogger(), Options{Force: true, Policy: readiness.Policy{Attempts: 1}})
	report, err = forced.Load(ctx, run.ID, items)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Loaded)
	assert.Len(t, client.bodies("langchain"), 6)
}

func TestLoadRetriesTransientFailures(t *testing.T) {
	dir := t.TempDir()
	client := newFakeGraphDB("langchain")
	client.failures["langchain/one"] = []error{
		&graphdb.StatusError{StatusCode: http.StatusServiceUnavailable},
		&graphdb.StatusError{StatusCode: http.StatusBadGateway},
	}
	l, _ := newTestLoader(t, client, Options{})

	report, err := l.Load(context.Background(), "", planFor(t, map[string][]string{"langchain": {"one"}}, dir))
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, 3, report.Results[0].Attempts)
	assert.Equal(t, StatusLoaded, report.Results[0].Status)
}

func TestLoadPermanentFailureStopsRepository(t *testing.T) {
	dir := t.TempDir()
	client := newFakeGraphDB("langchain")
	client.failures["langchain/one"] = []error{
		apperrors.New(apperrors.ErrCategoryNetwork, apperrors.CodeUploadFailed, "statement upload failed",
			&graphdb.StatusError{StatusCode: http.StatusBadRequest}),
	}
	l, store := newTestLoader(t, client, Options{})
	ctx := context.Background()
	run, err := store.BeginRun(ctx, "load")
	require.NoError(t, err)

	report, err := l.Load(ctx, run.ID, planFor(t, map[string][]string{"langchain": {"one", "two"}}, dir))
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeUploadFailed, appErr.Code)
	assert.Equal(t, 1, appErr.Metadata["attempts"])
	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, client.bodies("langchain"))

	history, err := store.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, ledger.LoadFailed, history[0].Status)
}

func TestLoadChecksumMismatchBeforeAnyUpload(t *testing.T) {
	dir := t.TempDir()
	client := newFakeGraphDB("langchain")
	l, _ := newTestLoader(t, client, Options{})

	items := planFor(t, map[string][]string{"langchain": {"one", "two"}}, dir)
	items[1].ExpectedSHA256 = sum("not two")

	_, err := l.Load(context.Background(), "", items)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeChecksumMismatch, appErr.Code)
	assert.Empty(t, client.bodies("langchain"))
}

func TestVerifyRunsBeforePrepare(t *testing.T) {
	dir := t.TempDir()
	client := newFakeGraphDB("langchain")
	l, _ := newTestLoader(t, client, Options{})
	ctx := context.Background()

	items := planFor(t, map[string][]string{"langchain": {"one"}}, dir)
	items[0].ExpectedSHA256 = sum("not one")

	err := l.Verify(ctx, items)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeChecksumMismatch))
	assert.Empty(t, client.cleared)
	assert.Empty(t, items[0].SHA256)

	items[0].ExpectedSHA256 = sum("one")
	require.NoError(t, l.Verify(ctx, items))
	assert.Equal(t, sum("one"), items[0].SHA256)

	// Digested items are trusted and not read again.
	digested := []Item{{Path: filepath.Join(dir, "gone.ttl"), Repository: "langchain", SHA256: sum("x")}}
	require.NoError(t, l.Verify(ctx, digested))
}

func TestLoadDryRun(t *testing.T) {
	dir := t.TempDir()
	client := newFakeGraphDB()
	l, _ := newTestLoader(t, client, Options{DryRun: true})

	report, err := l.Load(context.Background(), "", planFor(t, map[string][]string{"langchain": {"one", "two"}}, dir))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Planned)
	assert.NotEmpty(t, report.Results[0].Item.SHA256)
	assert.Empty(t, client.bodies("langchain"))
}

func TestLoadInterrupted(t *testing.T) {
	dir := t.TempDir()
	l, _ := newTestLoader(t, newFakeGraphDB("langchain"), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Load(ctx, "", planFor(t, map[string][]string{"langchain": {"one"}}, dir))
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeInterrupted, appErr.Code)
}

func TestPrepare(t *testing.T) {
	dir := t.TempDir()
	repoConfig := writeData(t, dir, "langchain-config.ttl", "@prefix rep: <x> .")
	client := newFakeGraphDB("existing")
	l, store := newTestLoader(t, client, Options{})
	ctx := context.Background()

	run, err := store.BeginRun(ctx, "load")
	require.NoError(t, err)
	require.NoError(t, store.RecordLoad(ctx, ledger.LoadRecord{RunID: run.ID, Path: "a.ttl", Repository: "existing", SHA256: "x", Format: "turtle", Status: ledger.LoadLoaded}))
	require.NoError(t, store.RecordLoad(ctx, ledger.LoadRecord{RunID: run.ID, Path: "b.ttl", Repository: "langchain", SHA256: "y", Format: "turtle", Status: ledger.LoadLoaded}))

	repos := []config.RepositoryConfig{
		{ID: "langchain", ConfigFile: repoConfig},
		{ID: "existing", ClearBeforeLoad: true},
	}
	require.NoError(t, l.Prepare(ctx, repos, []Item{{Repository: "existing"}}))
	assert.Equal(t, []string{"langchain-config.ttl:@prefix rep: <x> ."}, client.created)
	assert.Equal(t, []string{"existing"}, client.cleared)

	_, ok, err := store.LastLoad(ctx, ledger.Key{Path: "a.ttl", Repository: "existing"})
	require.NoError(t, err)
	assert.False(t, ok, "cleared repository history is forgotten")

	_, ok, err = store.LastLoad(ctx, ledger.Key{Path: "b.ttl", Repository: "langchain"})
	require.NoError(t, err)
	assert.False(t, ok, "created repository history is forgotten")

	err = l.Prepare(ctx, nil, []Item{{Repository: "missing"}})
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeMissingRepository, appErr.Code)
}

type countingReporter struct {
	starts, completes int
	last              int64
}

func (c *countingReporter) OnStart(string, int64) {
	c.starts++
}

func (c *countingReporter) OnProgress(_ string, current, _ int64, _ float64) {
	c.last = current
}

func (c *countingReporter) OnComplete(string, int64, time.Duration) {
	c.completes++
}

func TestProgressReaderReportsCompletionOnce(t *testing.T) {
	rep := &countingReporter{}
	pr := NewProgressReader(strings.NewReader("0123456789"), 10, rep, "a.ttl")

	data, err := io.ReadAll(pr)
	require.NoError(t, err)
	assert.Len(t, data, 10)
	_, err = pr.Read(make([]byte, 1))
	assert.Equal(t, io.EOF, err)

	assert.Equal(t, 1, rep.starts)
	assert.Equal(t, 1, rep.completes)
	assert.EqualValues(t, 10, rep.last)
	assert.EqualValues(t, 10, pr.Current())
}

func TestConsoleProgressReporter(t *testing.T) {
	var buf strings.Builder
	c := NewConsoleProgressReporter(&buf)
	c.OnStart("a.ttl", 2048)
	c.OnComplete("a.ttl", 2048, time.Second)

	out := buf.String()
	assert.Contains(t, out, "uploading 2.0 KiB")
	assert.Contains(t, out, "100.0%")
	assert.Equal(t, "512 B", humanBytes(512))
	assert.Equal(t, "1.5 MiB", humanBytes(1536*1024))
}
