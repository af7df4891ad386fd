// Package loader plans, verifies and uploads RDF dataset files.
package loader

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"graphseed/internal/config"
	apperrors "graphseed/internal/errors"
	"graphseed/internal/graphdb"
	"graphseed/internal/ledger"
	"graphseed/internal/logger"
	"graphseed/internal/readiness"
)

// GraphDB is the slice of the GraphDB client the loader uses.
type GraphDB interface {
	RepositoryExists(ctx context.Context, id string) (bool, error)
	CreateRepository(ctx context.Context, definition io.Reader, filename string) error
	ClearStatements(ctx context.Context, repository, graph string) error
	AddStatements(ctx context.Context, upload graphdb.UploadRequest) error
}

// Result statuses.
const (
	StatusLoaded  = ledger.LoadLoaded
	StatusSkipped = ledger.LoadSkipped
	StatusFailed  = ledger.LoadFailed
	StatusPlanned = "planned"
)

// Options tune a Loader.
type Options struct {
	// Force uploads files even when the ledger shows them as loaded.
	Force bool
	// DryRun plans and checksums without touching the server.
	DryRun   bool
	Parallel int
	Policy   readiness.Policy
	Retry    readiness.Options
	Progress ProgressReporter
}

// Result is the outcome for one item.
type Result struct {
	Item     Item
	Status   string
	Attempts int
	Duration time.Duration
	Err      error
}

// Report summarises a Load call.
type Report struct {
	Loaded   int
	Skipped  int
	Failed   int
	Planned  int
	Bytes    int64
	Duration time.Duration
	Results  []Result
}

func (r *Report) add(res Result) {
	switch res.Status {
	case StatusLoaded:
		r.Loaded++
		r.Bytes += res.Item.Size
	case StatusSkipped:
		r.Skipped++
	case StatusFailed:
		r.Failed++
	case StatusPlanned:
		r.Planned++
	}
	r.Results = append(r.Results, res)
}

// Loader uploads planned items into GraphDB.
type Loader struct {
	client GraphDB
	store  ledger.Store
	fs     FileSystem
	log    logger.Logger
	opts   Options
}

// New constructs a Loader. A nil store disables the ledger.
func New(client GraphDB, store ledger.Store, fs FileSystem, log logger.Logger, opts Options) *Loader {
	if store == nil {
		store = ledger.Noop{}
	}
	if fs == nil {
		fs = OSFileSystem{}
	}
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	if opts.Progress == nil {
		opts.Progress = NoopProgressReporter{}
	}
	if opts.Retry.IsTransient == nil {
		opts.Retry.IsTransient = graphdb.Transient
	}
	return &Loader{client: client, store: store, fs: fs, log: log, opts: opts}
}

// Prepare makes sure every target repository exists, creating declared ones
// from their config_file, and clears those marked clear_before_load.
func (l *Loader) Prepare(ctx context.Context, repos []config.RepositoryConfig, items []Item) error {
	declared := make(map[string]config.RepositoryConfig, len(repos))
	var ids []string
	for _, r := range repos {
		declared[r.ID] = r
		ids = append(ids, r.ID)
	}
	for _, it := range items {
		if _, ok := declared[it.Repository]; !ok {
			declared[it.Repository] = config.RepositoryConfig{ID: it.Repository}
			ids = append(ids, it.Repository)
		}
	}

	for _, id := range ids {
		repo := declared[id]
		if err := l.prepareRepository(ctx, repo); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) prepareRepository(ctx context.Context, repo config.RepositoryConfig) error {
	ctx = logger.ContextWithRepository(ctx, repo.ID)

	exists, err := l.client.RepositoryExists(ctx, repo.ID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCategoryNetwork, apperrors.CodeRequestFailed, "failed to check repository", "loader", "Prepare")
	}

	if !exists {
		if repo.ConfigFile == "" {
			return apperrors.New(apperrors.ErrCategoryValidation, apperrors.CodeMissingRepository, "repository does not exist and has no config_file", nil).
				WithModule("loader").
				WithOperation("Prepare").
				WithField("repository", repo.ID)
		}

		f, err := l.fs.Open(repo.ConfigFile)
		if err != nil {
			return apperrors.New(apperrors.ErrCategoryIngest, apperrors.CodeFileUnreadable, "failed to open repository config", err).
				WithModule("loader").
				WithOperation("Prepare").
				WithField("path", repo.ConfigFile)
		}
		err = l.client.CreateRepository(ctx, f, filepath.Base(repo.ConfigFile))
		f.Close()
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCategoryNetwork, apperrors.CodeCreateRepoFail, "failed to create repository", "loader", "Prepare")
		}
		// A new repository holds none of the statements the ledger remembers.
		forgotten, err := l.store.Forget(ctx, repo.ID)
		if err != nil {
			return err
		}
		l.log.InfoContext(ctx, "Created repository",
			logger.String("config_file", repo.ConfigFile),
			logger.Int64("forgotten_loads", forgotten),
		)
		return nil
	}

	if repo.ClearBeforeLoad {
		if err := l.client.ClearStatements(ctx, repo.ID, ""); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCategoryNetwork, apperrors.CodeRequestFailed, "failed to clear repository", "loader", "Prepare")
		}
		forgotten, err := l.store.Forget(ctx, repo.ID)
		if err != nil {
			return err
		}
		l.log.InfoContext(ctx, "Cleared repository", logger.Int64("forgotten_loads", forgotten))
	}
	return nil
}

// Verify digests every item in place and checks declared sizes and
// checksums. Items that already carry a digest are not read again. Callers
// run it before Prepare so a bad file never leaves a cleared repository.
func (l *Loader) Verify(ctx context.Context, items []Item) error {
	for i := range items {
		if err := ctx.Err(); err != nil {
			return apperrors.Interrupted("loader", "Verify", err)
		}
		if items[i].SHA256 != "" {
			continue
		}
		if err := Digest(l.fs, &items[i]); err != nil {
			return err
		}
	}
	return nil
}

// Load verifies any items not yet verified and then uploads them.
// Repositories load in parallel; items inside one repository load strictly
// in plan order. The first failure stops its repository and keeps the
// others from starting new items.
func (l *Loader) Load(ctx context.Context, runID string, items []Item) (Report, error) {
	start := time.Now()
	var report Report

	if err := l.Verify(ctx, items); err != nil {
		return report, err
	}

	if l.opts.DryRun {
		for _, it := range items {
			report.add(Result{Item: it, Status: StatusPlanned})
		}
		report.Duration = time.Since(start)
		return report, nil
	}

	var (
		mu      sync.Mutex
		results = make(map[string][]Result)
	)
	groups, order := groupByRepository(items)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Parallel)
	for _, repo := range order {
		repoItems := groups[repo]
		g.Go(func() error {
			for _, it := range repoItems {
				if gctx.Err() != nil {
					return nil
				}
				res := l.loadItem(ctx, runID, it)
				mu.Lock()
				results[it.Repository] = append(results[it.Repository], res)
				mu.Unlock()
				if res.Err != nil {
					return res.Err
				}
			}
			return nil
		})
	}
	err := g.Wait()

	for _, repo := range order {
		for _, res := range results[repo] {
			report.add(res)
		}
	}
	report.Duration = time.Since(start)
	if err == nil && ctx.Err() != nil {
		err = apperrors.Interrupted("loader", "Load", ctx.Err())
	}
	return report, err
}

func (l *Loader) loadItem(ctx context.Context, runID string, it Item) Result {
	ctx = logger.ContextWithRepository(ctx, it.Repository)
	start := time.Now()
	rec := ledger.LoadRecord{
		RunID:      runID,
		Path:       it.Path,
		Repository: it.Repository,
		Context:    it.Context,
		SHA256:     it.SHA256,
		Size:       it.Size,
		Format:     it.Format.Name,
	}

	if !l.opts.Force {
		last, ok, err := l.store.LastLoad(ctx, ledger.Key{Path: it.Path, Repository: it.Repository, Context: it.Context})
		if err != nil {
			l.log.WarnContext(ctx, "Ledger lookup failed, uploading anyway", logger.String("path", it.Path), logger.Error(err))
		} else if ok && last.SHA256 == it.SHA256 {
			l.log.InfoContext(ctx, "Skipping unchanged file",
				logger.String("path", it.Path),
				logger.String("loaded_at", last.LoadedAt.Format(time.RFC3339)),
			)
			rec.Status = ledger.LoadSkipped
			l.record(ctx, rec)
			return Result{Item: it, Status: StatusSkipped}
		}
	}

	attempts := 0
	retryOpts := l.opts.Retry
	retryOpts.OnRetry = func(attempt int, delay time.Duration, err error) {
		l.log.WarnContext(ctx, "Upload failed, retrying",
			logger.String("path", it.Path),
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Error(err),
		)
	}
	err := readiness.Retry(ctx, l.opts.Policy, retryOpts, func(ctx context.Context, attempt int) error {
		attempts = attempt
		return l.upload(ctx, it)
	})
	rec.Duration = time.Since(start)

	if err != nil {
		appErr := uploadFailure(err, it, attempts)
		rec.Status = ledger.LoadFailed
		rec.Error = appErr.Error()
		l.record(ctx, rec)
		return Result{Item: it, Status: StatusFailed, Attempts: attempts, Duration: rec.Duration, Err: appErr}
	}

	rec.Status = ledger.LoadLoaded
	l.record(ctx, rec)
	l.log.InfoContext(ctx, "Loaded file",
		logger.String("path", it.Path),
		logger.String("format", it.Format.Name),
		logger.Int64("bytes", it.Size),
		logger.Int("attempts", attempts),
		logger.Duration("elapsed", rec.Duration),
	)
	return Result{Item: it, Status: StatusLoaded, Attempts: attempts, Duration: rec.Duration}
}

func (l *Loader) upload(ctx context.Context, it Item) error {
	f, err := l.fs.Open(it.Path)
	if err != nil {
		return apperrors.New(apperrors.ErrCategoryIngest, apperrors.CodeFileUnreadable, "failed to open dataset file", err).
			WithModule("loader").
			WithOperation("Load").
			WithField("path", it.Path)
	}
	defer f.Close()

	body := NewProgressReader(f, it.Size, l.opts.Progress, filepath.Base(it.Path))
	return l.client.AddStatements(ctx, graphdb.UploadRequest{
		Repository: it.Repository,
		Context:    it.Context,
		Format:     it.Format,
		Body:       body,
		Size:       it.Size,
		Gzip:       it.Gzip,
	})
}

// record logs ledger failures instead of failing a finished upload.
func (l *Loader) record(ctx context.Context, rec ledger.LoadRecord) {
	if err := l.store.RecordLoad(ctx, rec); err != nil {
		l.log.WarnContext(ctx, "Failed to record load in ledger", logger.String("path", rec.Path), logger.Error(err))
	}
}

func uploadFailure(err error, it Item, attempts int) *apperrors.AppError {
	if apperrors.IsCancelled(err) {
		return apperrors.Interrupted("loader", "Load", err).WithField("path", it.Path)
	}
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.New(apperrors.ErrCategoryNetwork, apperrors.CodeUploadFailed, "statement upload failed", err)
	}
	return appErr.
		Annotate("loader", "Load").
		WithField("path", it.Path).
		WithField("repository", it.Repository).
		WithField("attempts", attempts)
}

func groupByRepository(items []Item) (map[string][]Item, []string) {
	groups := make(map[string][]Item)
	var order []string
	for _, it := range items {
		if _, ok := groups[it.Repository]; !ok {
			order = append(order, it.Repository)
		}
		groups[it.Repository] = append(groups[it.Repository], it)
	}
	return groups, order
}
