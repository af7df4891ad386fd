// Package app wires configuration, the GraphDB client, the server process,
// the loader and the ledger into graphseed's commands.
package app

import (
	"context"
	"io"
	"os"
	"sync"

	"graphseed/internal/config"
	apperrors "graphseed/internal/errors"
	"graphseed/internal/graphdb"
	"graphseed/internal/ledger"
	"graphseed/internal/loader"
	"graphseed/internal/logger"
	"graphseed/internal/process"
	"graphseed/internal/readiness"
	"graphseed/internal/ui"
)

// Version is stamped at build time with -ldflags "-X graphseed/internal/app.Version=...".
var Version = "dev"

// App holds the collaborators shared by all commands.
type App struct {
	cfg      *config.Config
	log      logger.Logger
	console  *ui.Console
	printer  *ui.Printer
	client   *graphdb.Client
	prober   *readiness.Prober
	executor process.Executor
	fs       loader.FileSystem
	sleep    readiness.Sleeper

	ledgerOnce sync.Once
	store      ledger.Store
	storeErr   error
}

// Option customises App construction.
type Option func(*appOptions)

type appOptions struct {
	output     io.Writer
	httpClient graphdb.HTTPClient
	executor   process.Executor
	fs         loader.FileSystem
	sleep      readiness.Sleeper
	store      ledger.Store
}

// WithOutput redirects plain output (tables, banner).
func WithOutput(w io.Writer) Option {
	return func(o *appOptions) { o.output = w }
}

// WithHTTPClient replaces the HTTP client used for GraphDB calls.
func WithHTTPClient(c graphdb.HTTPClient) Option {
	return func(o *appOptions) { o.httpClient = c }
}

// WithExecutor replaces the process launcher.
func WithExecutor(e process.Executor) Option {
	return func(o *appOptions) { o.executor = e }
}

// WithFileSystem replaces the dataset file system.
func WithFileSystem(fs loader.FileSystem) Option {
	return func(o *appOptions) { o.fs = fs }
}

// WithSleeper replaces the sleep used between retries.
func WithSleeper(s readiness.Sleeper) Option {
	return func(o *appOptions) { o.sleep = s }
}

// WithLedger injects an already opened ledger.
func WithLedger(s ledger.Store) Option {
	return func(o *appOptions) { o.store = s }
}

// New builds an App from a validated configuration.
func New(cfg *config.Config, log logger.Logger, opts ...Option) (*App, error) {
	o := appOptions{output: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	clientOpts := []graphdb.Option{graphdb.WithUserAgent("graphseed/" + Version)}
	if cfg.Server.Username != "" {
		clientOpts = append(clientOpts, graphdb.WithBasicAuth(cfg.Server.Username, cfg.Server.Password))
	}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, graphdb.WithHTTPClient(o.httpClient))
	}
	client, err := graphdb.NewClient(cfg.Server.URL, cfg.Server.RequestTimeout, clientOpts...)
	if err != nil {
		return nil, err
	}

	if o.executor == nil {
		o.executor = process.NewLauncher(log, cfg.Process.StopTimeout)
	}
	if o.fs == nil {
		o.fs = loader.OSFileSystem{}
	}

	a := &App{
		cfg:      cfg,
		log:      log,
		console:  ui.NewConsole(log, o.output),
		printer:  ui.NewPrinter(o.output),
		client:   client,
		executor: o.executor,
		fs:       o.fs,
		sleep:    o.sleep,
		store:    o.store,
	}
	if o.store != nil {
		a.ledgerOnce.Do(func() {})
	}
	a.prober = readiness.NewProber(client, cfg.Readiness.Path, readiness.ReadinessPolicy(cfg.Readiness), log,
		readiness.WithRetryOptions(readiness.Options{Sleep: o.sleep}))
	return a, nil
}

// Console exposes the console used for output.
func (a *App) Console() *ui.Console {
	return a.console
}

// Close releases the ledger.
func (a *App) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

// ledger opens the load history on first use.
func (a *App) ledger(ctx context.Context) (ledger.Store, error) {
	a.ledgerOnce.Do(func() {
		if !a.cfg.Ledger.Enabled {
			a.store = ledger.Noop{}
			return
		}
		store, err := ledger.Open(ctx, a.cfg.Ledger.Path)
		if err != nil {
			a.storeErr = err
			return
		}
		a.store = store
	})
	return a.store, a.storeErr
}

// beginRun opens the ledger and records a run; the returned finish func
// stores the outcome derived from err.
func (a *App) beginRun(ctx context.Context, command string) (ledger.Store, ledger.Run, func(err error), error) {
	store, err := a.ledger(ctx)
	if err != nil {
		return nil, ledger.Run{}, nil, err
	}
	run, err := store.BeginRun(ctx, command)
	if err != nil {
		return nil, ledger.Run{}, nil, err
	}
	finish := func(err error) {
		status := ledger.RunSucceeded
		switch {
		case err == nil:
		case apperrors.IsCancelled(err):
			status = ledger.RunInterrupted
		default:
			status = ledger.RunFailed
		}
		// The run context may already be cancelled.
		if ferr := store.FinishRun(context.WithoutCancel(ctx), run.ID, status); ferr != nil {
			a.log.WarnContext(ctx, "Failed to finish ledger run", logger.Error(ferr))
		}
	}
	return store, run, finish, nil
}

// LoadOptions tune a load.
type LoadOptions struct {
	Files      []string
	Repository string
	Context    string
	Format     string
	Force      bool
	DryRun     bool
}

func (a *App) newLoader(store ledger.Store, force, dryRun bool) *loader.Loader {
	var progress loader.ProgressReporter = loader.LogProgressReporter{Log: a.log}
	if a.cfg.Upload.ParallelRepositories == 1 && ui.IsTerminal(os.Stderr) {
		progress = loader.NewConsoleProgressReporter(os.Stderr)
	}
	return loader.New(a.client, store, a.fs, a.log, loader.Options{
		Force:    force,
		DryRun:   dryRun,
		Parallel: a.cfg.Upload.ParallelRepositories,
		Policy:   readiness.UploadPolicy(a.cfg.Upload),
		Retry:    readiness.Options{Sleep: a.sleep},
		Progress: progress,
	})
}

func (a *App) plan(opts LoadOptions) ([]loader.Item, error) {
	if len(opts.Files) > 0 {
		repo := opts.Repository
		if repo == "" {
			repo = a.cfg.DefaultRepository
		}
		return loader.PlanFiles(opts.Files, repo, opts.Context, opts.Format)
	}
	return loader.Plan(a.cfg, a.fs)
}

func summary(r loader.Report) ui.Summary {
	return ui.Summary{
		Loaded:   r.Loaded,
		Skipped:  r.Skipped,
		Failed:   r.Failed,
		Planned:  r.Planned,
		Bytes:    r.Bytes,
		Duration: r.Duration,
	}
}
