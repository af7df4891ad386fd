package app

import (
	"context"
	"sort"
	"time"

	apperrors "graphseed/internal/errors"
	"graphseed/internal/loader"
	"graphseed/internal/logger"
	"graphseed/internal/ui"
	"graphseed/internal/watch"
)

// Wait blocks until the server answers the readiness probe.
func (a *App) Wait(ctx context.Context) error {
	_, err := a.prober.WaitReady(ctx)
	return err
}

// Load plans, prepares and uploads datasets into an already running server.
func (a *App) Load(ctx context.Context, opts LoadOptions) (loader.Report, error) {
	items, err := a.plan(opts)
	if err != nil {
		return loader.Report{}, err
	}
	return a.loadItems(ctx, "load", items, opts.Force, opts.DryRun, true)
}

func (a *App) loadItems(ctx context.Context, command string, items []loader.Item, force, dryRun, prepare bool) (loader.Report, error) {
	store, run, finish, err := a.beginRun(ctx, command)
	if err != nil {
		return loader.Report{}, err
	}
	ctx = logger.ContextWithTrace(ctx, logger.TraceContext{RunID: run.ID})

	l := a.newLoader(store, force, dryRun)
	if prepare && !dryRun {
		if err := l.Verify(ctx, items); err != nil {
			finish(err)
			return loader.Report{}, err
		}
		if err := l.Prepare(ctx, a.cfg.Repositories, items); err != nil {
			finish(err)
			return loader.Report{}, err
		}
	}

	a.log.InfoContext(ctx, "Loading datasets", logger.Int("files", len(items)), logger.Bool("dry_run", dryRun))
	report, err := l.Load(ctx, run.ID, items)
	finish(err)
	a.printer.PrintSummary(summary(report))
	return report, err
}

// Status probes the server once and prints repository sizes.
func (a *App) Status(ctx context.Context) error {
	repos, err := a.prober.Check(ctx)
	if err != nil {
		a.printer.PrintServerStatus(a.client.BaseURL(), false, apperrors.RootCause(err).Error())
		return err
	}
	a.printer.PrintServerStatus(a.client.BaseURL(), true, "")

	rows := make([]ui.RepositoryRow, 0, len(repos))
	for _, repo := range repos {
		row := ui.RepositoryRow{ID: repo.ID, State: repo.State}
		row.Statements, row.SizeErr = a.client.Size(ctx, repo.ID)
		if row.SizeErr != nil {
			a.log.WarnContext(ctx, "Failed to read repository size", logger.String("repository", repo.ID), logger.Error(row.SizeErr))
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	a.printer.PrintRepositories(rows)
	return nil
}

// History prints the most recent ledger records.
func (a *App) History(ctx context.Context, limit int) error {
	store, err := a.ledger(ctx)
	if err != nil {
		return err
	}
	records, err := store.History(ctx, limit)
	if err != nil {
		return err
	}
	a.printer.PrintHistory(records)
	return nil
}

// Watch loads the configured datasets, then reloads files as they change
// until ctx is cancelled.
func (a *App) Watch(ctx context.Context, debounce time.Duration) error {
	if _, err := a.Load(ctx, LoadOptions{}); err != nil {
		return err
	}

	dirs := loader.WatchDirs(a.cfg, a.fs)

	w := watch.New(a.log, debounce, func(path string) bool {
		return loader.Matches(a.cfg, path)
	})
	a.log.InfoContext(ctx, "Watching datasets for changes", logger.Int("dirs", len(dirs)))

	err := w.Run(ctx, dirs, func(ctx context.Context, paths []string) error {
		return a.reload(ctx, paths)
	})
	if err != nil {
		return err
	}
	return apperrors.Interrupted("app", "Watch", ctx.Err())
}

func (a *App) reload(ctx context.Context, paths []string) error {
	items, err := loader.Plan(a.cfg, a.fs)
	if err != nil {
		return err
	}
	changed := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		changed[p] = struct{}{}
	}

	selected := items[:0]
	for _, it := range items {
		if _, ok := changed[it.Path]; ok {
			selected = append(selected, it)
		}
	}
	if len(selected) == 0 {
		return nil
	}
	_, err = a.loadItems(ctx, "watch", selected, false, false, false)
	return err
}
