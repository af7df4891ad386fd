package app

import (
	"context"
	"errors"
	"time"

	apperrors "graphseed/internal/errors"
	"graphseed/internal/ledger"
	"graphseed/internal/loader"
	"graphseed/internal/logger"
	"graphseed/internal/process"
)

// BootstrapOptions tune Bootstrap.
type BootstrapOptions struct {
	// ExitAfterLoad stops the supervised server once loading finishes
	// instead of supervising it until a signal arrives.
	ExitAfterLoad bool
	Force         bool
	DryRun        bool
}

// Bootstrap starts the server when configured, waits for readiness,
// prepares repositories and loads every dataset.
func (a *App) Bootstrap(ctx context.Context, opts BootstrapOptions) (err error) {
	var (
		handle process.Handle
		items  []loader.Item
	)

	// The readiness wait is cancelled with the process exit error as cause.
	serverCtx, cancelServer := context.WithCancelCause(ctx)
	defer cancelServer(nil)

	steps := []Step{
		{
			Name:      "Check environment",
			Operation: "Bootstrap.preflight",
			Category:  apperrors.ErrCategorySystem,
			Fn: func(context.Context) error {
				return NewPreflight(a.cfg, a.log).Validate()
			},
		},
		{
			Name:      "Plan datasets",
			Operation: "Bootstrap.plan",
			Category:  apperrors.ErrCategoryValidation,
			Fn: func(context.Context) error {
				var err error
				items, err = loader.Plan(a.cfg, a.fs)
				return err
			},
		},
	}

	if opts.DryRun {
		steps = append(steps, Step{
			Name:      "Verify datasets",
			Operation: "Bootstrap.load",
			Category:  apperrors.ErrCategoryIngest,
			Fn: func(ctx context.Context) error {
				_, err := a.loadItems(ctx, "bootstrap", items, opts.Force, true, false)
				return err
			},
		})
		return NewPipeline(a.console, a.log, steps, nil).Execute(ctx)
	}

	steps = append(steps, Step{
		Name:      "Verify datasets",
		Operation: "Bootstrap.verify",
		Category:  apperrors.ErrCategoryIngest,
		Fn: func(ctx context.Context) error {
			return a.newLoader(ledger.Noop{}, false, false).Verify(ctx, items)
		},
	})

	if a.cfg.Process.Enabled {
		steps = append(steps, Step{
			Name:      "Start GraphDB server",
			Operation: "Bootstrap.start",
			Category:  apperrors.ErrCategoryProcess,
			Fn: func(ctx context.Context) error {
				var err error
				handle, err = a.executor.Start(ctx, process.Spec{
					Command: a.cfg.Process.Command,
					Dir:     a.cfg.Process.Workdir,
					Env:     a.cfg.Process.Env,
					LogFile: a.cfg.Process.LogFile,
				})
				if err != nil {
					return err
				}
				go func() {
					select {
					case <-handle.Done():
						cancelServer(handle.Wait())
					case <-serverCtx.Done():
					}
				}()
				return nil
			},
		})
	}

	steps = append(steps,
		Step{
			Name:      "Wait for GraphDB",
			Operation: "Bootstrap.wait",
			Category:  apperrors.ErrCategoryNetwork,
			Fn: func(context.Context) error {
				_, err := a.prober.WaitReady(serverCtx)
				if err != nil && ctx.Err() == nil {
					if cause := context.Cause(serverCtx); cause != nil && !errors.Is(cause, context.Canceled) {
						return cause
					}
				}
				return err
			},
		},
		Step{
			Name:      "Prepare repositories",
			Operation: "Bootstrap.prepare",
			Category:  apperrors.ErrCategoryNetwork,
			Fn: func(ctx context.Context) error {
				store, err := a.ledger(ctx)
				if err != nil {
					return err
				}
				return a.newLoader(store, false, false).Prepare(ctx, a.cfg.Repositories, items)
			},
		},
		Step{
			Name:      "Load datasets",
			Operation: "Bootstrap.load",
			Category:  apperrors.ErrCategoryIngest,
			Fn: func(ctx context.Context) error {
				_, err := a.loadItems(ctx, "bootstrap", items, opts.Force, false, false)
				return err
			},
		},
	)

	defer func() {
		if handle != nil && (err != nil || opts.ExitAfterLoad) {
			a.stopServer(handle)
		}
	}()

	if err := NewPipeline(a.console, a.log, steps, nil).Execute(ctx); err != nil {
		return err
	}
	a.console.Success("GraphDB is ready and all datasets are loaded")

	if handle == nil || opts.ExitAfterLoad {
		return nil
	}

	a.log.InfoContext(ctx, "Supervising GraphDB server, press Ctrl+C to stop", logger.Int("pid", handle.PID()))
	select {
	case <-handle.Done():
		return handle.Wait()
	case <-ctx.Done():
		a.stopServer(handle)
		return apperrors.Interrupted("app", "Bootstrap", ctx.Err())
	}
}

func (a *App) stopServer(handle process.Handle) {
	timeout := a.cfg.Process.StopTimeout
	if timeout <= 0 {
		timeout = process.DefaultStopTimeout
	}
	// Give the graceful stop a little longer than the kill deadline.
	ctx, cancel := context.WithTimeout(context.Background(), timeout+5*time.Second)
	defer cancel()
	if err := handle.Stop(ctx); err != nil {
		a.log.WarnContext(ctx, "Failed to stop GraphDB server", logger.Error(err))
	}
}
