package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"graphseed/internal/app"
	"graphseed/internal/config"
	apperrors "graphseed/internal/errors"
	errlog "graphseed/internal/errors/logging"
	"graphseed/internal/logger"
	"graphseed/internal/menu"
	"graphseed/internal/watch"

	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	envFile    string
	url        string
	repository string
	logLevel   string
	logFormat  string
	noLedger   bool
}

type cli struct {
	stdout io.Writer
	stderr io.Writer
	flags  globalFlags
	log    logger.Logger

	// newApp is replaced in tests.
	newApp func(cfg *config.Config, log logger.Logger) (*app.App, error)
}

func newCLI(stdout, stderr io.Writer) *cli {
	c := &cli{stdout: stdout, stderr: stderr}
	c.newApp = func(cfg *config.Config, log logger.Logger) (*app.App, error) {
		return app.New(cfg, log, app.WithOutput(c.stdout))
	}
	return c
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "graphseed",
		Short:         "Start GraphDB, wait for it and seed repositories with RDF data",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       app.Version,
		Args:          usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&c.flags.configPath, "config", "c", "", "configuration file (YAML or TOML)")
	pf.StringVar(&c.flags.envFile, "env-file", ".env", "dotenv file with GRAPHSEED_* overrides")
	pf.StringVar(&c.flags.url, "url", "", "GraphDB base URL")
	pf.StringVarP(&c.flags.repository, "repository", "r", "", "default repository id")
	pf.StringVar(&c.flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&c.flags.logFormat, "log-format", "", "log format (console, json)")
	pf.BoolVar(&c.flags.noLedger, "no-ledger", false, "do not read or write the load ledger")

	root.AddCommand(
		c.bootstrapCommand(),
		c.waitCommand(),
		c.loadCommand(),
		c.statusCommand(),
		c.historyCommand(),
		c.watchCommand(),
		c.menuCommand(),
		c.versionCommand(),
	)
	return root
}

// usageError marks a command line the user has to fix.
func usageError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.New(apperrors.ErrCategoryValidation, apperrors.CodeValidationGeneric, "invalid usage", err).
		WithModule("cli")
}

func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return usageError(validate(cmd, args))
	}
}

// loadConfig layers file, dotenv and environment, then applies flags.
func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{Path: c.flags.configPath, DotEnv: c.flags.envFile})
	if err != nil {
		return nil, err
	}
	c.applyFlags(cfg)
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *cli) applyFlags(cfg *config.Config) {
	if c.flags.url != "" {
		cfg.Server.URL = c.flags.url
	}
	if c.flags.repository != "" {
		cfg.DefaultRepository = c.flags.repository
	}
	if c.flags.logLevel != "" {
		cfg.Log.Level = c.flags.logLevel
	}
	if c.flags.logFormat != "" {
		cfg.Log.Format = c.flags.logFormat
	}
	if c.flags.noLedger {
		cfg.Ledger.Enabled = false
	}
}

func (c *cli) newLogger(cfg *config.Config) logger.Logger {
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logger.LevelInfo
	}
	return logger.New(
		logger.WithOutput(c.stderr),
		logger.WithLevel(level),
		logger.WithFormat(logger.Format(cfg.Log.Format)),
	)
}

// withApp builds the App for one command invocation and closes it after.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	c.log = c.newLogger(cfg)
	a, err := c.newApp(cfg, c.log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			c.log.Warn("Failed to close ledger: %v", cerr)
		}
	}()
	return fn(cmd.Context(), a)
}

// report logs the final error once, with AppError metadata when present.
func (c *cli) report(ctx context.Context, err error) {
	if err == nil {
		return
	}
	if app.ExitCode(err) == app.ExitInterrupted {
		if c.log != nil {
			c.log.Info("Interrupted, exiting")
		}
		return
	}
	if c.log == nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return
	}
	errlog.Error(ctx, c.log, "graphseed failed", err)
}

func (c *cli) bootstrapCommand() *cobra.Command {
	var opts app.BootstrapOptions
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Start the server if configured, wait until ready and load all datasets",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Bootstrap(ctx, opts)
			})
		},
	}
	cmd.Flags().BoolVar(&opts.ExitAfterLoad, "exit-after-load", false, "stop the started server once loading finishes")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "upload files even if the ledger shows them loaded")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "plan and checksum without contacting the server")
	return cmd
}

func (c *cli) waitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "wait",
		Short: "Wait until the GraphDB REST API answers",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Wait(ctx)
			})
		},
	}
}

func (c *cli) loadCommand() *cobra.Command {
	var opts app.LoadOptions
	cmd := &cobra.Command{
		Use:   "load [files...]",
		Short: "Load the configured datasets, or the given files into --repository, on a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Files = args
			if len(opts.Files) == 0 && (opts.Context != "" || opts.Format != "") {
				return apperrors.New(apperrors.ErrCategoryValidation, apperrors.CodeValidationGeneric,
					"--context and --format apply only to explicit files", nil)
			}
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				_, err := a.Load(ctx, opts)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&opts.Context, "context", "", "named graph IRI for explicit files")
	cmd.Flags().StringVar(&opts.Format, "format", "", "RDF format for explicit files (default: by extension)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "upload files even if the ledger shows them loaded")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "plan and checksum without uploading")
	return cmd
}

func (c *cli) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Probe the server once and list repositories",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Status(ctx)
			})
		},
	}
}

func (c *cli) historyCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent loads from the ledger",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.History(ctx, limit)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of records to show (0 for all)")
	return cmd
}

func (c *cli) watchCommand() *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Load datasets, then reload files whenever they change",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Watch(ctx, debounce)
			})
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before reloading changed files")
	return cmd
}

func (c *cli) menuCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Interactive menu",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return menu.NewMenu(a.Console(), a.MenuActions(), app.Version).ShowMainMenu(ctx)
			})
		},
	}
}

func (c *cli) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  usageArgs(cobra.NoArgs),
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "graphseed %s\n", app.Version)
		},
	}
}
