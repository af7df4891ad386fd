package app

import (
	"os"
	"os/exec"
	"path/filepath"

	"graphseed/internal/config"
	apperrors "graphseed/internal/errors"
	"graphseed/internal/logger"
)

type check struct {
	name      string
	operation string
	category  apperrors.ErrorCategory
	fn        func() error
}

// Preflight checks the local environment before anything is started.
type Preflight struct {
	config *config.Config
	logger logger.Logger
	// minFreeMB is the free space required next to the ledger.
	minFreeMB uint64
}

// NewPreflight constructs a Preflight for cfg.
func NewPreflight(cfg *config.Config, log logger.Logger) *Preflight {
	return &Preflight{config: cfg, logger: log, minFreeMB: 64}
}

// Validate runs the checks in order and returns the first failure.
func (p *Preflight) Validate() error {
	return p.run([]check{
		{"Server command", "preflight.serverCommand", apperrors.ErrCategoryProcess, p.validateServerCommand},
		{"Working directory", "preflight.workdir", apperrors.ErrCategoryProcess, p.validateWorkdir},
		{"Ledger directory", "preflight.ledger", apperrors.ErrCategoryStorage, p.validateLedgerDir},
	})
}

func (p *Preflight) run(checks []check) error {
	for _, c := range checks {
		if err := c.fn(); err != nil {
			return apperrors.Wrap(err, c.category, codeForCategory(c.category), c.name+" check failed", "preflight", c.operation)
		}
	}
	return nil
}

func (p *Preflight) validateServerCommand() error {
	proc := p.config.Process
	if !proc.Enabled || len(proc.Command) == 0 {
		return nil
	}
	path, err := exec.LookPath(proc.Command[0])
	if err != nil {
		return apperrors.New(apperrors.ErrCategoryProcess, apperrors.CodeProcessStart, "server command not found", err).
			WithModule("preflight").
			WithOperation("preflight.serverCommand").
			WithField("command", proc.Command[0])
	}
	p.logger.Debug("Server command resolved to %s", path)
	return nil
}

func (p *Preflight) validateWorkdir() error {
	dir := p.config.Process.Workdir
	if !p.config.Process.Enabled || dir == "" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return apperrors.New(apperrors.ErrCategoryProcess, apperrors.CodeProcessStart, "server workdir is not a directory", nil).
			WithModule("preflight").
			WithOperation("preflight.workdir").
			WithField("path", dir)
	}
	return nil
}

func (p *Preflight) validateLedgerDir() error {
	if !p.config.Ledger.Enabled {
		return nil
	}
	dir := filepath.Dir(p.config.Ledger.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	available, ok := freeSpaceMB(dir)
	if !ok {
		return nil
	}
	if available < p.minFreeMB {
		return apperrors.New(apperrors.ErrCategoryStorage, apperrors.CodeLedgerOpen, "insufficient disk space for the ledger", nil).
			WithModule("preflight").
			WithOperation("preflight.ledger").
			WithField("required_mb", p.minFreeMB).
			WithField("available_mb", available)
	}
	p.logger.Debug("Ledger directory free space: %d MB", available)
	return nil
}
