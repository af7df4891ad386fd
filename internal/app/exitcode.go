package app

import (
	"context"

	apperrors "graphseed/internal/errors"
	"graphseed/internal/menu"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitInterrupted = 130
)

// ExitCode maps a command error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if apperrors.IsCancelled(err) {
		return ExitInterrupted
	}
	if apperrors.HasCode(err, apperrors.CodeInterrupted) {
		return ExitInterrupted
	}
	switch apperrors.CategoryOf(err) {
	case apperrors.ErrCategoryConfig, apperrors.ErrCategoryValidation:
		return ExitUsage
	default:
		return ExitFailure
	}
}

// MenuActions exposes the commands to the interactive menu.
func (a *App) MenuActions() menu.Actions {
	return menu.Actions{
		Bootstrap: func(ctx context.Context) error {
			return a.Bootstrap(ctx, BootstrapOptions{ExitAfterLoad: true})
		},
		Load: func(ctx context.Context, force bool) error {
			_, err := a.Load(ctx, LoadOptions{Force: force})
			return err
		},
		Status: a.Status,
		History: func(ctx context.Context) error {
			return a.History(ctx, 20)
		},
	}
}
