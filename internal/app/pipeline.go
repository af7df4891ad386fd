package app

import (
	"context"

	apperrors "graphseed/internal/errors"
	"graphseed/internal/logger"
	"graphseed/internal/ui"
)

// Step describes a single bootstrap phase.
type Step struct {
	Name      string
	Operation string
	Category  apperrors.ErrorCategory
	Fn        func(ctx context.Context) error
}

// StepErrorHandler handles step failures.
type StepErrorHandler func(step Step, err error) error

// Pipeline executes steps sequentially.
type Pipeline struct {
	steps   []Step
	console *ui.Console
	logger  logger.Logger
	onError StepErrorHandler
}

// NewPipeline constructs a new pipeline.
func NewPipeline(console *ui.Console, log logger.Logger, steps []Step, handler StepErrorHandler) *Pipeline {
	if handler == nil {
		handler = wrapStepError
	}
	return &Pipeline{
		steps:   steps,
		console: console,
		logger:  log,
		onError: handler,
	}
}

// Execute runs through all steps, stopping at the first failure.
func (p *Pipeline) Execute(ctx context.Context) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return apperrors.Interrupted("app", step.Operation, err)
		}
		p.logger.DebugContext(ctx, "Executing step", logger.String("step", step.Name))

		p.console.StartProgress(step.Name)
		if err := step.Fn(ctx); err != nil {
			p.console.FailProgress(step.Name)
			return p.onError(step, err)
		}
		p.console.StopProgress(step.Name)
	}
	return nil
}

// wrapStepError keeps AppErrors raised inside a step and categorises plain
// errors by the step's category.
func wrapStepError(step Step, err error) error {
	if apperrors.IsCancelled(err) {
		if apperrors.HasCode(err, apperrors.CodeInterrupted) {
			return err
		}
		return apperrors.Interrupted("app", step.Operation, err)
	}
	category := step.Category
	if category == "" {
		category = apperrors.ErrCategorySystem
	}
	return apperrors.Wrap(err, category, codeForCategory(category), step.Name+" failed", "app", step.Operation).
		WithField("step", step.Name)
}

func codeForCategory(category apperrors.ErrorCategory) string {
	switch category {
	case apperrors.ErrCategoryNetwork:
		return apperrors.CodeNetworkGeneric
	case apperrors.ErrCategoryConfig:
		return apperrors.CodeConfigGeneric
	case apperrors.ErrCategoryValidation:
		return apperrors.CodeValidationGeneric
	case apperrors.ErrCategoryProcess:
		return apperrors.CodeProcessGeneric
	case apperrors.ErrCategoryStorage:
		return apperrors.CodeStorageGeneric
	case apperrors.ErrCategoryIngest:
		return apperrors.CodeIngestGeneric
	default:
		return apperrors.CodeSystemGeneric
	}
}
