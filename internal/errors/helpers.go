package errors

import (
	"context"
	"errors"
)

// New creates an AppError in the given category.
func New(category ErrorCategory, code, message string, err error) *AppError {
	return &AppError{
		Code:     code,
		Category: category,
		Message:  message,
		Err:      err,
	}
}

// NewRecoverable creates an AppError flagged as safe to retry.
func NewRecoverable(category ErrorCategory, code, message string, err error) *AppError {
	return New(category, code, message, err).WithRecoverable(true)
}

// Wrap converts err into an AppError. Existing AppErrors are annotated and
// returned as-is; anything else is wrapped with the fallback category and code.
func Wrap(err error, category ErrorCategory, code, message, module, operation string) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := As(err); ok {
		return appErr.Annotate(module, operation)
	}
	return New(category, code, message, err).WithModule(module).WithOperation(operation)
}

// Interrupted reports a cancelled run.
func Interrupted(module, operation string, err error) *AppError {
	return New(ErrCategorySystem, CodeInterrupted, "operation interrupted", err).
		WithModule(module).
		WithOperation(operation)
}

// IsRecoverable reports whether any AppError in the chain is recoverable.
func IsRecoverable(err error) bool {
	if appErr, ok := As(err); ok {
		return appErr.Recoverable
	}
	return false
}

// CategoryOf returns the category of the outermost AppError, or "" when none.
func CategoryOf(err error) ErrorCategory {
	if appErr, ok := As(err); ok {
		return appErr.Category
	}
	return ""
}

// IsCancelled reports whether err stems from context cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code string) bool {
	return errors.Is(err, &AppError{Code: code})
}

// RootCause returns the innermost error of the chain.
func RootCause(err error) error {
	for err != nil {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
	return nil
}
