// Package errors defines the AppError taxonomy shared by every graphseed
// package. Each error carries a category that decides the exit code and a
// stable code that operators can grep for.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory decides how a failure is reported and which exit code the
// CLI returns.
type ErrorCategory string

const (
	ErrCategorySystem     ErrorCategory = "SYSTEM"
	ErrCategoryNetwork    ErrorCategory = "NETWORK"
	ErrCategoryConfig     ErrorCategory = "CONFIG"
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryProcess    ErrorCategory = "PROCESS"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryIngest     ErrorCategory = "INGEST"
)

// Metadata carries the context of a failure: repository, path, attempts.
type Metadata map[string]interface{}

// AppError is the error type returned across package boundaries.
type AppError struct {
	Code     string
	Category ErrorCategory
	Message  string
	// Module and Operation locate the failure, e.g. "readiness" / "WaitReady".
	Module    string
	Operation string
	Err       error
	Metadata  Metadata
	// Recoverable marks failures a retry may fix.
	Recoverable bool
}

// Error renders "[CATEGORY:CODE] message: cause".
func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s:%s] %s", e.Category, e.Code, e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches another AppError by code, so errors.Is(err, &AppError{Code: CodeNotReady})
// finds a readiness timeout anywhere in the chain.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok || e == nil || t == nil {
		return false
	}
	return t.Code != "" && e.Code == t.Code
}

// Where returns "module.operation", or whichever half is set.
func (e *AppError) Where() string {
	switch {
	case e.Module != "" && e.Operation != "":
		return e.Module + "." + e.Operation
	case e.Module != "":
		return e.Module
	default:
		return e.Operation
	}
}

func (e *AppError) WithOperation(operation string) *AppError {
	e.Operation = operation
	return e
}

func (e *AppError) WithModule(module string) *AppError {
	e.Module = module
	return e
}

func (e *AppError) WithRecoverable(recoverable bool) *AppError {
	e.Recoverable = recoverable
	return e
}

// WithField sets one metadata entry.
func (e *AppError) WithField(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(Metadata)
	}
	e.Metadata[key] = value
	return e
}

// WithFields merges metadata; later keys win.
func (e *AppError) WithFields(metadata Metadata) *AppError {
	for k, v := range metadata {
		e.WithField(k, v)
	}
	return e
}

// Field returns one metadata entry.
func (e *AppError) Field(key string) (interface{}, bool) {
	if e == nil || e.Metadata == nil {
		return nil, false
	}
	v, ok := e.Metadata[key]
	return v, ok
}

// Annotate fills Module and Operation only where they are still empty, so the
// innermost frame that raised the error keeps ownership of them.
func (e *AppError) Annotate(module, operation string) *AppError {
	if e.Module == "" {
		e.Module = module
	}
	if e.Operation == "" {
		e.Operation = operation
	}
	return e
}

// As returns the outermost AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
