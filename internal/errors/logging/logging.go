// Package logging renders AppErrors as structured log fields.
package logging

import (
	"context"
	"sort"

	apperrors "graphseed/internal/errors"
	"graphseed/internal/logger"
)

// Keys emitted for every AppError. Metadata entries never override them.
const (
	KeyCode        = "error_code"
	KeyCategory    = "error_category"
	KeyWhere       = "where"
	KeyCause       = "cause"
	KeyRecoverable = "recoverable"
)

var reserved = map[string]bool{
	KeyCode:        true,
	KeyCategory:    true,
	KeyWhere:       true,
	KeyCause:       true,
	KeyRecoverable: true,
	"error":        true,
}

// Error logs msg at error level. AppErrors contribute their code, location,
// root cause and metadata; other errors become a single error field.
func Error(ctx context.Context, log logger.Logger, msg string, err error) {
	if log == nil {
		return
	}
	switch appErr, ok := apperrors.As(err); {
	case err == nil:
		log.ErrorContext(ctx, msg)
	case !ok:
		log.ErrorContext(ctx, msg, logger.Error(err))
	default:
		log.ErrorContext(ctx, msg, Fields(appErr)...)
	}
}

// Fields converts appErr into logger fields: fixed keys first, then metadata
// in key order.
func Fields(appErr *apperrors.AppError) []logger.Field {
	if appErr == nil {
		return nil
	}

	fields := []logger.Field{
		logger.String(KeyCode, appErr.Code),
		logger.String(KeyCategory, string(appErr.Category)),
		logger.String("error", appErr.Message),
	}
	if where := appErr.Where(); where != "" {
		fields = append(fields, logger.String(KeyWhere, where))
	}
	if appErr.Err != nil {
		fields = append(fields, logger.String(KeyCause, apperrors.RootCause(appErr.Err).Error()))
	}
	if appErr.Recoverable {
		fields = append(fields, logger.Bool(KeyRecoverable, true))
	}

	keys := make([]string, 0, len(appErr.Metadata))
	for k := range appErr.Metadata {
		if !reserved[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, logger.Any(k, appErr.Metadata[k]))
	}
	return fields
}
