package logging

import (
	"context"
	stdErrors "errors"
	"fmt"
	"testing"

	apperrors "graphseed/internal/errors"
	"graphseed/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keysOf(fields []logger.Field) []string {
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.Key)
	}
	return keys
}

func TestFieldsOrderAndReservedKeys(t *testing.T) {
	cause := stdErrors.New("digest differs")
	appErr := apperrors.New(apperrors.ErrCategoryIngest, apperrors.CodeChecksumMismatch, "checksum mismatch", fmt.Errorf("reading: %w", cause)).
		WithModule("loader").
		WithOperation("Digest").
		WithFields(apperrors.Metadata{"path": "b.ttl", "expected": "abc", KeyWhere: "shadowed"})

	fields := Fields(appErr)
	assert.Equal(t, []string{"error_code", "error_category", "error", "where", "cause", "expected", "path"}, keysOf(fields))
	assert.Equal(t, "loader.Digest", fields[3].Value)
	assert.Equal(t, "digest differs", fields[4].Value)
	assert.Nil(t, Fields(nil))
}

func TestFieldsRecoverable(t *testing.T) {
	appErr := apperrors.NewRecoverable(apperrors.ErrCategoryNetwork, apperrors.CodeUploadFailed, "upload failed", nil)
	assert.Equal(t, []string{"error_code", "error_category", "error", "recoverable"}, keysOf(Fields(appErr)))
}

func TestErrorLogsPlainAndAppErrors(t *testing.T) {
	mock := logger.NewMockLogger()
	ctx := context.Background()

	Error(ctx, mock, "plain failure", stdErrors.New("boom"))
	Error(ctx, mock, "app failure", apperrors.New(apperrors.ErrCategoryNetwork, apperrors.CodeNotReady, "not ready", nil))
	Error(ctx, mock, "no error", nil)
	Error(ctx, nil, "ignored", stdErrors.New("x"))

	entries := mock.GetEntries()
	require.Len(t, entries, 3)

	v, ok := entries[0].Field("error")
	require.True(t, ok)
	assert.Equal(t, "boom", v)

	v, ok = entries[1].Field("error_code")
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeNotReady, v)

	assert.Empty(t, entries[2].Fields)
}
