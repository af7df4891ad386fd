package loader

import (
	"crypto/sha256"
	stdErrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	apperrors "graphseed/internal/errors"
)

// CalculateSHA256 returns the SHA256 checksum for the provided reader.
func CalculateSHA256(r io.Reader) (string, error) {
	hasher := sha256.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return "", errors.Wrap(err, "failed to read data for checksum")
	}
	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}

// CalculateFileChecksum returns the SHA256 hash of the file at filePath.
func CalculateFileChecksum(fs FileSystem, filePath string) (string, error) {
	file, err := fs.Open(filePath)
	if err != nil {
		return "", errors.Wrapf(err, "failed to open file: %s", filePath)
	}
	defer file.Close()

	return CalculateSHA256(file)
}

// ValidateChecksum compares a computed hash against the declared one.
func ValidateChecksum(filePath, expectedHash, actual string) error {
	expected := strings.ToLower(strings.TrimSpace(expectedHash))
	if expected == "" {
		return nil
	}
	if actual != expected {
		return errors.Errorf("checksum mismatch for %s: expected %s, got %s", filePath, expected, actual)
	}
	return nil
}

// ValidateFileSize ensures that the file meets the specified minimum size.
func ValidateFileSize(size, minSize int64, filePath string) error {
	if minSize <= 0 || size >= minSize {
		return nil
	}
	return errors.Errorf("file size %d bytes is less than minimum %d bytes (%s)", size, minSize, filePath)
}

// Digest fills in the size and SHA256 of item and checks them against the
// dataset's declared expectations.
func Digest(fs FileSystem, item *Item) error {
	info, err := fs.Stat(item.Path)
	if err != nil {
		msg := "dataset file is unreadable"
		if stdErrors.Is(err, os.ErrNotExist) {
			msg = "dataset file does not exist"
		}
		return ingestError(apperrors.CodeFileUnreadable, msg, item, err)
	}
	if info.IsDir() {
		return ingestError(apperrors.CodeFileUnreadable, "dataset path is a directory", item, nil)
	}
	item.Size = info.Size()

	if err := ValidateFileSize(item.Size, item.MinSize, item.Path); err != nil {
		return ingestError(apperrors.CodeFileTooSmall, "dataset file is smaller than expected", item, err).
			WithField("size", item.Size).
			WithField("min_size", item.MinSize)
	}

	sum, err := CalculateFileChecksum(fs, item.Path)
	if err != nil {
		return ingestError(apperrors.CodeFileUnreadable, "failed to checksum dataset file", item, err)
	}
	if err := ValidateChecksum(item.Path, item.ExpectedSHA256, sum); err != nil {
		return ingestError(apperrors.CodeChecksumMismatch, "dataset checksum mismatch", item, err).
			WithField("expected", strings.ToLower(item.ExpectedSHA256)).
			WithField("actual", sum)
	}
	// Only a verified digest is recorded, so Verify never trusts a bad file.
	item.SHA256 = sum
	return nil
}

func ingestError(code, message string, item *Item, err error) *apperrors.AppError {
	return apperrors.New(apperrors.ErrCategoryIngest, code, message, err).
		WithModule("loader").
		WithOperation("Digest").
		WithField("path", item.Path)
}
