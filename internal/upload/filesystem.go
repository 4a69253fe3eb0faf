package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FilesystemUploader writes blobs under a local directory served at <baseURL>/blobs/
type FilesystemUploader struct {
	dir     string
	baseURL string
	maxSize int64
	logger  *slog.Logger
}

// NewFilesystemUploader creates the blob directory under dataDir
func NewFilesystemUploader(dataDir, baseURL string, maxSize int64, logger *slog.Logger) (*FilesystemUploader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Join(dataDir, "blobs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &FilesystemUploader{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		maxSize: maxSize,
		logger:  logger,
	}, nil
}

// Dir is the directory blobs are written to
func (f *FilesystemUploader) Dir() string {
	return f.dir
}

// Upload validates and writes the blob; a partially written file never becomes visible
func (f *FilesystemUploader) Upload(ctx context.Context, data []byte, mimeType string) (string, error) {
	mt, err := Validate(data, mimeType, f.maxSize)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUploadRejected, err)
	}

	name := uuid.NewString() + Extension(mt)
	tmp, err := os.CreateTemp(f.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUploadRejected, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		f.logger.Error("Failed to write blob", "name", name, "error", err)
		return "", fmt.Errorf("%w: %w", ErrUploadRejected, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("%w: %w", ErrUploadRejected, err)
	}
	if err := os.Rename(tmpName, filepath.Join(f.dir, name)); err != nil {
		_ = os.Remove(tmpName)
		f.logger.Error("Failed to publish blob", "name", name, "error", err)
		return "", fmt.Errorf("%w: %w", ErrUploadRejected, err)
	}

	f.logger.Debug("Stored blob", "name", name, "size", len(data), "type", mt)
	return f.baseURL + "/blobs/" + name, nil
}
