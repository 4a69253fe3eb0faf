// Package upload is the blob-upload collaborator: it validates an image and stores it
// somewhere that yields a stable, publicly dereferenceable URL.
package upload

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxSize is the upload ceiling for a single image
const DefaultMaxSize = 5 * 1024 * 1024

var (
	// ErrUploadRejected covers validation failures and failed remote calls. No clip may be
	// written after it.
	ErrUploadRejected = errors.New("upload rejected")

	// ErrTooLarge and ErrUnsupportedType refine ErrUploadRejected for validation failures
	ErrTooLarge        = errors.New("image too large")
	ErrUnsupportedType = errors.New("unsupported image type")
)

// allowedTypes maps whitelisted formats to the file extension used for stored blobs
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Uploader stores an image and returns its public URL
type Uploader interface {
	Upload(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Validate checks size and format. The declared mime type, when given, must be whitelisted
// and the sniffed content must be too. It returns the sniffed type.
func Validate(data []byte, declared string, maxSize int64) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty image", ErrUploadRejected)
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if int64(len(data)) > maxSize {
		return "", fmt.Errorf("%w: %w: %d bytes exceeds %d", ErrUploadRejected, ErrTooLarge, len(data), maxSize)
	}

	if declared != "" {
		mt, _, err := mime.ParseMediaType(declared)
		if err != nil {
			return "", fmt.Errorf("%w: %w: %q", ErrUploadRejected, ErrUnsupportedType, declared)
		}
		if _, ok := allowedTypes[strings.ToLower(mt)]; !ok {
			return "", fmt.Errorf("%w: %w: %s", ErrUploadRejected, ErrUnsupportedType, mt)
		}
	}

	detected := mimetype.Detect(data)
	for mt := range allowedTypes {
		if detected.Is(mt) {
			return mt, nil
		}
	}
	return "", fmt.Errorf("%w: %w: content is %s", ErrUploadRejected, ErrUnsupportedType, detected.String())
}

// Extension returns the blob file extension for a whitelisted type
func Extension(mimeType string) string {
	return allowedTypes[mimeType]
}
