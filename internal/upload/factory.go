package upload

import (
	"fmt"
	"log/slog"

	"github.com/johnwmail/clipsync/config"
)

// New creates the configured blob uploader
func New(cfg *config.Config, logger *slog.Logger) (Uploader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.BlobBackend {
	case "filesystem":
		logger.Info("Using filesystem blob storage", "data_dir", cfg.DataDir)
		return NewFilesystemUploader(cfg.DataDir, cfg.GetBaseURL(), cfg.MaxImageSize, logger)
	case "s3":
		logger.Info("Using S3 blob storage", "bucket", cfg.S3Bucket, "prefix", cfg.S3Prefix)
		return NewS3Uploader(cfg.S3Bucket, cfg.S3Prefix, cfg.S3PublicURL, cfg.MaxImageSize, logger)
	default:
		return nil, fmt.Errorf("unsupported blob backend: %s (supported: filesystem, s3)", cfg.BlobBackend)
	}
}
