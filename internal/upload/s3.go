package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
)

type s3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader stores blobs in an S3 bucket. The bucket (or a CDN in front of it, given as
// publicURL) must allow public reads of the stored keys.
type S3Uploader struct {
	bucket    string
	prefix    string
	publicURL string
	maxSize   int64
	client    s3PutAPI
	logger    *slog.Logger
}

// NewS3Uploader creates a new S3Uploader instance
func NewS3Uploader(bucket, prefix, publicURL string, maxSize int64, logger *slog.Logger) (*S3Uploader, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket name must not be empty")
	}
	cfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newS3Uploader(s3.NewFromConfig(cfg), bucket, prefix, publicURL, maxSize, logger), nil
}

func newS3Uploader(client s3PutAPI, bucket, prefix, publicURL string, maxSize int64, logger *slog.Logger) *S3Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	if publicURL == "" {
		publicURL = "https://" + bucket + ".s3.amazonaws.com"
	}
	return &S3Uploader{
		bucket:    bucket,
		prefix:    normalizeS3Prefix(prefix),
		publicURL: strings.TrimRight(publicURL, "/"),
		maxSize:   maxSize,
		client:    client,
		logger:    logger,
	}
}

// Upload validates the image and puts it under a fresh key
func (s *S3Uploader) Upload(ctx context.Context, data []byte, mimeType string) (string, error) {
	mt, err := Validate(data, mimeType, s.maxSize)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	key := applyS3Prefix(s.prefix, uuid.NewString()+Extension(mt))
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(mt),
		CacheControl:  aws.String("public, max-age=3600"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			s.logger.Error("S3 upload failed", "bucket", s.bucket, "key", key,
				"code", apiErr.ErrorCode(), "message", apiErr.ErrorMessage())
		} else {
			s.logger.Error("S3 upload failed", "bucket", s.bucket, "key", key, "error", err)
		}
		return "", fmt.Errorf("%w: s3 put: %w", ErrUploadRejected, err)
	}

	return s.publicURL + "/" + key, nil
}

// normalizeS3Prefix strips a leading slash and guarantees a trailing one
func normalizeS3Prefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

func applyS3Prefix(prefix, name string) string {
	if prefix == "" {
		return name
	}
	// Ensure there is exactly one slash between prefix and name
	if strings.HasSuffix(prefix, "/") {
		return prefix + name
	}
	return prefix + "/" + name
}
