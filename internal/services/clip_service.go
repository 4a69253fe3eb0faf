package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/johnwmail/clipsync/internal/metrics"
	"github.com/johnwmail/clipsync/internal/sweeper"
	"github.com/johnwmail/clipsync/internal/upload"
	"github.com/johnwmail/clipsync/models"
	"github.com/johnwmail/clipsync/storage"
)

// DefaultHistoryLimit is the number of live clips delivered to clients
const DefaultHistoryLimit = 10

// ErrEmptyContent is returned for text that is empty after trimming
var ErrEmptyContent = errors.New("empty content")

// ClipService handles per-user clip operations. It holds no per-user state; every call is
// scoped by the user id it is given.
type ClipService struct {
	store        storage.ClipStore
	uploader     upload.Uploader
	historyLimit int
	now          func() time.Time
	logger       *slog.Logger
}

// Options tunes a ClipService. Zero values select defaults.
type Options struct {
	HistoryLimit int
	Now          func() time.Time
	Logger       *slog.Logger
}

// NewClipService creates a new clip service. uploader may be nil when images are not
// accepted; AddImage then rejects every upload.
func NewClipService(store storage.ClipStore, uploader upload.Uploader, opts Options) *ClipService {
	s := &ClipService{
		store:        store,
		uploader:     uploader,
		historyLimit: opts.HistoryLimit,
		now:          opts.Now,
		logger:       opts.Logger,
	}
	if s.historyLimit <= 0 {
		s.historyLimit = DefaultHistoryLimit
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Now returns the service clock
func (s *ClipService) Now() time.Time {
	return s.now()
}

// Store returns the underlying store
func (s *ClipService) Store() storage.ClipStore {
	return s.store
}

// HistoryLimit returns the live list size
func (s *ClipService) HistoryLimit() int {
	return s.historyLimit
}

// AddText writes a text clip. The text is trimmed; empty text returns ErrEmptyContent.
func (s *ClipService) AddText(ctx context.Context, userID, text string, origin models.Origin) (models.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Clip{}, ErrEmptyContent
	}
	return s.write(ctx, userID, models.NewClip(models.TextPayload{Content: text}, s.now(), origin))
}

// AddImage uploads the image and writes an image clip. Nothing is written unless the upload
// produced a URL.
func (s *ClipService) AddImage(ctx context.Context, userID string, data []byte, mimeType string, origin models.Origin) (models.Clip, error) {
	if s.uploader == nil {
		metrics.UploadsRejected.Inc()
		return models.Clip{}, fmt.Errorf("%w: image uploads are disabled", upload.ErrUploadRejected)
	}
	url, err := s.uploader.Upload(ctx, data, mimeType)
	if err != nil {
		metrics.UploadsRejected.Inc()
		if !errors.Is(err, upload.ErrUploadRejected) {
			err = fmt.Errorf("%w: %w", upload.ErrUploadRejected, err)
		}
		return models.Clip{}, err
	}
	if url == "" {
		metrics.UploadsRejected.Inc()
		return models.Clip{}, fmt.Errorf("%w: uploader returned no url", upload.ErrUploadRejected)
	}
	return s.write(ctx, userID, models.NewClip(models.ImagePayload{URL: url}, s.now(), origin))
}

func (s *ClipService) write(ctx context.Context, userID string, clip models.Clip) (models.Clip, error) {
	id, err := s.store.Write(ctx, userID, models.ToRecord(clip))
	if err != nil {
		metrics.StoreErrors.WithLabelValues("write").Inc()
		return models.Clip{}, fmt.Errorf("failed to write clip: %w", err)
	}
	clip.ID = id
	metrics.ClipsWritten.WithLabelValues(string(clip.Kind())).Inc()
	s.logger.Debug("Clip written", "user", userID, "id", id, "kind", clip.Kind(), "origin", clip.Origin)
	return clip, nil
}

// Delete removes a clip; deleting a missing id succeeds
func (s *ClipService) Delete(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteByID(ctx, userID, id); err != nil {
		metrics.StoreErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("failed to delete clip %s: %w", id, err)
	}
	metrics.ClipsDeleted.Inc()
	return nil
}

// ListLive returns the current live list, newest first
func (s *ClipService) ListLive(ctx context.Context, userID string) ([]models.Clip, error) {
	sub, err := s.store.SubscribeLive(ctx, userID, s.historyLimit, s.now())
	if err != nil {
		metrics.StoreErrors.WithLabelValues("subscribe").Inc()
		return nil, err
	}
	defer func() {
		_ = sub.Close()
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case snap, ok := <-sub.Snapshots():
		if !ok {
			return nil, fmt.Errorf("subscription closed before delivering: %w", storage.ErrStoreUnavailable)
		}
		if snap.Err != nil {
			metrics.StoreErrors.WithLabelValues("subscribe").Inc()
			return nil, snap.Err
		}
		return s.Deliverable(userID, snap.Records, s.now()), nil
	}
}

// Cleanup runs one bounded sweep of the user's expired clips
func (s *ClipService) Cleanup(ctx context.Context, userID string, limit int) (int, error) {
	n, err := sweeper.Partition(ctx, s.store, userID, s.now(), limit, metrics.LayerClient)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("sweep").Inc()
		return n, err
	}
	if n > 0 {
		s.logger.Info("Swept expired clips", "user", userID, "deleted", n)
	}
	return n, nil
}

// Decode converts stored records to clips, skipping malformed records. Order is preserved.
func (s *ClipService) Decode(userID string, recs []models.Record) []models.Clip {
	clips := make([]models.Clip, 0, len(recs))
	for _, rec := range recs {
		clip, err := rec.ToClip()
		if err != nil {
			metrics.MalformedRecords.Inc()
			s.logger.Warn("Skipping malformed clip record", "user", userID, "id", rec.ID, "error", err)
			continue
		}
		clips = append(clips, clip)
	}
	return clips
}

// Deliverable decodes records and keeps only the clips live at now
func (s *ClipService) Deliverable(userID string, recs []models.Record, now time.Time) []models.Clip {
	return models.FilterLive(s.Decode(userID, recs), now)
}
