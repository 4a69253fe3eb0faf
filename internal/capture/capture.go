// Package capture polls the local clipboard and forwards new text to the sync engine
package capture

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/johnwmail/clipsync/internal/fingerprint"
)

// DefaultInterval is the clipboard poll interval
const DefaultInterval = time.Second

// ErrCaptureDenied means the platform refused clipboard access. The loop treats it as
// "no content this tick".
var ErrCaptureDenied = errors.New("clipboard access denied")

// Reader reads the current clipboard text
type Reader interface {
	Read(ctx context.Context) (string, error)
}

// Submitter receives new clipboard text. It must not block.
type Submitter interface {
	SubmitText(text string)
}

// Loop polls a Reader on a fixed interval. It keeps its own fingerprint of the previous
// poll, separate from the submitter's guard, so unchanged content is not forwarded again.
type Loop struct {
	reader   Reader
	submit   Submitter
	interval time.Duration
	guard    fingerprint.Guard
	logger   *slog.Logger
}

// NewLoop creates a capture loop. interval <= 0 uses DefaultInterval.
func NewLoop(reader Reader, submit Submitter, interval time.Duration, logger *slog.Logger) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{reader: reader, submit: submit, interval: interval, logger: logger}
}

// Run polls immediately and then on every interval until ctx is done
func (l *Loop) Run(ctx context.Context) {
	l.logger.Debug("Capture loop started", "interval", l.interval)
	defer l.logger.Debug("Capture loop stopped")

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		l.Tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick performs one poll and reports whether text was forwarded. Read failures are
// swallowed.
func (l *Loop) Tick(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	text, err := l.reader.Read(ctx)
	if err != nil {
		if errors.Is(err, ErrCaptureDenied) {
			l.logger.Debug("Clipboard read denied", "error", err)
		} else {
			l.logger.Debug("Clipboard read failed", "error", err)
		}
		return false
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	if _, changed := l.guard.Claim(fingerprint.Of(text)); !changed {
		return false
	}

	l.submit.SubmitText(text)
	return true
}
