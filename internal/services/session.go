package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/johnwmail/clipsync/internal/fingerprint"
	"github.com/johnwmail/clipsync/internal/identity"
	"github.com/johnwmail/clipsync/internal/metrics"
	"github.com/johnwmail/clipsync/internal/sweeper"
	"github.com/johnwmail/clipsync/internal/upload"
	"github.com/johnwmail/clipsync/models"
	"github.com/johnwmail/clipsync/storage"
)

// Toast texts
const (
	MsgTextSynced    = "Text synced"
	MsgImageSynced   = "Image synced"
	MsgDeleted       = "Deleted"
	MsgDeleteFailed  = "Delete failed"
	msgSyncFailed    = "Sync failed: "
	msgUploadFailed  = "Upload failed: "
	eventBufferSize  = 64
	defaultSweepCap  = sweeper.ClientCap
	defaultSweepTick = 5 * time.Minute
	defaultRefilter  = time.Second
	submitTimeout    = 30 * time.Second
)

// EventKind is the closed set of notifications a session emits
type EventKind int

const (
	// EventToast is a short-lived user-visible message
	EventToast EventKind = iota
	// EventUploadProgress brackets an image submission (Uploading true, then false)
	EventUploadProgress
	// EventSubscriptionError reports a failed live subscription; the last list stays visible
	EventSubscriptionError
)

func (k EventKind) String() string {
	switch k {
	case EventToast:
		return "toast"
	case EventUploadProgress:
		return "upload_progress"
	case EventSubscriptionError:
		return "subscription_error"
	default:
		return "unknown"
	}
}

// Event is one outbound notification
type Event struct {
	Kind      EventKind
	Message   string
	Uploading bool
	Err       error
}

// State is the session lifecycle phase
type State int

const (
	StateIdle State = iota
	StateSubscribed
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribed:
		return "subscribed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// SessionConfig tunes a session. Zero values select defaults.
type SessionConfig struct {
	Origin           models.Origin
	SweepCap         int
	SweepInterval    time.Duration
	RefilterInterval time.Duration
}

// Session is the sync engine of one device. It sweeps on start and on a timer, holds one
// live subscription, re-filters the delivered list against the clock, and runs
// submissions in the background, reporting their outcome as events.
type Session struct {
	svc    *ClipService
	ident  identity.Provider
	cfg    SessionConfig
	guard  *fingerprint.Guard
	logger *slog.Logger

	events  chan Event
	updates chan []models.Clip

	mu       sync.Mutex
	state    State
	userID   string
	latest   []models.Clip // last snapshot, malformed records dropped
	current  []models.Clip // latest filtered at the last delivery or refilter
	sub      storage.Subscription
	started  bool
	stopping bool
	closed   bool

	// ctx bounds the subscription and timers; submissions outlive its cancellation
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	pending sync.WaitGroup
	once    sync.Once
}

// NewSession creates an idle session. guard is the session's submission fingerprint; nil
// allocates a fresh one.
func NewSession(svc *ClipService, ident identity.Provider, guard *fingerprint.Guard, cfg SessionConfig, logger *slog.Logger) *Session {
	if guard == nil {
		guard = &fingerprint.Guard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Origin == "" {
		cfg.Origin = models.OriginUnknown
	}
	if cfg.SweepCap <= 0 {
		cfg.SweepCap = defaultSweepCap
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepTick
	}
	if cfg.RefilterInterval <= 0 {
		cfg.RefilterInterval = defaultRefilter
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		svc:     svc,
		ident:   ident,
		cfg:     cfg,
		guard:   guard,
		logger:  logger,
		events:  make(chan Event, eventBufferSize),
		updates: make(chan []models.Clip, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Events returns the notification channel. It is closed by Stop.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Updates returns the live list channel. Only the newest undelivered list is kept.
// It is closed by Stop.
func (s *Session) Updates() <-chan []models.Clip {
	return s.updates
}

// State returns the current lifecycle phase
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Clips returns the last delivered list
func (s *Session) Clips() []models.Clip {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Clip(nil), s.current...)
}

// Start sweeps the partition in the background, opens the live subscription and starts the
// timers. Without an identity it returns ErrUnauthenticated and stays idle. A failed
// subscription leaves the session in StateError with its sweep timer running; it is not
// retried. Start may only be called once.
func (s *Session) Start() error {
	userID, err := identity.Require(s.ident)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.started || s.stopping {
		s.mu.Unlock()
		return errors.New("session already started")
	}
	s.started = true
	s.userID = userID
	s.wg.Add(2)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.sweep(s.ctx)
	}()
	go func() {
		defer s.wg.Done()
		sweeper.RunEvery(s.ctx, s.cfg.SweepInterval, s.sweep)
	}()

	sub, err := s.svc.store.SubscribeLive(s.ctx, userID, s.svc.historyLimit, s.svc.now())
	if err != nil {
		metrics.StoreErrors.WithLabelValues("subscribe").Inc()
		s.fail(err)
		return err
	}
	metrics.ActiveSubscriptions.Inc()

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		_ = sub.Close()
		metrics.ActiveSubscriptions.Dec()
		return context.Canceled
	}
	s.sub = sub
	s.state = StateSubscribed
	s.wg.Add(2)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.deliver(sub)
	}()
	go func() {
		defer s.wg.Done()
		s.refilterLoop()
	}()

	s.logger.Info("Session started", "user", userID, "origin", s.cfg.Origin)
	return nil
}

// Stop tears the session down exactly once. Submissions accepted before Stop still finish
// and report their outcome before the outbound channels close.
func (s *Session) Stop() {
	s.once.Do(func() {
		s.mu.Lock()
		s.stopping = true
		sub := s.sub
		s.mu.Unlock()

		s.cancel()
		if sub != nil {
			_ = sub.Close()
			metrics.ActiveSubscriptions.Dec()
		}
		s.wg.Wait()
		s.pending.Wait()

		s.mu.Lock()
		s.state = StateIdle
		s.closed = true
		close(s.events)
		close(s.updates)
		s.mu.Unlock()
		s.logger.Info("Session stopped", "user", s.userID)
	})
}

func (s *Session) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.svc.Cleanup(ctx, s.userID, s.cfg.SweepCap); err != nil && ctx.Err() == nil {
		s.logger.Warn("Client sweep failed", "user", s.userID, "error", err)
	}
}

func (s *Session) deliver(sub storage.Subscription) {
	for snap := range sub.Snapshots() {
		if snap.Err != nil {
			if s.ctx.Err() != nil {
				return
			}
			metrics.StoreErrors.WithLabelValues("subscribe").Inc()
			s.fail(snap.Err)
			continue
		}

		now := s.svc.now()
		clips := s.svc.Decode(s.userID, snap.Records)

		s.mu.Lock()
		if s.stopping {
			s.mu.Unlock()
			return
		}
		s.latest = clips
		s.state = StateSubscribed
		s.publishLocked(models.FilterLive(clips, now))
		s.mu.Unlock()
	}
}

// refilterLoop hides clips that expire between store events
func (s *Session) refilterLoop() {
	ticker := time.NewTicker(s.cfg.RefilterInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.refilter()
		}
	}
}

func (s *Session) refilter() {
	now := s.svc.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return
	}
	live := models.FilterLive(s.latest, now)
	// Liveness only ever turns false, so a shorter list is the only possible change
	if len(live) != len(s.current) {
		s.publishLocked(live)
	}
}

func (s *Session) publishLocked(clips []models.Clip) {
	s.current = clips
	select {
	case <-s.updates:
	default:
	}
	s.updates <- append([]models.Clip(nil), clips...)
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return
	}
	s.state = StateError
	s.mu.Unlock()
	s.logger.Error("Live subscription failed", "user", s.userID, "error", err)
	s.emit(Event{Kind: EventSubscriptionError, Message: msgSyncFailed + err.Error(), Err: err})
}

func (s *Session) emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("Dropping session event, consumer too slow", "kind", ev.Kind, "message", ev.Message)
	}
}

func (s *Session) toast(msg string) {
	s.emit(Event{Kind: EventToast, Message: msg})
}

// identityFor resolves the caller for one operation. A provider that now reports a different
// user than the subscription was opened for is treated as signed out.
func (s *Session) identityFor() (string, error) {
	userID, err := identity.Require(s.ident)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID != "" && s.userID != userID {
		return "", identity.ErrUnauthenticated
	}
	return userID, nil
}

// async runs fn in the background unless the session is stopping. fn gets a context that
// Stop does not cancel, bounded by submitTimeout.
func (s *Session) async(fn func(ctx context.Context)) bool {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return false
	}
	s.pending.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), submitTimeout)
		defer cancel()
		fn(ctx)
	}()
	return true
}

// SubmitText trims and writes text unless it repeats the last submitted text. It returns
// immediately; the outcome arrives as a toast. The fingerprint is claimed before the write
// and given back if the write fails, so the same text can be retried.
func (s *Session) SubmitText(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	userID, err := s.identityFor()
	if err != nil {
		s.toast(msgSyncFailed + err.Error())
		return
	}

	release, ok := s.guard.Claim(fingerprint.Of(text))
	if !ok {
		metrics.DuplicatesSuppressed.Inc()
		return
	}

	started := s.async(func(ctx context.Context) {
		if _, err := s.svc.AddText(ctx, userID, text, s.cfg.Origin); err != nil {
			release()
			s.logger.Warn("Text submission failed", "user", userID, "error", err)
			s.toast(msgSyncFailed + err.Error())
			return
		}
		s.toast(MsgTextSynced)
	})
	if !started {
		release()
	}
}

// SubmitImage uploads and writes an image clip in the background. UploadProgress(true) and
// UploadProgress(false) bracket the attempt. No duplicate suppression applies.
func (s *Session) SubmitImage(data []byte, mimeType string) {
	userID, err := s.identityFor()
	if err != nil {
		s.toast(msgUploadFailed + err.Error())
		return
	}

	s.async(func(ctx context.Context) {
		s.emit(Event{Kind: EventUploadProgress, Uploading: true})
		_, err := s.svc.AddImage(ctx, userID, data, mimeType, s.cfg.Origin)
		s.emit(Event{Kind: EventUploadProgress, Uploading: false})

		switch {
		case err == nil:
			s.toast(MsgImageSynced)
		case errors.Is(err, upload.ErrUploadRejected):
			s.logger.Warn("Image rejected", "user", userID, "error", err)
			s.toast(msgUploadFailed + err.Error())
		default:
			s.logger.Warn("Image submission failed", "user", userID, "error", err)
			s.toast(msgSyncFailed + err.Error())
		}
	})
}

// DeleteClip deletes a clip in the background; the outcome arrives as a toast
func (s *Session) DeleteClip(id string) {
	userID, err := s.identityFor()
	if err != nil {
		s.toast(MsgDeleteFailed)
		return
	}

	s.async(func(ctx context.Context) {
		if err := s.svc.Delete(ctx, userID, id); err != nil {
			s.logger.Warn("Delete failed", "user", userID, "id", id, "error", err)
			s.toast(MsgDeleteFailed)
			return
		}
		s.toast(MsgDeleted)
	})
}
