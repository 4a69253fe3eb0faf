package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/johnwmail/clipsync/models"
	"github.com/johnwmail/clipsync/storage"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeClock is a settable clock shared by the service and the test
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: t0}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func fakeJPEG(size int) []byte {
	data := make([]byte, size)
	copy(data, []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00})
	return data
}

func seedRecord(t *testing.T, store storage.ClipStore, userID string, rec models.Record) string {
	t.Helper()
	id, err := store.Write(context.Background(), userID, rec)
	if err != nil {
		t.Fatalf("seed write failed: %v", err)
	}
	return id
}

func textRec(content string, expiresAt time.Time) models.Record {
	return models.Record{
		Kind:      "text",
		Content:   content,
		CreatedAt: expiresAt.UnixMilli() - models.TTLMillis,
		ExpiresAt: expiresAt.UnixMilli(),
		Origin:    "Android",
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// waitClips reads updates until one satisfies match
func waitClips(t *testing.T, s *Session, match func([]models.Clip) bool) []models.Clip {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case clips, ok := <-s.Updates():
			if !ok {
				t.Fatal("updates closed")
			}
			if match(clips) {
				return clips
			}
		case <-timeout:
			t.Fatal("timed out waiting for clip list")
			return nil
		}
	}
}

// waitEvent reads events until one satisfies match
func waitEvent(t *testing.T, s *Session, match func(Event) bool) Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				t.Fatal("events closed")
			}
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
			return Event{}
		}
	}
}

func isToast(msg string) func(Event) bool {
	return func(ev Event) bool { return ev.Kind == EventToast && ev.Message == msg }
}

// switchableIdentity lets a test sign in, out or change user mid-session
type switchableIdentity struct {
	mu sync.Mutex
	id string
}

func (s *switchableIdentity) Set(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
}

func (s *switchableIdentity) CurrentUserID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.id != ""
}

// flakyStore fails writes while broken is set
type flakyStore struct {
	*storage.MemoryStore
	mu     sync.Mutex
	broken bool
}

func (f *flakyStore) setBroken(b bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broken = b
}

func (f *flakyStore) Write(ctx context.Context, userID string, rec models.Record) (string, error) {
	f.mu.Lock()
	broken := f.broken
	f.mu.Unlock()
	if broken {
		return "", storage.ErrStoreUnavailable
	}
	return f.MemoryStore.Write(ctx, userID, rec)
}

// scriptedStore hands out a subscription the test drives by hand
type scriptedStore struct {
	*storage.MemoryStore
	sub *scriptedSub
}

type scriptedSub struct {
	ch     chan storage.Snapshot
	once   sync.Once
	closed chan struct{}
}

func newScriptedStore() *scriptedStore {
	return &scriptedStore{
		MemoryStore: storage.NewMemoryStore(),
		sub:         &scriptedSub{ch: make(chan storage.Snapshot, 4), closed: make(chan struct{})},
	}
}

func (s *scriptedStore) SubscribeLive(ctx context.Context, userID string, limit int, now time.Time) (storage.Subscription, error) {
	return s.sub, nil
}

func (s *scriptedSub) Snapshots() <-chan storage.Snapshot { return s.ch }

func (s *scriptedSub) Close() error {
	s.once.Do(func() {
		close(s.closed)
		close(s.ch)
	})
	return nil
}
