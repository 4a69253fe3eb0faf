package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/johnwmail/clipsync/internal/upload"
	"github.com/johnwmail/clipsync/models"
	"github.com/johnwmail/clipsync/storage"
)

type stubUploader struct {
	url string
	err error
}

func (u stubUploader) Upload(ctx context.Context, data []byte, mimeType string) (string, error) {
	return u.url, u.err
}

func TestClipService_AddText(t *testing.T) {
	store := storage.NewMemoryStore()
	clock := newFakeClock()
	svc := NewClipService(store, nil, Options{Now: clock.Now})

	clip, err := svc.AddText(context.Background(), "alice", "  hi there ", models.OriginWeb)
	if err != nil {
		t.Fatalf("AddText failed: %v", err)
	}
	if clip.ID == "" || clip.Text() != "hi there" {
		t.Errorf("unexpected clip %+v", clip)
	}
	if clip.CreatedAt != clock.Now().UnixMilli() || clip.ExpiresAt != clip.CreatedAt+models.TTLMillis {
		t.Errorf("unexpected timestamps %d/%d", clip.CreatedAt, clip.ExpiresAt)
	}

	if _, err := svc.AddText(context.Background(), "alice", " \n ", models.OriginWeb); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("expected ErrEmptyContent, got %v", err)
	}
	if n := store.Count("alice"); n != 1 {
		t.Errorf("expected 1 clip, got %d", n)
	}
}

func TestClipService_AddImageAllOrNothing(t *testing.T) {
	tests := []struct {
		name     string
		uploader upload.Uploader
		wantErr  bool
	}{
		{"success", stubUploader{url: "https://cdn.example.com/a.png"}, false},
		{"remote failure", stubUploader{err: errors.New("timeout")}, true},
		{"rejected", stubUploader{err: upload.ErrUploadRejected}, true},
		{"empty url", stubUploader{}, true},
		{"no uploader", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			svc := NewClipService(store, tt.uploader, Options{})

			clip, err := svc.AddImage(context.Background(), "alice", fakeJPEG(128), "image/jpeg", models.OriginAndroid)
			if tt.wantErr {
				if !errors.Is(err, upload.ErrUploadRejected) {
					t.Errorf("expected ErrUploadRejected, got %v", err)
				}
				if n := store.Count("alice"); n != 0 {
					t.Errorf("expected nothing written, got %d", n)
				}
				return
			}
			if err != nil {
				t.Fatalf("AddImage failed: %v", err)
			}
			if clip.Kind() != models.KindImage || clip.ImageRef() != "https://cdn.example.com/a.png" {
				t.Errorf("unexpected clip %+v", clip)
			}
		})
	}
}

func TestClipService_WriteUnavailable(t *testing.T) {
	store := &flakyStore{MemoryStore: storage.NewMemoryStore()}
	store.setBroken(true)
	svc := NewClipService(store, nil, Options{})

	if _, err := svc.AddText(context.Background(), "alice", "x", models.OriginWeb); !errors.Is(err, storage.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestClipService_ListLive(t *testing.T) {
	store := storage.NewMemoryStore()
	clock := newFakeClock()
	now := clock.Now()
	seedRecord(t, store, "alice", textRec("t+10", now.Add(10*time.Minute)))
	seedRecord(t, store, "alice", textRec("t+5", now.Add(5*time.Minute)))
	seedRecord(t, store, "alice", textRec("t+20", now.Add(20*time.Minute)))
	seedRecord(t, store, "alice", textRec("expired", now.Add(-time.Minute)))
	seedRecord(t, store, "alice", models.Record{Kind: "bogus", ExpiresAt: now.Add(time.Hour).UnixMilli()})

	svc := NewClipService(store, nil, Options{Now: clock.Now, HistoryLimit: 10})
	clips, err := svc.ListLive(context.Background(), "alice")
	if err != nil {
		t.Fatalf("ListLive failed: %v", err)
	}
	want := []string{"t+20", "t+10", "t+5"}
	if len(clips) != len(want) {
		t.Fatalf("expected %d clips, got %d", len(want), len(clips))
	}
	for i, c := range clips {
		if c.Text() != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], c.Text())
		}
	}
	if store.Subscribers("alice") != 0 {
		t.Error("ListLive must release its subscription")
	}
}

func TestClipService_HistoryLimit(t *testing.T) {
	store := storage.NewMemoryStore()
	clock := newFakeClock()
	for i := 1; i <= 15; i++ {
		seedRecord(t, store, "alice", textRec("c", clock.Now().Add(time.Duration(i)*time.Minute)))
	}
	svc := NewClipService(store, nil, Options{Now: clock.Now})
	if svc.HistoryLimit() != DefaultHistoryLimit {
		t.Errorf("expected default limit %d, got %d", DefaultHistoryLimit, svc.HistoryLimit())
	}
	clips, err := svc.ListLive(context.Background(), "alice")
	if err != nil {
		t.Fatalf("ListLive failed: %v", err)
	}
	if len(clips) != 10 {
		t.Errorf("expected 10 clips, got %d", len(clips))
	}
}

func TestClipService_DeleteAndCleanup(t *testing.T) {
	store := storage.NewMemoryStore()
	clock := newFakeClock()
	now := clock.Now()
	for i := 1; i <= 3; i++ {
		seedRecord(t, store, "alice", textRec("old", now.Add(-time.Duration(i)*time.Second)))
	}
	live1 := seedRecord(t, store, "alice", textRec("live", now.Add(time.Minute)))
	seedRecord(t, store, "alice", textRec("live", now.Add(2*time.Minute)))

	svc := NewClipService(store, nil, Options{Now: clock.Now})
	n, err := svc.Cleanup(context.Background(), "alice", 50)
	if err != nil || n != 3 {
		t.Fatalf("expected 3 swept, got n=%d err=%v", n, err)
	}
	if c := store.Count("alice"); c != 2 {
		t.Errorf("expected 2 future clips untouched, got %d", c)
	}

	for i := 0; i < 2; i++ {
		if err := svc.Delete(context.Background(), "alice", live1); err != nil {
			t.Fatalf("Delete %d failed: %v", i, err)
		}
	}
	if c := store.Count("alice"); c != 1 {
		t.Errorf("expected 1 clip left, got %d", c)
	}
}
