package storage

import (
	"context"
	"testing"
	"time"

	"github.com/johnwmail/clipsync/models"
)

// storeFactory creates a ClipStore for the shared contract tests
type storeFactory func(t *testing.T) ClipStore

var contractStores = map[string]storeFactory{
	"memory": func(t *testing.T) ClipStore {
		return NewMemoryStore()
	},
	"dynamodb": func(t *testing.T) ClipStore {
		return newDynamoStore(newFakeDynamo(), "clips", 5*time.Millisecond, nil)
	},
}

// waitFor reads snapshots until one satisfies ok
func waitFor(t *testing.T, sub Subscription, ok func([]models.Record) bool) []models.Record {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap, open := <-sub.Snapshots():
			if !open {
				t.Fatal("subscription closed unexpectedly")
			}
			if snap.Err != nil {
				t.Fatalf("unexpected snapshot error: %v", snap.Err)
			}
			if ok(snap.Records) {
				return snap.Records
			}
		case <-deadline:
			t.Fatal("timed out waiting for matching snapshot")
		}
	}
}

func ids(recs []models.Record) map[string]bool {
	out := make(map[string]bool, len(recs))
	for _, r := range recs {
		out[r.ID] = true
	}
	return out
}

func TestStoreContract(t *testing.T) {
	for name, factory := range contractStores {
		t.Run(name, func(t *testing.T) {
			t.Run("partition isolation", func(t *testing.T) {
				store := factory(t)
				defer func() { _ = store.Close() }()
				ctx := context.Background()
				live := baseTime.UnixMilli() + models.TTLMillis

				aliceID, err := store.Write(ctx, "alice", textRecord("a", live))
				if err != nil {
					t.Fatalf("Write failed: %v", err)
				}
				bobID, err := store.Write(ctx, "bob", textRecord("b", live))
				if err != nil {
					t.Fatalf("Write failed: %v", err)
				}

				sub, err := store.SubscribeLive(ctx, "alice", 10, baseTime)
				if err != nil {
					t.Fatalf("SubscribeLive failed: %v", err)
				}
				defer func() { _ = sub.Close() }()

				recs := waitFor(t, sub, func(r []models.Record) bool { return len(r) > 0 })
				got := ids(recs)
				if !got[aliceID] || got[bobID] || len(recs) != 1 {
					t.Errorf("alice must see only her clip, got %+v", recs)
				}
			})

			t.Run("delete is idempotent", func(t *testing.T) {
				store := factory(t)
				defer func() { _ = store.Close() }()
				ctx := context.Background()
				live := baseTime.UnixMilli() + models.TTLMillis

				id, err := store.Write(ctx, "alice", textRecord("doomed", live))
				if err != nil {
					t.Fatalf("Write failed: %v", err)
				}
				keep, err := store.Write(ctx, "alice", textRecord("kept", live+1))
				if err != nil {
					t.Fatalf("Write failed: %v", err)
				}

				sub, err := store.SubscribeLive(ctx, "alice", 10, baseTime)
				if err != nil {
					t.Fatalf("SubscribeLive failed: %v", err)
				}
				defer func() { _ = sub.Close() }()
				waitFor(t, sub, func(r []models.Record) bool { return len(r) == 2 })

				for i := 0; i < 2; i++ {
					if err := store.DeleteByID(ctx, "alice", id); err != nil {
						t.Fatalf("DeleteByID %d failed: %v", i, err)
					}
				}
				if err := store.DeleteByID(ctx, "alice", "never-existed"); err != nil {
					t.Fatalf("DeleteByID of a missing id failed: %v", err)
				}

				recs := waitFor(t, sub, func(r []models.Record) bool { return len(r) == 1 })
				if recs[0].ID != keep {
					t.Errorf("expected only %s to remain, got %+v", keep, recs)
				}
			})

			t.Run("sweep removes only expired", func(t *testing.T) {
				store := factory(t)
				defer func() { _ = store.Close() }()
				ctx := context.Background()
				T := baseTime.UnixMilli()

				for i := int64(1); i <= 3; i++ {
					if _, err := store.Write(ctx, "alice", textRecord("old", T-i*1000)); err != nil {
						t.Fatalf("Write failed: %v", err)
					}
				}
				for i := int64(1); i <= 2; i++ {
					if _, err := store.Write(ctx, "alice", textRecord("new", T+i*1000)); err != nil {
						t.Fatalf("Write failed: %v", err)
					}
				}

				n, err := store.DeleteExpired(ctx, "alice", baseTime, 50)
				if err != nil || n != 3 {
					t.Fatalf("expected 3 swept, got n=%d err=%v", n, err)
				}
				n, err = store.DeleteExpired(ctx, "alice", baseTime, 50)
				if err != nil || n != 0 {
					t.Fatalf("second sweep should be a no-op, got n=%d err=%v", n, err)
				}

				sub, err := store.SubscribeLive(ctx, "alice", 10, baseTime)
				if err != nil {
					t.Fatalf("SubscribeLive failed: %v", err)
				}
				defer func() { _ = sub.Close() }()
				waitFor(t, sub, func(r []models.Record) bool { return len(r) == 2 })
			})

			t.Run("subscription sees new writes", func(t *testing.T) {
				store := factory(t)
				defer func() { _ = store.Close() }()
				ctx := context.Background()

				sub, err := store.SubscribeLive(ctx, "alice", 10, baseTime)
				if err != nil {
					t.Fatalf("SubscribeLive failed: %v", err)
				}
				defer func() { _ = sub.Close() }()
				waitFor(t, sub, func(r []models.Record) bool { return len(r) == 0 })

				id, err := store.Write(ctx, "alice", textRecord("hello", baseTime.UnixMilli()+models.TTLMillis))
				if err != nil {
					t.Fatalf("Write failed: %v", err)
				}
				recs := waitFor(t, sub, func(r []models.Record) bool { return len(r) == 1 })
				if recs[0].ID != id || recs[0].Content != "hello" {
					t.Errorf("unexpected record %+v", recs[0])
				}
			})
		})
	}
}
