package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/johnwmail/clipsync/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TestMongoStoreInterfaceCompliance verifies MongoStore implements ClipStore at compile time
func TestMongoStoreInterfaceCompliance(t *testing.T) {
	var _ ClipStore = (*MongoStore)(nil)
}

func TestNewMongoClip(t *testing.T) {
	rec := textRecord("hello", baseTime.UnixMilli()+models.TTLMillis)
	rec.ID = "ignored"

	doc := newMongoClip("alice", rec)
	if !strings.HasPrefix(doc.ID, "alice:") {
		t.Errorf("expected id prefixed with user, got %q", doc.ID)
	}
	if doc.UserID != "alice" {
		t.Errorf("expected userId alice, got %q", doc.UserID)
	}
	if doc.Record.ID != "" {
		t.Error("record id must not be stored separately")
	}
	if !doc.PurgeAt.Equal(time.UnixMilli(rec.ExpiresAt)) {
		t.Errorf("expected purgeAt at expiry, got %v", doc.PurgeAt)
	}

	other := newMongoClip("alice", rec)
	if other.ID == doc.ID {
		t.Error("expected unique ids")
	}
}

func TestMongoClipBSONLayout(t *testing.T) {
	doc := newMongoClip("alice", textRecord("hello", 5000))
	raw, err := bson.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	for _, key := range []string{"_id", "userId", "kind", "content", "imageRef", "createdAt", "expiresAt", "origin", "purgeAt"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing field %q in %v", key, m)
		}
	}
	if _, ok := m["id"]; ok {
		t.Error("record id must not be stored as a separate field")
	}
}

func TestMongoFilters(t *testing.T) {
	now := baseTime
	live := liveFilter("alice", now)
	if live["userId"] != "alice" {
		t.Errorf("unexpected live filter %v", live)
	}
	if cond, ok := live["expiresAt"].(bson.M); !ok || cond["$gt"] != now.UnixMilli() {
		t.Errorf("expected $gt now in live filter, got %v", live["expiresAt"])
	}

	expired := expiredFilter("alice", now)
	if cond, ok := expired["expiresAt"].(bson.M); !ok || cond["$lt"] != now.UnixMilli() {
		t.Errorf("expected $lt now in expired filter, got %v", expired["expiresAt"])
	}
}

func TestChangeStreamPipelineEscapesUser(t *testing.T) {
	pipeline := changeStreamPipeline("a.b")
	if len(pipeline) != 1 {
		t.Fatalf("expected single stage, got %d", len(pipeline))
	}
	match, ok := pipeline[0][0].Value.(bson.D)
	if !ok || len(match) != 1 {
		t.Fatalf("unexpected match stage %v", pipeline[0])
	}
	re, ok := match[0].Value.(primitive.Regex)
	if !ok {
		t.Fatalf("expected regex, got %T", match[0].Value)
	}
	if re.Pattern != `^a\.b:` {
		t.Errorf("unexpected pattern %q", re.Pattern)
	}
}
