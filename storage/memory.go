package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/johnwmail/clipsync/models"
)

// MemoryStore implements ClipStore in process. Subscribers are notified synchronously
// with every write or delete, so a writer's own subscription observes its write.
type MemoryStore struct {
	mu     sync.Mutex
	parts  map[string]map[string]models.Record
	subs   map[string]map[*memorySub]struct{}
	closed bool
}

type memorySub struct {
	*feed
	limit int
	now   int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		parts: make(map[string]map[string]models.Record),
		subs:  make(map[string]map[*memorySub]struct{}),
	}
}

func (m *MemoryStore) check(userID string) error {
	if m.closed {
		return unavailable("memory", errors.New("store is closed"))
	}
	if userID == "" {
		return errors.New("user id cannot be empty")
	}
	return nil
}

// Write saves a record under a freshly generated id
func (m *MemoryStore) Write(ctx context.Context, userID string, rec models.Record) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(userID); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", unavailable("memory write", err)
	}

	rec.ID = uuid.NewString()
	part, ok := m.parts[userID]
	if !ok {
		part = make(map[string]models.Record)
		m.parts[userID] = part
	}
	part[rec.ID] = rec
	m.notifyLocked(userID)
	return rec.ID, nil
}

// DeleteByID removes a record; absence is not an error
func (m *MemoryStore) DeleteByID(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(userID); err != nil {
		return err
	}

	part := m.parts[userID]
	if _, ok := part[id]; !ok {
		return nil
	}
	delete(part, id)
	m.notifyLocked(userID)
	return nil
}

// DeleteExpired removes up to limit expired records, oldest expiry first
func (m *MemoryStore) DeleteExpired(ctx context.Context, userID string, now time.Time, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(userID); err != nil {
		return 0, err
	}

	cutoff := now.UnixMilli()
	var expired []models.Record
	for _, rec := range m.parts[userID] {
		if rec.ExpiresAt < cutoff {
			expired = append(expired, rec)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ExpiresAt < expired[j].ExpiresAt })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}

	for _, rec := range expired {
		delete(m.parts[userID], rec.ID)
	}
	if len(expired) > 0 {
		m.notifyLocked(userID)
	}
	return len(expired), nil
}

// SubscribeLive opens a feed that is re-delivered on every change to the partition
func (m *MemoryStore) SubscribeLive(ctx context.Context, userID string, limit int, now time.Time) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(userID); err != nil {
		return nil, err
	}

	sub := &memorySub{limit: limit, now: now.UnixMilli()}
	sub.feed = newFeed(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs[userID], sub)
	})

	if m.subs[userID] == nil {
		m.subs[userID] = make(map[*memorySub]struct{})
	}
	m.subs[userID][sub] = struct{}{}
	sub.publish(Snapshot{Records: m.liveLocked(userID, sub.limit, sub.now)})
	return sub, nil
}

// Partitions lists user ids that currently own records
func (m *MemoryStore) Partitions(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, unavailable("memory", errors.New("store is closed"))
	}

	ids := make([]string, 0, len(m.parts))
	for id, part := range m.parts {
		if len(part) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Count returns the number of records stored for a user, expired or not
func (m *MemoryStore) Count(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.parts[userID])
}

// Subscribers returns the number of open subscriptions for a user
func (m *MemoryStore) Subscribers(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[userID])
}

// Close closes every open subscription and rejects further operations
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	var open []*memorySub
	for _, subs := range m.subs {
		for sub := range subs {
			open = append(open, sub)
		}
	}
	m.mu.Unlock()

	for _, sub := range open {
		_ = sub.Close()
	}
	return nil
}

func (m *MemoryStore) notifyLocked(userID string) {
	for sub := range m.subs[userID] {
		sub.publish(Snapshot{Records: m.liveLocked(userID, sub.limit, sub.now)})
	}
}

func (m *MemoryStore) liveLocked(userID string, limit int, now int64) []models.Record {
	live := make([]models.Record, 0, len(m.parts[userID]))
	for _, rec := range m.parts[userID] {
		if rec.ExpiresAt > now {
			live = append(live, rec)
		}
	}
	sortByExpiryDesc(live)
	if limit > 0 && len(live) > limit {
		live = live[:limit]
	}
	return live
}

// sortByExpiryDesc orders newest-to-expire first. Ties are broken by id only to keep the
// in-memory order stable; callers must not depend on it.
func sortByExpiryDesc(recs []models.Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].ExpiresAt != recs[j].ExpiresAt {
			return recs[i].ExpiresAt > recs[j].ExpiresAt
		}
		return recs[i].ID < recs[j].ID
	})
}
