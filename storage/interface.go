package storage

import (
	"context"
	"errors"
	"time"

	"github.com/johnwmail/clipsync/models"
)

// ErrStoreUnavailable wraps every transient connectivity or backend failure.
// Callers decide whether to retry.
var ErrStoreUnavailable = errors.New("store unavailable")

// Snapshot is one delivery of a live subscription: either the full ordered list of records
// or an error. Records are delivered as stored; callers validate them with Record.ToClip.
type Snapshot struct {
	Records []models.Record
	Err     error
}

// Subscription is a live feed of snapshots. Every change to the user's partition
// re-delivers the full list. Close must be called exactly once when the owner goes away;
// further calls are no-ops.
type Subscription interface {
	// Snapshots returns the delivery channel. It is closed after Close or a terminal error.
	Snapshots() <-chan Snapshot

	// Close releases the store-side listener
	Close() error
}

// ClipStore defines the interface for clip storage backends. Every operation is
// partitioned by user id; there is no cross-user visibility.
type ClipStore interface {
	// Write persists a new record and returns the store-assigned id. The record's ID is ignored.
	Write(ctx context.Context, userID string, rec models.Record) (string, error)

	// DeleteByID removes one record. Deleting a missing id is not an error.
	DeleteByID(ctx context.Context, userID, id string) error

	// SubscribeLive opens a live feed of the top limit records with expiresAt > now, ordered
	// by expiresAt descending. now is fixed at subscribe time; the feed does not re-fire
	// when time passes, only when the partition changes.
	SubscribeLive(ctx context.Context, userID string, limit int, now time.Time) (Subscription, error)

	// DeleteExpired removes at most limit records with expiresAt < now and reports how many
	// were deleted. It is a best-effort plural delete, not a transaction.
	DeleteExpired(ctx context.Context, userID string, now time.Time, limit int) (int, error)

	// Partitions lists every user id that currently owns records
	Partitions(ctx context.Context) ([]string, error)

	// Close closes the storage connection
	Close() error
}

// unavailable wraps a backend error with ErrStoreUnavailable, keeping the cause
func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &storeError{op: op, err: err}
}

type storeError struct {
	op  string
	err error
}

func (e *storeError) Error() string {
	return e.op + ": " + ErrStoreUnavailable.Error() + ": " + e.err.Error()
}

func (e *storeError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.err}
}
