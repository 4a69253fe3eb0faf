package storage

import (
	"sync"
)

// feed is the Subscription shared by all backends. It holds at most one pending snapshot:
// a newer snapshot replaces an undelivered older one, since every snapshot is a full list.
type feed struct {
	ch     chan Snapshot
	mu     sync.Mutex
	closed bool
	once   sync.Once
	stop   func()
}

func newFeed(stop func()) *feed {
	return &feed{
		ch:   make(chan Snapshot, 1),
		stop: stop,
	}
}

// publish replaces any pending snapshot with s. It reports false once the feed is closed.
func (f *feed) publish(s Snapshot) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	select {
	case <-f.ch:
	default:
	}
	f.ch <- s
	return true
}

// finish closes the delivery channel without releasing the listener
func (f *feed) finish() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
}

func (f *feed) Snapshots() <-chan Snapshot {
	return f.ch
}

func (f *feed) Close() error {
	f.once.Do(func() {
		f.finish()
		if f.stop != nil {
			f.stop()
		}
	})
	return nil
}
