// Package fingerprint provides the cheap content hash used for duplicate suppression and
// the per-session guard built on it. It is not a security primitive.
package fingerprint

import (
	"sync"

	"github.com/zeebo/xxh3"
)

// Of returns the fingerprint of text
func Of(text string) uint64 {
	return xxh3.HashString(text)
}

// Guard remembers the last accepted fingerprint. The zero value is ready to use and has
// seen nothing. Each session owns its own Guard.
type Guard struct {
	mu   sync.Mutex
	last uint64
	set  bool
}

// Claim atomically compares fp with the remembered fingerprint. When they differ it stores
// fp and returns a release func that undoes the claim (restoring the previous value) as
// long as nothing newer has been claimed since. When they are equal it returns nil, false.
func (g *Guard) Claim(fp uint64) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.set && g.last == fp {
		return nil, false
	}

	prev, prevSet := g.last, g.set
	g.last, g.set = fp, true
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.set && g.last == fp {
			g.last, g.set = prev, prevSet
		}
	}, true
}

// Seen reports whether fp is the remembered fingerprint
func (g *Guard) Seen(fp uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.set && g.last == fp
}

// Reset forgets the remembered fingerprint
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last, g.set = 0, false
}
