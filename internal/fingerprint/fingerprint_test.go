package fingerprint

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestOf(t *testing.T) {
	if Of("hello") != Of("hello") {
		t.Error("fingerprint must be deterministic")
	}
	if Of("hello") == Of("world") {
		t.Error("different text should have different fingerprints")
	}
}

func TestGuardSuppressesRepeats(t *testing.T) {
	var g Guard
	steps := []struct {
		text string
		want bool
	}{
		{"hello", true},
		{"hello", false},
		{"world", true},
		{"hello", true},
		{"hello", false},
	}
	for i, s := range steps {
		_, ok := g.Claim(Of(s.text))
		if ok != s.want {
			t.Errorf("step %d (%q): Claim() = %v, want %v", i, s.text, ok, s.want)
		}
	}
}

func TestGuardRelease(t *testing.T) {
	var g Guard
	g.Claim(Of("a"))

	release, ok := g.Claim(Of("b"))
	if !ok {
		t.Fatal("expected claim of b")
	}
	release()
	if !g.Seen(Of("a")) {
		t.Error("release must restore the previous fingerprint")
	}
	if _, ok := g.Claim(Of("b")); !ok {
		t.Error("released text must be claimable again")
	}
}

func TestGuardReleaseAfterNewerClaim(t *testing.T) {
	var g Guard
	release, _ := g.Claim(Of("a"))
	g.Claim(Of("b"))
	release()
	if !g.Seen(Of("b")) {
		t.Error("a stale release must not undo a newer claim")
	}
}

func TestGuardFirstReleaseForgets(t *testing.T) {
	var g Guard
	release, _ := g.Claim(Of("a"))
	release()
	if g.Seen(Of("a")) {
		t.Error("expected guard to be empty again")
	}
	g.Claim(Of("a"))
	g.Reset()
	if g.Seen(Of("a")) {
		t.Error("expected Reset to forget")
	}
}

func TestGuardConcurrentClaims(t *testing.T) {
	var g Guard
	var wins atomic.Int32
	var wg sync.WaitGroup
	fp := Of("same clipboard text")
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := g.Claim(fp); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Errorf("expected exactly one winning claim, got %d", wins.Load())
	}
}
