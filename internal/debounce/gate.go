// Package debounce suppresses repeated triggers for the same record key
// within a fixed window.
package debounce

import (
	"sync"
	"time"

	"github.com/synthlane/docwatch/internal/docpath"
)

// DefaultWindow is the minimum time between two accepted triggers for one
// record key.
const DefaultWindow = time.Second

// Gate tracks the last accepted trigger per record key. Suppressed events
// are dropped, not queued; the gate is not a retry mechanism.
//
// Entries are never evicted: the key space is bounded by the number of
// tracked records in the watched trees, not by event volume.
type Gate struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	last   map[docpath.RecordKey]time.Time
}

// NewGate creates a gate using the wall clock.
func NewGate(window time.Duration) *Gate {
	return NewGateWithClock(window, time.Now)
}

// NewGateWithClock creates a gate with an injected clock for tests.
func NewGateWithClock(window time.Duration, now func() time.Time) *Gate {
	if window <= 0 {
		window = DefaultWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Gate{
		window: window,
		now:    now,
		last:   make(map[docpath.RecordKey]time.Time),
	}
}

// Admit reports whether a trigger for key should proceed. The first trigger
// for a key is always admitted; subsequent triggers are admitted only once
// the window has elapsed since the last accepted one. Admission records the
// current instant.
func (g *Gate) Admit(key docpath.RecordKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if last, ok := g.last[key]; ok && now.Sub(last) < g.window {
		return false
	}
	g.last[key] = now
	return true
}

// Len returns the number of keys the gate has seen.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.last)
}
