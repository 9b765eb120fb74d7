// Package cursor provides the monotonic cursor guard shared by the server's
// per-session output dedupe and the client's projection reducer. A cursor is
// accepted only when it is strictly greater than the last accepted cursor for
// its key; duplicates and regressions leave the guard untouched, which is the
// idempotence law that lets clients reconnect and resume without double-apply.
package cursor

import "sync"

// Result reports the outcome of a single Observe call.
type Result struct {
	Accepted bool
	// Previous is the cursor stored before the call, nil when the key had
	// never been observed.
	Previous *int64
}

// Guard tracks the last accepted cursor per key. Safe for concurrent use.
type Guard struct {
	mu   sync.Mutex
	last map[string]int64
}

// NewGuard returns an empty Guard.
func NewGuard() *Guard {
	return &Guard{last: make(map[string]int64)}
}

// Observe records cursor for key if it advances the stream. The first cursor
// for a key is always accepted.
func (g *Guard) Observe(key string, cursor int64) Result {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev, seen := g.last[key]
	if !seen {
		g.last[key] = cursor
		return Result{Accepted: true}
	}
	p := prev
	if cursor <= prev {
		return Result{Accepted: false, Previous: &p}
	}
	g.last[key] = cursor
	return Result{Accepted: true, Previous: &p}
}

// Last returns the stored cursor for key, or nil if none was accepted yet.
func (g *Guard) Last(key string) *int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v, ok := g.last[key]; ok {
		return &v
	}
	return nil
}

// Forget drops all state for key. Used when a subscription ends so a reused
// id starts fresh.
func (g *Guard) Forget(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.last, key)
}
