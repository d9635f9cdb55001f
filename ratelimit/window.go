package ratelimit

import (
	"sync"
	"time"

	"musicseed-go/logcolors"

	log "github.com/sirupsen/logrus"
)

// staleWindows is how many window lengths an idle entry survives before a
// sweep removes it
const staleWindows = 5

// Limiter decides whether a call from identifier may proceed
type Limiter interface {
	Allow(identifier string) bool
}

type windowEntry struct {
	start time.Time
	calls int
}

// Window is a per-identifier fixed-window limiter. It is process-local and
// best-effort; the durable quota lives in the usage ledger.
type Window struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	ceiling int
	window  time.Duration
	now     func() time.Time

	// lastSweep is read on the limiter's own clock; at most one sweep runs
	// per window length, piggybacked on Allow.
	lastSweep time.Time
}

// Option configures a Window
type Option func(*Window)

// WithClock replaces time.Now, used by tests
func WithClock(now func() time.Time) Option {
	return func(w *Window) {
		w.now = now
	}
}

// NewWindow creates a limiter allowing ceiling calls per window per identifier
func NewWindow(ceiling int, window time.Duration, opts ...Option) *Window {
	if ceiling <= 0 {
		ceiling = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	w := &Window{
		entries: make(map[string]*windowEntry),
		ceiling: ceiling,
		window:  window,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Allow checks and records a call for identifier in one step
func (w *Window) Allow(identifier string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if now.Sub(w.lastSweep) >= w.window {
		w.purgeLocked(now)
		w.lastSweep = now
	}

	entry, ok := w.entries[identifier]
	if !ok || now.Sub(entry.start) >= w.window {
		w.entries[identifier] = &windowEntry{start: now, calls: 1}
		return true
	}

	if entry.calls < w.ceiling {
		entry.calls++
		return true
	}

	log.Debugf("%s %s exceeded %d calls in %v", logcolors.LogRateLimit, identifier, w.ceiling, w.window)
	return false
}

// Remaining returns how many calls identifier has left in its current window
func (w *Window) Remaining(identifier string) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry, ok := w.entries[identifier]
	if !ok || w.now().Sub(entry.start) >= w.window {
		return w.ceiling
	}
	return w.ceiling - entry.calls
}

// Ceiling returns the configured number of calls per window
func (w *Window) Ceiling() int {
	return w.ceiling
}

// Len returns the number of tracked identifiers
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// purgeLocked drops entries whose window ended long ago. Caller holds w.mu.
func (w *Window) purgeLocked(now time.Time) {
	cutoff := time.Duration(staleWindows) * w.window
	removed := 0
	for id, entry := range w.entries {
		if now.Sub(entry.start) > cutoff {
			delete(w.entries, id)
			removed++
		}
	}
	if removed > 0 {
		log.Debugf("%s Swept %d stale windows", logcolors.LogRateLimit, removed)
	}
}
