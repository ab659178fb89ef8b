package ledger

import (
	"context"
	"sync"
	"time"
)

// DefaultFailureWindow is the span after which a fingerprint's failure count
// starts over.
const DefaultFailureWindow = time.Hour

// FailureLedger counts seal-verification failures per caller fingerprint.
//
// Counts follow a windowed policy: the first failure opens a window, later
// failures inside the window increment the count, and the first failure after
// the window has elapsed resets the count to 1 and opens a new window.
type FailureLedger interface {
	// RecordFailure increments the count for fingerprint and returns the
	// updated value.
	RecordFailure(ctx context.Context, fingerprint string, nowMs int64) (int, error)
	// Len returns the number of tracked fingerprints.
	Len(ctx context.Context) (int, error)
}

type failureRecord struct {
	count       int
	windowStart int64
}

// MemoryFailureLedger is an in-process FailureLedger.
type MemoryFailureLedger struct {
	mu      sync.Mutex
	records map[string]*failureRecord
	window  time.Duration

	loop pruneLoop
}

// NewMemoryFailureLedger creates a failure ledger with the given reset window.
// A non-positive window falls back to DefaultFailureWindow.
func NewMemoryFailureLedger(window time.Duration) *MemoryFailureLedger {
	if window <= 0 {
		window = DefaultFailureWindow
	}
	return &MemoryFailureLedger{
		records: make(map[string]*failureRecord),
		window:  window,
	}
}

// Window returns the reset window.
func (l *MemoryFailureLedger) Window() time.Duration {
	return l.window
}

// RecordFailure implements FailureLedger.
func (l *MemoryFailureLedger) RecordFailure(_ context.Context, fingerprint string, nowMs int64) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[fingerprint]
	if !ok {
		l.records[fingerprint] = &failureRecord{count: 1, windowStart: nowMs}
		return 1, nil
	}
	if windowElapsed(rec.windowStart, nowMs, l.window.Milliseconds()) {
		rec.count = 1
		rec.windowStart = nowMs
		return 1, nil
	}
	if rec.count < maxCount {
		rec.count++
	}
	return rec.count, nil
}

// Len implements FailureLedger.
func (l *MemoryFailureLedger) Len(_ context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records), nil
}

// Prune drops fingerprints whose window has elapsed at nowMs and returns how
// many were removed. A dropped fingerprint's next failure starts a new window
// at count 1, exactly as if its record had been kept.
func (l *MemoryFailureLedger) Prune(nowMs int64) int {
	windowMs := l.window.Milliseconds()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for fp, rec := range l.records {
		if windowElapsed(rec.windowStart, nowMs, windowMs) {
			delete(l.records, fp)
			removed++
		}
	}
	return removed
}

// Start launches a background loop that prunes elapsed windows every
// interval using clock. Calling Start more than once does nothing. Close
// stops the loop.
func (l *MemoryFailureLedger) Start(interval time.Duration, clock func() time.Time) {
	if interval <= 0 {
		return
	}
	l.loop.start(interval, clock, l.Prune)
}

// Close stops the pruning loop, if running, and waits for it to exit.
func (l *MemoryFailureLedger) Close() error {
	return l.loop.close()
}

// maxCount caps counters so a long-running attack cannot overflow them.
const maxCount = int(^uint32(0) >> 1)

// windowElapsed reports whether more than windowMs separates start and now.
// A clock that moved backwards never elapses a window.
func windowElapsed(start, now, windowMs int64) bool {
	if now <= start {
		return false
	}
	elapsed := now - start
	if elapsed < 0 {
		// overflow between extreme values
		return true
	}
	return elapsed > windowMs
}
