// Package ledger holds the gate's shared mutable state: the seen-nonce ledger
// used for anti-replay and the per-fingerprint failure ledger used to escalate
// repeated seal failures.
//
// Every backend makes its read-modify-write a single critical section so that
// concurrent callers observe linearizable results.
package ledger

import (
	"context"
	"sync"
	"time"
)

// NonceLedger records nonces the first time they are accepted.
type NonceLedger interface {
	// CheckAndRecord reports whether nonce has never been recorded. On true the
	// nonce is recorded at nowMs; on false nothing changes.
	CheckAndRecord(ctx context.Context, nonce string, nowMs int64) (bool, error)
	// Len returns the number of retained nonces.
	Len(ctx context.Context) (int, error)
}

// MemoryNonceLedger is an in-process NonceLedger.
//
// With a zero retention the ledger only grows. With a positive retention,
// entries older than the retention window are removed by Prune or by the
// background loop started with Start.
type MemoryNonceLedger struct {
	mu        sync.Mutex
	seen      map[string]int64
	retention time.Duration

	loop pruneLoop
}

// NewMemoryNonceLedger creates an in-memory nonce ledger. A zero retention keeps
// every nonce for the lifetime of the ledger.
func NewMemoryNonceLedger(retention time.Duration) *MemoryNonceLedger {
	return &MemoryNonceLedger{
		seen:      make(map[string]int64),
		retention: retention,
	}
}

// CheckAndRecord implements NonceLedger.
func (l *MemoryNonceLedger) CheckAndRecord(_ context.Context, nonce string, nowMs int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.seen[nonce]; exists {
		return false, nil
	}
	l.seen[nonce] = nowMs
	return true, nil
}

// Len implements NonceLedger.
func (l *MemoryNonceLedger) Len(_ context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen), nil
}

// Retention returns the configured retention window.
func (l *MemoryNonceLedger) Retention() time.Duration {
	return l.retention
}

// Prune removes nonces recorded more than the retention window before nowMs
// and returns how many were removed. It is a no-op when retention is zero.
func (l *MemoryNonceLedger) Prune(nowMs int64) int {
	if l.retention <= 0 {
		return 0
	}
	cutoff := nowMs - l.retention.Milliseconds()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for nonce, at := range l.seen {
		if at < cutoff {
			delete(l.seen, nonce)
			removed++
		}
	}
	return removed
}

// Start launches a background loop that prunes expired nonces every interval
// using clock. Calling Start more than once, or with a zero retention, does
// nothing. Close stops the loop.
func (l *MemoryNonceLedger) Start(interval time.Duration, clock func() time.Time) {
	if l.retention <= 0 || interval <= 0 {
		return
	}
	l.loop.start(interval, clock, l.Prune)
}

// Close stops the pruning loop, if running, and waits for it to exit.
func (l *MemoryNonceLedger) Close() error {
	return l.loop.close()
}
