package journal

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Mindburn-Labs/triad/pkg/gate"
)

// DefaultBuffer is the queue depth used when NewJournal gets a non-positive size.
const DefaultBuffer = 1024

// Journal is a gate.Observer that records decisions through a Store.
// Observe never blocks: when the queue is full the decision is dropped and
// counted.
type Journal struct {
	store        *Store
	queue        chan Entry
	writeTimeout time.Duration
	logger       *slog.Logger

	dropped atomic.Uint64
	written atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
	mu        sync.RWMutex // guards sends against close(queue)
	closed    bool
}

// NewJournal starts the background writer.
func NewJournal(store *Store, buffer int) *Journal {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	j := &Journal{
		store:        store,
		queue:        make(chan Entry, buffer),
		writeTimeout: 5 * time.Second,
		logger:       slog.Default().With("component", "journal"),
		done:         make(chan struct{}),
	}
	go j.run()
	return j
}

// Observe implements gate.Observer.
func (j *Journal) Observe(_ context.Context, d gate.Decision) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.dropped.Add(1)
		return
	}
	select {
	case j.queue <- EntryFromDecision(d):
	default:
		j.dropped.Add(1)
	}
}

func (j *Journal) run() {
	defer close(j.done)
	for e := range j.queue {
		ctx, cancel := context.WithTimeout(context.Background(), j.writeTimeout)
		err := j.store.Insert(ctx, e)
		cancel()
		if err != nil {
			j.logger.Error("journal write failed", "error", err, "outcome", e.Outcome.String())
			continue
		}
		j.written.Add(1)
	}
}

// Close stops accepting decisions, drains the queue and waits for the
// writer, or for ctx to end.
func (j *Journal) Close(ctx context.Context) error {
	j.closeOnce.Do(func() {
		j.mu.Lock()
		j.closed = true
		close(j.queue)
		j.mu.Unlock()
	})
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Written returns the number of persisted decisions.
func (j *Journal) Written() uint64 { return j.written.Load() }

// Dropped returns the number of decisions lost to a full queue or a closed
// journal.
func (j *Journal) Dropped() uint64 { return j.dropped.Load() }

var _ gate.Observer = (*Journal)(nil)
