package ledger

import (
	"sync"
	"time"
)

// pruneLoop drives a Prune method from a ticker until closed.
type pruneLoop struct {
	mu       sync.Mutex
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// start launches the loop. Only the first call has an effect.
func (p *pruneLoop) start(interval time.Duration, clock func() time.Time, prune func(nowMs int64) int) {
	p.mu.Lock()
	if p.stop != nil {
		p.mu.Unlock()
		return
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	stop, done := p.stop, p.done
	p.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				prune(clock().UnixMilli())
			}
		}
	}()
}

// close stops the loop, if running, and waits for it to exit.
func (p *pruneLoop) close() error {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.mu.Unlock()
	if stop == nil {
		return nil
	}
	p.stopOnce.Do(func() { close(stop) })
	<-done
	return nil
}
