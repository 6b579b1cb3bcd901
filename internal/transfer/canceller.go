package transfer

import (
	"context"
	"sync"
	"sync/atomic"
)

// Canceller is the cooperative stop flag of one run. Loops check it at their
// heads; an in-flight stream is allowed to finish before the flag is seen.
type Canceller struct {
	flag     atomic.Bool
	once     sync.Once
	done     chan struct{}
	onCancel func()
}

// NewCanceller creates a flag. onCancel runs once, on the first Cancel.
func NewCanceller(onCancel func()) *Canceller {
	return &Canceller{done: make(chan struct{}), onCancel: onCancel}
}

// Cancel flips the flag. It reports whether this call flipped it.
func (c *Canceller) Cancel() bool {
	flipped := false
	c.once.Do(func() {
		c.flag.Store(true)
		close(c.done)
		flipped = true
	})
	if flipped && c.onCancel != nil {
		c.onCancel()
	}
	return flipped
}

// Cancelled reports whether Cancel was called.
func (c *Canceller) Cancelled() bool {
	return c.flag.Load()
}

// Done is closed by the first Cancel.
func (c *Canceller) Done() <-chan struct{} {
	return c.done
}

// Stopped reports whether the run should stop. A done ctx counts as a cancel.
func (c *Canceller) Stopped(ctx context.Context) bool {
	if ctx.Err() != nil {
		c.Cancel()
	}
	return c.Cancelled()
}
