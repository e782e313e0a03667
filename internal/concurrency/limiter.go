package concurrency

import (
	"github.com/harunnryd/kangae/internal/errors"
)

// Limiter bounds the number of in-flight calls to one provider. Excess
// callers are rejected immediately rather than queued, so the fallback
// registry can move on to the next provider.
type Limiter struct {
	slots chan struct{}
}

// NewLimiter creates a limiter admitting at most n concurrent holders.
func NewLimiter(n int) *Limiter {
	if n <= 0 {
		n = 8
	}
	return &Limiter{slots: make(chan struct{}, n)}
}

// Acquire claims a slot, or fails with a RateLimited error when full.
func (l *Limiter) Acquire() error {
	select {
	case l.slots <- struct{}{}:
		return nil
	default:
		return errors.RateLimited("provider concurrency limit reached")
	}
}

// Release returns a previously acquired slot.
func (l *Limiter) Release() {
	select {
	case <-l.slots:
	default:
	}
}

// InFlight reports the number of currently held slots.
func (l *Limiter) InFlight() int {
	return len(l.slots)
}
