package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

const DefaultInterval = 2 * time.Second

type RateLimiter interface {
	Wait(ctx context.Context) error
}

// SimpleRateLimiter enforces a minimum gap between consecutive calls on the
// same instance. It is a single slot, not a token bucket: every scraper issues
// its requests sequentially, so spacing is all that is needed.
type SimpleRateLimiter struct {
	interval   time.Duration
	jitter     time.Duration
	lastAction time.Time
	mu         sync.Mutex
}

// NewSimpleRateLimiter returns a limiter spacing calls by at least interval.
// A positive jitter adds a random extra delay in [0, jitter).
func NewSimpleRateLimiter(interval, jitter time.Duration) *SimpleRateLimiter {
	return &SimpleRateLimiter{
		interval: interval,
		jitter:   jitter,
	}
}

// Wait blocks until the interval has passed since the previous call. The
// timestamp is stamped before the lock is released so concurrent callers
// queue behind each other.
func (r *SimpleRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.lastAction.IsZero() {
		delay := r.calculateDelay()
		elapsed := time.Since(r.lastAction)

		if elapsed < delay {
			timer := time.NewTimer(delay - elapsed)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}

	r.lastAction = time.Now()
	return nil
}

func (r *SimpleRateLimiter) Interval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interval
}

func (r *SimpleRateLimiter) SetInterval(interval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interval = interval
}

func (r *SimpleRateLimiter) calculateDelay() time.Duration {
	if r.jitter <= 0 {
		return r.interval
	}
	return r.interval + time.Duration(rand.Int63n(int64(r.jitter)))
}
