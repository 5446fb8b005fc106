package crawler

import (
	"context"
	"math/rand/v2"
	"time"
)

// DefaultJitterMultiplier scales the concurrency limit into the jitter
// bound in milliseconds.
const DefaultJitterMultiplier = 100

// Jitter is a randomized delay applied before each request so that workers
// started together do not hit the server in lockstep.
type Jitter struct {
	bound time.Duration
}

// NewJitter returns a delay uniformly drawn from [0, multiplier*concurrency)
// milliseconds. A disabled or non-positive configuration never sleeps.
func NewJitter(enabled bool, multiplier, concurrency int) Jitter {
	if !enabled || multiplier <= 0 || concurrency <= 0 {
		return Jitter{}
	}
	return Jitter{bound: time.Duration(multiplier*concurrency) * time.Millisecond}
}

// Bound returns the exclusive upper bound of the delay.
func (j Jitter) Bound() time.Duration { return j.bound }

// Sleep waits for a random delay or until ctx is done.
func (j Jitter) Sleep(ctx context.Context) error {
	if j.bound <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(rand.N(j.bound))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
