package crawler

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// hostLimiter keeps one token bucket per host.
type hostLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// newHostLimiter returns a limiter allowing rps requests per second per
// host. A non-positive rps disables limiting.
func newHostLimiter(rps float64, burst int) *hostLimiter {
	l := &hostLimiter{
		limit:    rate.Inf,
		burst:    max(1, burst),
		limiters: make(map[string]*rate.Limiter),
	}
	if rps > 0 {
		l.limit = rate.Limit(rps)
	}
	return l
}

// Wait blocks until a request to host is allowed or ctx is done.
func (h *hostLimiter) Wait(ctx context.Context, host string) error {
	if h.limit == rate.Inf {
		return nil
	}
	host = strings.ToLower(host)

	h.mu.Lock()
	lim, ok := h.limiters[host]
	if !ok {
		lim = rate.NewLimiter(h.limit, h.burst)
		h.limiters[host] = lim
	}
	h.mu.Unlock()

	return lim.Wait(ctx)
}

func (h *hostLimiter) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.limiters = make(map[string]*rate.Limiter)
}
