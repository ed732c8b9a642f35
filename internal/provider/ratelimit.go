package provider

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiterMap holds one rate.Limiter per provider, created once at
// startup from configured requests-per-second values.
type RateLimiterMap struct {
	mu       sync.RWMutex
	limiters map[Name]*rate.Limiter
}

// NewRateLimiterMap creates provider rate limiters. Burst is 1 so calls are
// spaced at least 1/rps apart.
func NewRateLimiterMap(requestsPerSecond map[Name]float64) *RateLimiterMap {
	m := &RateLimiterMap{limiters: make(map[Name]*rate.Limiter, len(requestsPerSecond))}
	for name, rps := range requestsPerSecond {
		if rps <= 0 {
			continue
		}
		m.limiters[name] = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return m
}

// Wait blocks until the limiter for the provider allows a request, or the
// context is canceled. Providers without a configured limit never wait.
func (m *RateLimiterMap) Wait(ctx context.Context, name Name) error {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return limiter.Wait(ctx)
}
