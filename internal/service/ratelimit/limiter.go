package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per key, created on first use with the
// same rate and burst.
type Limiter struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	m     map[string]*rate.Limiter
}

func New(perSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &Limiter{limit: limit, burst: burst, m: make(map[string]*rate.Limiter)}
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.m[key]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.m[key] = b
	}
	return b
}

// Allow consumes a token for key without waiting.
func (l *Limiter) Allow(key string) bool { return l.get(key).Allow() }

// Wait blocks until a token for key is available or ctx ends.
func (l *Limiter) Wait(ctx context.Context, key string) error { return l.get(key).Wait(ctx) }
