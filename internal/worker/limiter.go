package worker

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter spaces calls per key (one key per external service).
// Each key is a token bucket with burst 1, so at most one call starts per interval.
type Limiter struct {
	limiters        map[string]*rate.Limiter
	mu              sync.RWMutex
	defaultInterval time.Duration
}

// NewLimiter creates a limiter that lets one call through every interval.
// A non-positive interval disables limiting.
func NewLimiter(interval time.Duration) *Limiter {
	return &Limiter{
		limiters:        make(map[string]*rate.Limiter),
		defaultInterval: interval,
	}
}

// Wait blocks until the key's gate opens or ctx is done
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.getLimiter(key).Wait(ctx)
}

func (l *Limiter) getLimiter(key string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[key]
	l.mu.RUnlock()

	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if limiter, exists := l.limiters[key]; exists {
		return limiter
	}

	limiter = newGate(l.defaultInterval)
	l.limiters[key] = limiter
	return limiter
}

func newGate(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}
