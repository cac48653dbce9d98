package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Store decides whether one more attempt under key fits in the window.
type Store interface {
	Allow(ctx context.Context, key string, maxAttempts int, window time.Duration) (bool, error)
	Reset(ctx context.Context, key string) error
}

// Limiter is an in-process sliding-window Store.
type Limiter struct {
	attempts map[string][]time.Time
	mu       sync.Mutex
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

func NewLimiter() *Limiter {
	l := newLimiter(time.Now)
	go l.cleanup(5 * time.Minute)
	return l
}

func newLimiter(now func() time.Time) *Limiter {
	return &Limiter{
		attempts: make(map[string][]time.Time),
		now:      now,
		stop:     make(chan struct{}),
	}
}

func (l *Limiter) Allow(_ context.Context, key string, maxAttempts int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	valid := prune(l.attempts[key], now.Add(-window))

	if len(valid) >= maxAttempts {
		l.attempts[key] = valid
		return false, nil
	}

	l.attempts[key] = append(valid, now)
	return true, nil
}

func (l *Limiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, key)
	return nil
}

func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweep(24 * time.Hour)
		}
	}
}

func (l *Limiter) sweep(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-maxAge)
	for key, attempts := range l.attempts {
		valid := prune(attempts, cutoff)
		if len(valid) == 0 {
			delete(l.attempts, key)
		} else {
			l.attempts[key] = valid
		}
	}
}

func prune(attempts []time.Time, cutoff time.Time) []time.Time {
	var valid []time.Time
	for _, ts := range attempts {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}
	return valid
}
