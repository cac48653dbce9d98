package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestLimiterAllow(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	l := newLimiter(clock.now)

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "pin-1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d", i+1)
	}

	ok, err := l.Allow(ctx, "pin-1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "pin-2", 3, time.Minute)
	assert.True(t, ok, "keys are independent")

	clock.t = clock.t.Add(61 * time.Second)
	ok, _ = l.Allow(ctx, "pin-1", 3, time.Minute)
	assert.True(t, ok, "window slides")
}

func TestLimiterReset(t *testing.T) {
	ctx := context.Background()
	l := newLimiter(time.Now)

	ok, _ := l.Allow(ctx, "k", 1, time.Hour)
	require.True(t, ok)
	ok, _ = l.Allow(ctx, "k", 1, time.Hour)
	require.False(t, ok)

	require.NoError(t, l.Reset(ctx, "k"))
	ok, _ = l.Allow(ctx, "k", 1, time.Hour)
	assert.True(t, ok)
}

func TestLimiterSweep(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	l := newLimiter(clock.now)

	_, _ = l.Allow(ctx, "old", 5, 48*time.Hour)
	clock.t = clock.t.Add(25 * time.Hour)
	_, _ = l.Allow(ctx, "new", 5, time.Hour)

	l.sweep(24 * time.Hour)

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.attempts, "old")
	assert.Contains(t, l.attempts, "new")
}

func TestLimiterClose(t *testing.T) {
	l := NewLimiter()
	l.Close()
	l.Close()
}
