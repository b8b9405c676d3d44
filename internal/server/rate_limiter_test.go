package server

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRateLimiterBurstAndRefill(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	rl := newRateLimiterWithClock(RateLimitConfig{Burst: 3, RefillInterval: time.Second}, clock.Now)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.allow(), "token %d", i)
	}
	assert.False(t, rl.allow(), "bucket exhausted")

	clock.Advance(time.Second / 2)
	assert.True(t, rl.allow(), "one token refilled")
	assert.False(t, rl.allow())

	clock.Advance(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, rl.allow())
	}
	assert.False(t, rl.allow(), "refill is capped at burst")
}

func TestRateLimiterInvalidConfigFallsBack(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{})
	assert.True(t, rl.allow())
	assert.False(t, rl.allow(), "capacity defaults to one token")
}
