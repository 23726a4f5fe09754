package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func newTestController() *Controller {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewController(nil, logger)
}

func TestAllowWithinLimit(t *testing.T) {
	c := newTestController()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		allowed, _ := c.Allow(ctx, "token_issue", "client_a", 10, time.Minute)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}
}

func TestDeniesBeyondLimit(t *testing.T) {
	c := newTestController()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		allowed, _ := c.Allow(ctx, "token_issue", "client_a", 10, time.Minute)
		assert.True(t, allowed)
	}

	allowed, retryAfter := c.Allow(ctx, "token_issue", "client_a", 10, time.Minute)
	assert.False(t, allowed, "11th request in the window must be denied")
	assert.Greater(t, retryAfter, time.Duration(0))
}

func TestKeysAreIsolated(t *testing.T) {
	c := newTestController()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		c.Allow(ctx, "token_issue", "client_a", 10, time.Minute)
	}
	allowed, _ := c.Allow(ctx, "token_issue", "client_a", 10, time.Minute)
	assert.False(t, allowed)

	// One client exhausting its window must not affect another.
	allowed, _ = c.Allow(ctx, "token_issue", "client_b", 10, time.Minute)
	assert.True(t, allowed)
}

func TestScopesAreIsolated(t *testing.T) {
	c := newTestController()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		c.Allow(ctx, "token_issue", "client_a", 10, time.Minute)
	}
	allowed, _ := c.Allow(ctx, "token_issue", "client_a", 10, time.Minute)
	assert.False(t, allowed)

	allowed, _ = c.Allow(ctx, "general", "client_a", 10, time.Minute)
	assert.True(t, allowed)
}

func TestZeroLimitDisablesThrottle(t *testing.T) {
	c := newTestController()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		allowed, _ := c.Allow(ctx, "general", "client_a", 0, time.Minute)
		assert.True(t, allowed)
	}
}

func TestEvictIdleKeepsRecentLimiters(t *testing.T) {
	c := newTestController()
	ctx := context.Background()

	for i := 0; i < 2000; i++ {
		key := string(rune('a'+i%26)) + string(rune('0'+i%10))
		c.Allow(ctx, "general", key, 10, time.Minute)
	}

	// Recently used limiters survive eviction.
	c.mu.Lock()
	for _, ll := range c.limiters {
		assert.WithinDuration(t, time.Now(), ll.lastSeen, time.Minute)
	}
	c.mu.Unlock()
}
