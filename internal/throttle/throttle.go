package throttle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Controller enforces fixed-window rate limits keyed by (scope, key). Each
// key gets its own counter; one principal exhausting a window never affects
// another. State lives in redis so limits hold across replicas; when redis
// is unavailable the controller degrades to per-process limiters instead of
// failing open.
type Controller struct {
	redis  *redis.Client
	logger *logrus.Logger

	mu       sync.Mutex
	limiters map[string]*localLimiter
}

type localLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewController(redisClient *redis.Client, logger *logrus.Logger) *Controller {
	return &Controller{
		redis:    redisClient,
		logger:   logger,
		limiters: make(map[string]*localLimiter),
	}
}

// Allow reports whether one more request fits in the current window, and if
// not, how long the caller should wait before retrying.
func (c *Controller) Allow(ctx context.Context, scope, key string, limit int, window time.Duration) (bool, time.Duration) {
	if limit <= 0 {
		return true, 0
	}
	bucket := fmt.Sprintf("authz:throttle:%s:%s", scope, key)

	if c.redis != nil {
		allowed, retryAfter, err := c.allowRedis(ctx, bucket, limit, window)
		if err == nil {
			return allowed, retryAfter
		}
		c.logger.WithError(err).Warn("Throttle redis unavailable, using in-memory limiter")
	}
	return c.allowLocal(bucket, limit, window)
}

func (c *Controller) allowRedis(ctx context.Context, bucket string, limit int, window time.Duration) (bool, time.Duration, error) {
	count, err := c.redis.Incr(ctx, bucket).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		if err := c.redis.Expire(ctx, bucket, window).Err(); err != nil {
			return false, 0, err
		}
	}
	if count <= int64(limit) {
		return true, 0, nil
	}
	ttl, err := c.redis.TTL(ctx, bucket).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return false, ttl, nil
}

func (c *Controller) allowLocal(bucket string, limit int, window time.Duration) (bool, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ll, ok := c.limiters[bucket]
	if !ok {
		ll = &localLimiter{
			limiter: rate.NewLimiter(rate.Limit(float64(limit)/window.Seconds()), limit),
		}
		c.limiters[bucket] = ll
	}
	ll.lastSeen = time.Now()

	c.evictIdle(window)

	if ll.limiter.Allow() {
		return true, 0
	}
	return false, window
}

// evictIdle drops limiters not seen for several windows. Called with mu held.
func (c *Controller) evictIdle(window time.Duration) {
	if len(c.limiters) < 1024 {
		return
	}
	cutoff := time.Now().Add(-3 * window)
	for k, ll := range c.limiters {
		if ll.lastSeen.Before(cutoff) {
			delete(c.limiters, k)
		}
	}
}
