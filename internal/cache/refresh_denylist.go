package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RefreshDenylist records refresh token ids that were rotated out, so a
// presented token is rejected before its natural expiry. Entries carry the
// token's remaining lifetime as TTL. Redis makes the denylist visible across
// replicas; the process-local map keeps single-instance correctness when
// redis is down.
type RefreshDenylist struct {
	redis  *redis.Client
	logger *logrus.Logger

	mu    sync.Mutex
	local map[string]time.Time
}

func NewRefreshDenylist(redisClient *redis.Client, logger *logrus.Logger) *RefreshDenylist {
	return &RefreshDenylist{
		redis:  redisClient,
		logger: logger,
		local:  make(map[string]time.Time),
	}
}

// Revoke marks the token id as spent for the given remaining lifetime.
func (d *RefreshDenylist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}

	d.mu.Lock()
	d.evictExpired()
	d.local[jti] = time.Now().Add(ttl)
	d.mu.Unlock()

	if d.redis != nil {
		if err := d.redis.Set(ctx, denylistKey(jti), 1, ttl).Err(); err != nil {
			d.logger.WithError(err).Warn("Failed to record rotated refresh token in redis")
		}
	}
	return nil
}

// IsRevoked reports whether the token id was rotated out.
func (d *RefreshDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}

	d.mu.Lock()
	expiry, ok := d.local[jti]
	d.mu.Unlock()
	if ok && time.Now().Before(expiry) {
		return true, nil
	}

	if d.redis != nil {
		n, err := d.redis.Exists(ctx, denylistKey(jti)).Result()
		if err != nil {
			d.logger.WithError(err).Warn("Refresh denylist redis lookup failed, using local state only")
			return false, nil
		}
		return n > 0, nil
	}
	return false, nil
}

// evictExpired drops stale entries. Called with mu held.
func (d *RefreshDenylist) evictExpired() {
	now := time.Now()
	for jti, expiry := range d.local {
		if expiry.Before(now) {
			delete(d.local, jti)
		}
	}
}

func denylistKey(jti string) string {
	return fmt.Sprintf("authz:refresh_denylist:%s", jti)
}
