package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"authz-service/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type TenantSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

type AccountSource interface {
	GetByClientID(ctx context.Context, clientID string) (*models.ServiceAccount, error)
}

// SnapshotCache serves tenant and service-account snapshots with bounded
// staleness. A disable or revoke is visible here within one TTL; layers that
// need fresher data read the repository directly.
type SnapshotCache struct {
	redis    *redis.Client
	tenants  TenantSource
	accounts AccountSource
	ttl      time.Duration
	logger   *logrus.Logger
}

func NewSnapshotCache(redisClient *redis.Client, tenants TenantSource, accounts AccountSource, ttl time.Duration, logger *logrus.Logger) *SnapshotCache {
	return &SnapshotCache{
		redis:    redisClient,
		tenants:  tenants,
		accounts: accounts,
		ttl:      ttl,
		logger:   logger,
	}
}

func (c *SnapshotCache) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	key := fmt.Sprintf("authz:tenant:%s", id)
	if c.redis != nil {
		if data, err := c.redis.Get(ctx, key).Bytes(); err == nil {
			var tenant models.Tenant
			if err := json.Unmarshal(data, &tenant); err == nil {
				return &tenant, nil
			}
		}
	}

	tenant, err := c.tenants.GetByID(ctx, id)
	if err != nil || tenant == nil {
		return tenant, err
	}
	c.store(ctx, key, tenant)
	return tenant, nil
}

func (c *SnapshotCache) GetAccountByClientID(ctx context.Context, clientID string) (*models.ServiceAccount, error) {
	key := fmt.Sprintf("authz:account:%s", clientID)
	if c.redis != nil {
		if data, err := c.redis.Get(ctx, key).Bytes(); err == nil {
			var account models.ServiceAccount
			if err := json.Unmarshal(data, &account); err == nil {
				return &account, nil
			}
		}
	}

	account, err := c.accounts.GetByClientID(ctx, clientID)
	if err != nil || account == nil {
		return account, err
	}
	c.store(ctx, key, account)
	return account, nil
}

// Invalidate drops cached snapshots after an administrative state change so
// the new state is visible before the TTL would have expired.
func (c *SnapshotCache) Invalidate(ctx context.Context, tenantID uuid.UUID, clientID string) {
	if c.redis == nil {
		return
	}
	keys := []string{}
	if tenantID != uuid.Nil {
		keys = append(keys, fmt.Sprintf("authz:tenant:%s", tenantID))
	}
	if clientID != "" {
		keys = append(keys, fmt.Sprintf("authz:account:%s", clientID))
	}
	if len(keys) == 0 {
		return
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		c.logger.WithError(err).Warn("Failed to invalidate snapshot cache")
	}
}

func (c *SnapshotCache) store(ctx context.Context, key string, value interface{}) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Debug("Failed to store snapshot in cache")
	}
}
