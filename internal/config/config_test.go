package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "3090", cfg.Server.Port)
	assert.Equal(t, 15, cfg.JWT.AccessExpiryMinutes)
	assert.Equal(t, 168, cfg.JWT.RefreshExpiryHours)
	assert.False(t, cfg.JWT.RotateRefresh)
	assert.Equal(t, 12, cfg.Security.BcryptCost)
	assert.Equal(t, 10, cfg.Throttle.TokenPerMinute)
	assert.Equal(t, 30, cfg.Throttle.RefreshPerMinute)
	assert.Equal(t, 120, cfg.Throttle.GeneralPerMinute)
	assert.Equal(t, 30, cfg.Cache.TTLSeconds)
	assert.False(t, cfg.NATS.Enabled)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("JWT_ISSUER", "authz-staging")
	t.Setenv("NATS_URL", "nats://broker:4222")
	t.Setenv("REDIS_ENABLED", "false")

	cfg := LoadConfig()

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "authz-staging", cfg.JWT.Issuer)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.True(t, cfg.NATS.Enabled, "setting NATS_URL enables publishing")
	assert.False(t, cfg.Redis.Enabled)
}
