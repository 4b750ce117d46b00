package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("MARKETPLACE_BASE_URL", "https://api.stayhub.test/api")
}

func TestFromEnv_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg := FromEnv()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Marketplace.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Checkout.PaymentConfirmDelay)
	assert.Equal(t, 30*time.Minute, cfg.Checkout.SessionTTL)
	assert.Equal(t, "checkout:session:", cfg.Redis.KeyPrefix)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, 90, cfg.Housekeeping.AuditRetentionDays)
	assert.Equal(t, "0 0 3 * * *", cfg.Housekeeping.AuditPurgeSchedule)
}

func TestFromEnv_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PAYMENT_CONFIRM_DELAY", "500ms")
	t.Setenv("CHECKOUT_SESSION_TTL", "900")
	t.Setenv("MARKETPLACE_TIMEOUT", "not-a-duration")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.stayhub.test, ,https://admin.stayhub.test")
	t.Setenv("ENABLE_AUDIT_LOGGING", "false")
	t.Setenv("REDIS_DB", "x")

	cfg := FromEnv()

	assert.Equal(t, 500*time.Millisecond, cfg.Checkout.PaymentConfirmDelay)
	assert.Equal(t, 15*time.Minute, cfg.Checkout.SessionTTL)
	assert.Equal(t, 30*time.Second, cfg.Marketplace.Timeout)
	assert.Equal(t, []string{"https://app.stayhub.test", "https://admin.stayhub.test"}, cfg.CORS.AllowedOrigins)
	assert.False(t, cfg.Security.EnableAuditLog)
	assert.Equal(t, 0, cfg.Redis.DB)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"missing jwt secret", func(c *Config) { c.JWT.Secret = "" }, "JWT_SECRET"},
		{"missing base url", func(c *Config) { c.Marketplace.BaseURL = "" }, "MARKETPLACE_BASE_URL is required"},
		{"relative base url", func(c *Config) { c.Marketplace.BaseURL = "/api" }, "absolute"},
		{"negative delay", func(c *Config) { c.Checkout.PaymentConfirmDelay = -time.Second }, "PAYMENT_CONFIRM_DELAY"},
		{"zero ttl", func(c *Config) { c.Checkout.SessionTTL = 0 }, "CHECKOUT_SESSION_TTL"},
		{"zero rate", func(c *Config) { c.RateLimit.Requests = 0 }, "RATE_LIMIT"},
		{"negative retention", func(c *Config) { c.Housekeeping.AuditRetentionDays = -1 }, "AUDIT_RETENTION_DAYS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			cfg := FromEnv()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
