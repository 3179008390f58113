package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SEARCH_TIMEOUT_SECONDS", "")
	t.Setenv("SEARCH_REQUIRES_AUTH", "")
	t.Setenv("SEARCH_REGION_SUFFIX", "")

	cfg := Load()
	assert.Equal(t, 10*time.Second, cfg.SearchTimeout)
	assert.Equal(t, 30*time.Minute, cfg.SearchFreshness)
	assert.Equal(t, ", TX", cfg.SearchRegionSuffix)
	assert.True(t, cfg.SearchRequiresAuth)
	assert.Equal(t, 30, cfg.SearchRateLimitPerMinute)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SEARCH_TIMEOUT_SECONDS", "3")
	t.Setenv("SEARCH_FRESHNESS_MINUTES", "5")
	t.Setenv("SEARCH_REQUIRES_AUTH", "false")
	t.Setenv("SEARCH_RATE_LIMIT_PER_MINUTE", "not-a-number")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com,https://admin.example.com")
	t.Setenv("STRIPE_PRICE_CONTACT", "price_contact")

	cfg := Load()
	assert.Equal(t, 3*time.Second, cfg.SearchTimeout)
	assert.Equal(t, 5*time.Minute, cfg.SearchFreshness)
	assert.False(t, cfg.SearchRequiresAuth)
	assert.Equal(t, 30, cfg.SearchRateLimitPerMinute, "invalid ints fall back")
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, "price_contact", cfg.StripePriceContact)
}
