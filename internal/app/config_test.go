package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileRatesDecode(t *testing.T) {
	var rates ProfileRates
	require.NoError(t, rates.Decode(" Premium:800, wholesale:0 ,"))
	assert.Equal(t, ProfileRates{"premium": 800, "wholesale": 0}, rates)

	for _, bad := range []string{"premium", ":10", "premium:abc", "a:1,A:2"} {
		assert.Error(t, rates.Decode(bad), bad)
	}
}

func setRequired(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("CSRF_SECRET", "c5rf")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("PG_DSN", "")
	t.Setenv("RATE_LIMIT_BACKEND", "")
	t.Setenv("SETTLEMENT_PROFILES", "premium:800")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.UsesMemoryStore())
	assert.Equal(t, 60, cfg.CalcRateLimit)
	assert.Equal(t, "redis", cfg.RateLimitBackend)
	assert.Equal(t, int64(1000), cfg.SettlementTaxRateBP)
	assert.Equal(t, 500, cfg.SalesMaxPageSize)

	profiles, err := cfg.Profiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "premium"}, profiles.Codes())
}

func TestLoadConfigRejectsInvalidSettings(t *testing.T) {
	cases := map[string]map[string]string{
		"backend":   {"RATE_LIMIT_BACKEND": "memcached"},
		"page size": {"SALES_PAGE_SIZE": "600", "SALES_MAX_PAGE_SIZE": "500"},
		"limit":     {"CALC_RATE_LIMIT": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			setRequired(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("CSRF_SECRET", "x")
	_, err := LoadConfig()
	assert.Error(t, err)
}
