package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/mobilenet-retail/backoffice/internal/settlement"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// PGDSN empty selects the in-memory store seeded with demo data.
	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	SessionSecret string        `envconfig:"SESSION_SECRET" required:"true"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"720h"`

	CSRFSecret string `envconfig:"CSRF_SECRET" required:"true"`

	CalcRateLimit    int           `envconfig:"CALC_RATE_LIMIT" default:"60"`
	CalcRateWindow   time.Duration `envconfig:"CALC_RATE_WINDOW" default:"60s"`
	RateLimitBackend string        `envconfig:"RATE_LIMIT_BACKEND" default:"redis"`
	IPRateLimit      int           `envconfig:"IP_RATE_LIMIT" default:"300"`

	SettlementTaxRateBP  int64         `envconfig:"SETTLEMENT_TAX_RATE_BP" default:"1000"`
	SettlementTaxLosses  bool          `envconfig:"SETTLEMENT_TAX_LOSSES" default:"false"`
	SettlementProfiles   ProfileRates  `envconfig:"SETTLEMENT_PROFILES"`
	SalesPageSize        int           `envconfig:"SALES_PAGE_SIZE" default:"50"`
	SalesMaxPageSize     int           `envconfig:"SALES_MAX_PAGE_SIZE" default:"500"`
	StatsMaxRange        time.Duration `envconfig:"STATS_MAX_RANGE" default:"8784h"`
	JobsEnabled          bool          `envconfig:"JOBS_ENABLED" default:"false"`
	IdempotencyRetention time.Duration `envconfig:"IDEMPOTENCY_RETENTION" default:"72h"`
}

// ProfileRates decodes SETTLEMENT_PROFILES ("premium:800,wholesale:0") into
// profile code to basis points.
type ProfileRates map[string]int64

// Decode implements envconfig.Decoder.
func (p *ProfileRates) Decode(value string) error {
	rates := ProfileRates{}
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		code, raw, ok := strings.Cut(item, ":")
		code = strings.ToLower(strings.TrimSpace(code))
		if !ok || code == "" {
			return fmt.Errorf("settlement profile %q: expected code:bp", item)
		}
		bp, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return fmt.Errorf("settlement profile %q: %w", code, err)
		}
		if _, dup := rates[code]; dup {
			return fmt.Errorf("settlement profile %q declared twice", code)
		}
		rates[code] = bp
	}
	*p = rates
	return nil
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.SessionSecret == "" {
		return errors.New("session secret must be provided")
	}
	if c.CSRFSecret == "" {
		return errors.New("csrf secret must be provided")
	}
	switch c.RateLimitBackend {
	case "redis", "memory":
	default:
		return fmt.Errorf("RATE_LIMIT_BACKEND must be redis or memory, got %q", c.RateLimitBackend)
	}
	if c.CalcRateLimit <= 0 || c.CalcRateWindow <= 0 {
		return errors.New("calculation rate limit and window must be positive")
	}
	if c.SalesPageSize <= 0 || c.SalesMaxPageSize < c.SalesPageSize {
		return errors.New("sales page size must be positive and not exceed the maximum")
	}
	return nil
}

// Profiles builds the settlement profile registry from config.
func (c *Config) Profiles() (*settlement.Profiles, error) {
	return settlement.ProfilesFromRates(c.SettlementTaxRateBP, c.SettlementTaxLosses, c.SettlementProfiles)
}

// UsesMemoryStore reports whether no database is configured.
func (c *Config) UsesMemoryStore() bool {
	return c != nil && strings.TrimSpace(c.PGDSN) == ""
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
