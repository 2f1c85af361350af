package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Cutover policies accepted by CUTOVER_POLICY.
const (
	CutoverPolicyManual            = "manual"
	CutoverPolicyRequireValidation = "require_validation"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	CutoverPolicy       string        `mapstructure:"CUTOVER_POLICY"`
	CutoverGrace        time.Duration `mapstructure:"CUTOVER_GRACE"`
	CutoverLockTimeout  time.Duration `mapstructure:"CUTOVER_LOCK_TIMEOUT"`
	IdentifierSlotBatch int           `mapstructure:"IDENTIFIER_SLOT_BATCH"`
	StagingCopyBatch    int           `mapstructure:"STAGING_COPY_BATCH"`

	ReconcileProgressEvery int  `mapstructure:"RECONCILE_PROGRESS_EVERY"`
	ReconcileIdentifiers   bool `mapstructure:"RECONCILE_IDENTIFIERS"`

	HealthMinProviders int64 `mapstructure:"HEALTH_MIN_PROVIDERS"`

	APIJWTSecret    string `mapstructure:"API_JWT_SECRET"`
	APIJWTIssuer    string `mapstructure:"API_JWT_ISSUER"`
	APIJWTAudience  string `mapstructure:"API_JWT_AUDIENCE"`
	APIDefaultLimit int    `mapstructure:"API_DEFAULT_LIMIT"`
	APIMaxLimit     int    `mapstructure:"API_MAX_LIMIT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("CUTOVER_POLICY", CutoverPolicyManual)
	v.SetDefault("CUTOVER_GRACE", "2s")
	v.SetDefault("CUTOVER_LOCK_TIMEOUT", "30s")
	v.SetDefault("IDENTIFIER_SLOT_BATCH", 10)
	v.SetDefault("STAGING_COPY_BATCH", 5000)
	v.SetDefault("RECONCILE_PROGRESS_EVERY", 10000)
	v.SetDefault("RECONCILE_IDENTIFIERS", false)
	v.SetDefault("HEALTH_MIN_PROVIDERS", 100)
	v.SetDefault("API_DEFAULT_LIMIT", 50)
	v.SetDefault("API_MAX_LIMIT", 500)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"CUTOVER_POLICY", "CUTOVER_GRACE", "CUTOVER_LOCK_TIMEOUT",
		"IDENTIFIER_SLOT_BATCH", "STAGING_COPY_BATCH",
		"RECONCILE_PROGRESS_EVERY", "RECONCILE_IDENTIFIERS",
		"HEALTH_MIN_PROVIDERS",
		"API_JWT_SECRET", "API_JWT_ISSUER", "API_JWT_AUDIENCE",
		"API_DEFAULT_LIMIT", "API_MAX_LIMIT",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// RequiresValidation reports whether a swap must be preceded by a passing
// validation of the same import run.
func (c *Config) RequiresValidation() bool {
	return c.CutoverPolicy == CutoverPolicyRequireValidation
}

// AuthEnabled reports whether the read API demands a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.APIJWTSecret != ""
}

// Validate checks value ranges and enumerations that viper cannot express.
func (c *Config) Validate() error {
	switch c.CutoverPolicy {
	case CutoverPolicyManual, CutoverPolicyRequireValidation:
	default:
		return fmt.Errorf("CUTOVER_POLICY must be %q or %q, got %q",
			CutoverPolicyManual, CutoverPolicyRequireValidation, c.CutoverPolicy)
	}
	if c.CutoverGrace < 0 {
		return fmt.Errorf("CUTOVER_GRACE must not be negative, got %s", c.CutoverGrace)
	}
	if c.CutoverLockTimeout <= 0 {
		return fmt.Errorf("CUTOVER_LOCK_TIMEOUT must be positive, got %s", c.CutoverLockTimeout)
	}
	if c.IdentifierSlotBatch < 1 || c.IdentifierSlotBatch > 50 {
		return fmt.Errorf("IDENTIFIER_SLOT_BATCH must be between 1 and 50, got %d", c.IdentifierSlotBatch)
	}
	if c.StagingCopyBatch < 1 {
		return fmt.Errorf("STAGING_COPY_BATCH must be positive, got %d", c.StagingCopyBatch)
	}
	if c.ReconcileProgressEvery < 1 {
		return fmt.Errorf("RECONCILE_PROGRESS_EVERY must be positive, got %d", c.ReconcileProgressEvery)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.APIDefaultLimit < 1 || c.APIMaxLimit < c.APIDefaultLimit {
		return fmt.Errorf("API_DEFAULT_LIMIT (%d) must be positive and not exceed API_MAX_LIMIT (%d)",
			c.APIDefaultLimit, c.APIMaxLimit)
	}
	return nil
}
