package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string   `mapstructure:"REDIS_URL"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	AuthSecret string `mapstructure:"AUTH_SECRET"`
	AuthIssuer string `mapstructure:"AUTH_ISSUER"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	// Policy defaults. They seed the schedule_config row on first run and
	// act as fallbacks for locations without an explicit schedule config.
	BookingWindowDays int `mapstructure:"BOOKING_WINDOW_DAYS"`
	MaxPerSlot        int `mapstructure:"MAX_PER_SLOT"`
	MaxCandidateDates int `mapstructure:"MAX_CANDIDATE_DATES"`
	LockoutWindowDays int `mapstructure:"LOCKOUT_WINDOW_DAYS"`
	LockoutThreshold  int `mapstructure:"LOCKOUT_THRESHOLD"`
	RescheduleLimit   int `mapstructure:"RESCHEDULE_LIMIT_PER_WINDOW"`

	SnapshotTTL   time.Duration `mapstructure:"SNAPSHOT_TTL"`
	CancelCodeTTL time.Duration `mapstructure:"CANCEL_CODE_TTL"`
	SlotLockTTL   time.Duration `mapstructure:"SLOT_LOCK_TTL"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("BOOKING_WINDOW_DAYS", 30)
	v.SetDefault("MAX_PER_SLOT", 3)
	v.SetDefault("MAX_CANDIDATE_DATES", 14)
	v.SetDefault("LOCKOUT_WINDOW_DAYS", 7)
	v.SetDefault("LOCKOUT_THRESHOLD", 3)
	v.SetDefault("RESCHEDULE_LIMIT_PER_WINDOW", 2)
	v.SetDefault("SNAPSHOT_TTL", "20s")
	v.SetDefault("CANCEL_CODE_TTL", "15m")
	v.SetDefault("SLOT_LOCK_TTL", "5s")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("AUTH_SECRET")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("BOOKING_WINDOW_DAYS")
	v.BindEnv("MAX_PER_SLOT")
	v.BindEnv("MAX_CANDIDATE_DATES")
	v.BindEnv("LOCKOUT_WINDOW_DAYS")
	v.BindEnv("LOCKOUT_THRESHOLD")
	v.BindEnv("RESCHEDULE_LIMIT_PER_WINDOW")
	v.BindEnv("SNAPSHOT_TTL")
	v.BindEnv("CANCEL_CODE_TTL")
	v.BindEnv("SLOT_LOCK_TTL")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Staff endpoints accept unauthenticated requests as admin.")
		log.Println("WARNING: Set ENV=production and AUTH_SECRET for production.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// mode AUTH_SECRET must be set so staff endpoints are actually authenticated,
// and the policy constants must be inside their legal ranges.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required when ENV=%q", c.Env)
	}
	if c.BookingWindowDays < 1 || c.BookingWindowDays > 365 {
		return fmt.Errorf("BOOKING_WINDOW_DAYS must be in [1, 365], got %d", c.BookingWindowDays)
	}
	if c.MaxPerSlot < 1 {
		return fmt.Errorf("MAX_PER_SLOT must be >= 1, got %d", c.MaxPerSlot)
	}
	if c.LockoutWindowDays < 1 {
		return fmt.Errorf("LOCKOUT_WINDOW_DAYS must be >= 1, got %d", c.LockoutWindowDays)
	}
	if c.LockoutThreshold < 1 {
		return fmt.Errorf("LOCKOUT_THRESHOLD must be >= 1, got %d", c.LockoutThreshold)
	}
	if c.RescheduleLimit < 1 {
		return fmt.Errorf("RESCHEDULE_LIMIT_PER_WINDOW must be >= 1, got %d", c.RescheduleLimit)
	}
	if c.SnapshotTTL < 0 {
		return fmt.Errorf("SNAPSHOT_TTL must not be negative")
	}
	return nil
}
