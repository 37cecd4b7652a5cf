// Package config binds the GOFR_DIG_* environment variables (and matching
// CLI flags) to a single process-wide Config value via viper, following
// the origin's os.environ.get("GOFR_DIG_*") convention.
package config

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds every recognized environment/CLI setting (§6.4).
type Config struct {
	WebPort  int
	MCPPort  int
	WebURL   string
	Storage  string

	SeqURL    string
	SeqAPIKey string

	HousekeepingIntervalMins int
	MaxStorageMB             int
	HousekeeperLockStaleSecs int

	RateLimitCalls  int
	RateLimitWindow int
	RateLimitRedisURL string

	AllowPrivateURLs bool

	MCPURL string
}

// Defaults match spec.md §6.4 and the origin's concrete constants.
func Defaults() Config {
	return Config{
		WebPort:                  8080,
		MCPPort:                  8070,
		Storage:                  "./data/storage",
		HousekeepingIntervalMins: 60,
		MaxStorageMB:             1024,
		HousekeeperLockStaleSecs: 3600,
		RateLimitCalls:           60,
		RateLimitWindow:          60,
	}
}

// Load builds a Config from environment variables and any flags already
// registered on fs, with fs taking precedence.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GOFR_DIG")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	d := Defaults()
	v.SetDefault("web_port", d.WebPort)
	v.SetDefault("mcp_port", d.MCPPort)
	v.SetDefault("storage", d.Storage)
	v.SetDefault("housekeeping_interval_mins", d.HousekeepingIntervalMins)
	v.SetDefault("max_storage_mb", d.MaxStorageMB)
	v.SetDefault("housekeeper_lock_stale_seconds", d.HousekeeperLockStaleSecs)
	v.SetDefault("rate_limit_calls", d.RateLimitCalls)
	v.SetDefault("rate_limit_window", d.RateLimitWindow)
	v.SetDefault("allow_private_urls", false)

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return Config{}, err
		}
	}

	cfg := d
	cfg.WebPort = v.GetInt("web_port")
	cfg.MCPPort = v.GetInt("mcp_port")
	cfg.WebURL = v.GetString("web_url")
	cfg.Storage = v.GetString("storage")
	cfg.SeqURL = v.GetString("seq_url")
	cfg.SeqAPIKey = v.GetString("seq_api_key")
	cfg.HousekeepingIntervalMins = clampPositive(v.GetInt("housekeeping_interval_mins"), d.HousekeepingIntervalMins, 1)
	cfg.MaxStorageMB = clampPositive(v.GetInt("max_storage_mb"), d.MaxStorageMB, 1)
	cfg.HousekeeperLockStaleSecs = clampPositive(v.GetInt("housekeeper_lock_stale_seconds"), d.HousekeeperLockStaleSecs, 30)
	cfg.RateLimitCalls = clampPositive(v.GetInt("rate_limit_calls"), d.RateLimitCalls, 1)
	cfg.RateLimitWindow = clampPositive(v.GetInt("rate_limit_window"), d.RateLimitWindow, 1)
	cfg.RateLimitRedisURL = v.GetString("rate_limit_redis_url")
	cfg.AllowPrivateURLs = v.GetBool("allow_private_urls")
	cfg.MCPURL = v.GetString("mcp_url")

	return cfg, nil
}

func clampPositive(value, fallback, minimum int) int {
	if value < minimum {
		return fallback
	}
	return value
}
