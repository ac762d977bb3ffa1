// Package config handles application configuration from a YAML file and environment variables.
package config

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds the application configuration.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Feeds    FeedsConfig    `yaml:"feeds"`
	Log      LogConfig      `yaml:"log"`
}

// TelegramConfig holds bot settings.
type TelegramConfig struct {
	BotToken     string  `yaml:"bot_token"     env:"TELEGRAM_BOT_TOKEN"`
	AllowedUsers []int64 `yaml:"allowed_users" env:"ALLOWED_USERS" env-separator:","`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path" env:"DATABASE_PATH" env-default:"./data/curator.db"`
}

// CacheConfig selects and configures the cache backend.
type CacheConfig struct {
	Backend       string `yaml:"backend"        env:"CACHE_BACKEND"  env-default:"memory"`
	RedisAddr     string `yaml:"redis_addr"     env:"REDIS_ADDR"     env-default:"localhost:6379"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db"       env:"REDIS_DB"       env-default:"0"`
	Prefix        string `yaml:"prefix"         env:"CACHE_PREFIX"   env-default:"curator:"`
}

// FeedsConfig holds feed validation and curation settings.
type FeedsConfig struct {
	ValidationTimeout  time.Duration `yaml:"validation_timeout"   env:"FEED_VALIDATION_TIMEOUT"   env-default:"30s"`
	UserAgent          string        `yaml:"user_agent"           env:"FEED_USER_AGENT"           env-default:"NewsCurator/1.0"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify" env:"FEED_INSECURE_SKIP_VERIFY" env-default:"false"`
	CheckInterval      time.Duration `yaml:"check_interval"       env:"CHECK_INTERVAL"            env-default:"15m"`
	Workers            int           `yaml:"workers"              env:"EVAL_WORKERS"              env-default:"8"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

// MaxValidationTimeout bounds a single feed validation.
const MaxValidationTimeout = 30 * time.Second

// Load reads configuration from the YAML file at CONFIG_PATH (default
// ./config.yaml) and environment variables. ENV wins over YAML. A missing
// default file is not an error; a missing explicit one is.
func Load() (*Config, error) {
	var cfg Config

	path := os.Getenv("CONFIG_PATH")
	explicitPath := path != ""
	if !explicitPath {
		path = "./config.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicitPath {
		return nil, fmt.Errorf("config: file %s: %w", path, err)
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if c.Feeds.ValidationTimeout <= 0 || c.Feeds.ValidationTimeout > MaxValidationTimeout {
		return fmt.Errorf("feeds.validation_timeout must be in (0, %s] (got %s)", MaxValidationTimeout, c.Feeds.ValidationTimeout)
	}
	if c.Feeds.CheckInterval < time.Minute {
		return fmt.Errorf("feeds.check_interval must be at least 1m (got %s)", c.Feeds.CheckInterval)
	}
	if c.Feeds.Workers < 1 {
		return fmt.Errorf("feeds.workers must be >= 1 (got %d)", c.Feeds.Workers)
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be memory or redis (got %q)", c.Cache.Backend)
	}
	return nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.Telegram.AllowedUsers) == 0 {
		return true
	}
	return slices.Contains(c.Telegram.AllowedUsers, userID)
}
