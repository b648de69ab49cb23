// Package config loads packscan's runtime configuration from defaults, an
// optional config file, PACKSCAN_* environment variables and CLI flags.
package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/matzehuels/packscan/pkg/acquire"
	"github.com/matzehuels/packscan/pkg/errors"
)

const (
	appName   = "packscan"
	envPrefix = "PACKSCAN"
)

// GitHubConfig holds API credentials and endpoint.
type GitHubConfig struct {
	Token   string `mapstructure:"token"`
	BaseURL string `mapstructure:"base_url"`
}

// RateLimitConfig bounds the waits taken when the API reports exhaustion.
type RateLimitConfig struct {
	FallbackMin time.Duration `mapstructure:"fallback_min"`
	FallbackMax time.Duration `mapstructure:"fallback_max"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
}

// CacheConfig selects the contributor-count cache backend.
type CacheConfig struct {
	Dir      string        `mapstructure:"dir"`
	TTL      time.Duration `mapstructure:"ttl"`
	RedisURL string        `mapstructure:"redis_url"`
	Disabled bool          `mapstructure:"disabled"`
}

// RulesConfig points at an alternative reference data file.
type RulesConfig struct {
	Reference string `mapstructure:"reference"`
}

// Config holds all runtime configuration.
type Config struct {
	DataDir         string          `mapstructure:"data_dir"`
	RepositoriesDir string          `mapstructure:"repositories_dir"`
	Database        string          `mapstructure:"database"`
	Concurrency     int             `mapstructure:"concurrency"`
	FetchMethod     string          `mapstructure:"fetch_method"`
	GitHub          GitHubConfig    `mapstructure:"github"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
	Cache           CacheConfig     `mapstructure:"cache"`
	Rules           RulesConfig     `mapstructure:"rules"`
}

// Init points viper at the config file. An explicit path must exist; without
// one, .packscan.{toml,yaml} is looked up in the working directory and the
// home directory and silently skipped when absent.
func Init(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return errors.Wrap(errors.ErrCodeFatalStartup, err, "read config %s", cfgFile)
		}
		return nil
	}

	viper.SetConfigName("." + appName)
	viper.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
	}
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) {
			return errors.Wrap(errors.ErrCodeFatalStartup, err, "read config")
		}
	}
	return nil
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() (Config, error) {
	viper.SetDefault("data_dir", ".")
	viper.SetDefault("repositories_dir", "repositories")
	viper.SetDefault("database", appName+".db")
	viper.SetDefault("concurrency", 10)
	viper.SetDefault("fetch_method", string(acquire.MethodTarball))
	viper.SetDefault("github.token", "")
	viper.SetDefault("github.base_url", "")
	viper.SetDefault("rate_limit.fallback_min", 30*time.Second)
	viper.SetDefault("rate_limit.fallback_max", 70*time.Second)
	viper.SetDefault("rate_limit.max_wait", time.Hour)
	viper.SetDefault("cache.dir", DefaultCacheDir())
	viper.SetDefault("cache.ttl", 24*time.Hour)
	viper.SetDefault("cache.redis_url", "")
	viper.SetDefault("cache.disabled", false)
	viper.SetDefault("rules.reference", "")

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if err := viper.BindEnv("github.token", envPrefix+"_GITHUB_TOKEN", "GITHUB_TOKEN"); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeFatalStartup, err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings the collector cannot start with.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return errors.New(errors.ErrCodeFatalStartup, "concurrency must be at least 1, got %d", c.Concurrency)
	}
	if _, err := acquire.ParseMethod(c.FetchMethod); err != nil {
		return errors.Wrap(errors.ErrCodeFatalStartup, err, "fetch_method")
	}
	if c.RateLimit.FallbackMin < 0 || c.RateLimit.FallbackMin > c.RateLimit.FallbackMax {
		return errors.New(errors.ErrCodeFatalStartup,
			"rate_limit.fallback_min (%s) must not exceed rate_limit.fallback_max (%s)",
			c.RateLimit.FallbackMin, c.RateLimit.FallbackMax)
	}
	return nil
}

// RepositoriesPath is where local copies live.
func (c Config) RepositoriesPath() string {
	return c.resolve(c.RepositoriesDir)
}

// DatabasePath is the SQLite file backing the store.
func (c Config) DatabasePath() string {
	return c.resolve(c.Database)
}

func (c Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// DefaultCacheDir returns the XDG cache directory (~/.cache/packscan/).
func DefaultCacheDir() string {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName)
	}
	return filepath.Join(home, ".cache", appName)
}
