package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/matzehuels/packscan/pkg/errors"
)

// resetViper clears all viper state between tests to avoid cross-contamination.
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("XDG_CACHE_HOME", "/xdg")
}

func TestLoad_Defaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"DataDir", cfg.DataDir, "."},
		{"RepositoriesDir", cfg.RepositoriesDir, "repositories"},
		{"Database", cfg.Database, "packscan.db"},
		{"Concurrency", cfg.Concurrency, 10},
		{"FetchMethod", cfg.FetchMethod, "tarball"},
		{"GitHub.Token", cfg.GitHub.Token, ""},
		{"RateLimit.FallbackMin", cfg.RateLimit.FallbackMin, 30 * time.Second},
		{"RateLimit.FallbackMax", cfg.RateLimit.FallbackMax, 70 * time.Second},
		{"RateLimit.MaxWait", cfg.RateLimit.MaxWait, time.Hour},
		{"Cache.Dir", cfg.Cache.Dir, filepath.Join("/xdg", "packscan")},
		{"Cache.TTL", cfg.Cache.TTL, 24 * time.Hour},
		{"Cache.RedisURL", cfg.Cache.RedisURL, ""},
		{"Cache.Disabled", cfg.Cache.Disabled, false},
		{"Rules.Reference", cfg.Rules.Reference, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	tests := []struct {
		name   string
		envKey string
		envVal string
		field  func(Config) any
		want   any
	}{
		{
			name:   "concurrency",
			envKey: "PACKSCAN_CONCURRENCY",
			envVal: "4",
			field:  func(c Config) any { return c.Concurrency },
			want:   4,
		},
		{
			name:   "fetch_method",
			envKey: "PACKSCAN_FETCH_METHOD",
			envVal: "git",
			field:  func(c Config) any { return c.FetchMethod },
			want:   "git",
		},
		{
			name:   "nested duration",
			envKey: "PACKSCAN_RATE_LIMIT_MAX_WAIT",
			envVal: "5m",
			field:  func(c Config) any { return c.RateLimit.MaxWait },
			want:   5 * time.Minute,
		},
		{
			name:   "prefixed token",
			envKey: "PACKSCAN_GITHUB_TOKEN",
			envVal: "ghp_prefixed",
			field:  func(c Config) any { return c.GitHub.Token },
			want:   "ghp_prefixed",
		},
		{
			name:   "bare token",
			envKey: "GITHUB_TOKEN",
			envVal: "ghp_bare",
			field:  func(c Config) any { return c.GitHub.Token },
			want:   "ghp_bare",
		},
		{
			name:   "cache disabled",
			envKey: "PACKSCAN_CACHE_DISABLED",
			envVal: "true",
			field:  func(c Config) any { return c.Cache.Disabled },
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t)
			t.Setenv(tt.envKey, tt.envVal)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() returned unexpected error: %v", err)
			}
			if got := tt.field(cfg); got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		envKey string
		envVal string
	}{
		{"zero concurrency", "PACKSCAN_CONCURRENCY", "0"},
		{"unknown method", "PACKSCAN_FETCH_METHOD", "rsync"},
		{"inverted fallback", "PACKSCAN_RATE_LIMIT_FALLBACK_MIN", "2m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t)
			t.Setenv(tt.envKey, tt.envVal)

			_, err := Load()
			if !errors.Is(err, errors.ErrCodeFatalStartup) {
				t.Fatalf("Load() error = %v, want FATAL_STARTUP", err)
			}
		})
	}
}

func TestInit_ConfigFile(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "packscan.toml")
	content := `
data_dir = "/data"
concurrency = 3

[github]
base_url = "https://ghe.example.com/api/v3/"

[cache]
ttl = "1h"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := Init(path); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DataDir != "/data" || cfg.Concurrency != 3 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.GitHub.BaseURL != "https://ghe.example.com/api/v3/" {
		t.Errorf("BaseURL = %q", cfg.GitHub.BaseURL)
	}
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("Cache.TTL = %v, want 1h", cfg.Cache.TTL)
	}
	if got := cfg.DatabasePath(); got != filepath.Join("/data", "packscan.db") {
		t.Errorf("DatabasePath() = %q", got)
	}
}

func TestInit_LocalFile(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", filepath.Join(dir, "home"))

	if err := os.WriteFile(".packscan.yaml", []byte("repositories_dir: copies\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := Init(""); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.RepositoriesPath(); got != "copies" {
		t.Errorf("RepositoriesPath() = %q, want copies", got)
	}
}

func TestInit_NoFile(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", filepath.Join(dir, "home"))

	if err := Init(""); err != nil {
		t.Fatalf("Init() error = %v, want nil when no config exists", err)
	}
}

func TestInit_MissingExplicitFile(t *testing.T) {
	resetViper(t)
	err := Init(filepath.Join(t.TempDir(), "missing.toml"))
	if !errors.Is(err, errors.ErrCodeFatalStartup) {
		t.Fatalf("Init() error = %v, want FATAL_STARTUP", err)
	}
}

func TestResolveAbsolute(t *testing.T) {
	cfg := Config{DataDir: "/data", RepositoriesDir: "/elsewhere/repos"}
	if got := cfg.RepositoriesPath(); got != "/elsewhere/repos" {
		t.Errorf("RepositoriesPath() = %q", got)
	}
}

func TestDefaultCacheDir(t *testing.T) {
	t.Run("xdg", func(t *testing.T) {
		t.Setenv("XDG_CACHE_HOME", "/custom/cache")
		if got := DefaultCacheDir(); got != "/custom/cache/packscan" {
			t.Errorf("DefaultCacheDir() = %q", got)
		}
	})
	t.Run("home", func(t *testing.T) {
		t.Setenv("XDG_CACHE_HOME", "")
		home, err := os.UserHomeDir()
		if err != nil {
			t.Skip("no home directory")
		}
		if got := DefaultCacheDir(); got != filepath.Join(home, ".cache", "packscan") {
			t.Errorf("DefaultCacheDir() = %q", got)
		}
	})
}
