// Package config loads docwatch configuration from defaults, an optional
// docwatch.yaml file, environment variables, and CLI flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults match the bench development environment this tool ships with.
const (
	DefaultSite      = "synthlane.localhost"
	DefaultBenchPath = "/workspace/frappe-bench"
	DefaultBenchBin  = "bench"

	DefaultDebounce          = time.Second
	DefaultReloadTimeout     = 30 * time.Second
	DefaultCacheClearTimeout = 10 * time.Second
)

// DefaultApps returns the default allow-list of watched app names.
func DefaultApps() []string {
	return []string{"frappe", "erpnext", "synthlane_ims"}
}

// Config holds the effective docwatch configuration.
type Config struct {
	// Site is the bench site identifier passed via --site.
	Site string `mapstructure:"site" yaml:"site"`

	// BenchPath is the bench root containing the apps/ tree.
	BenchPath string `mapstructure:"bench_path" yaml:"bench_path"`

	// Apps is the allow-list of watched app names.
	Apps []string `mapstructure:"apps" yaml:"apps"`

	// BenchBin is the bench executable name or path.
	BenchBin string `mapstructure:"bench_bin" yaml:"bench_bin"`

	// Debounce is the minimum time between two accepted triggers for
	// one record.
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`

	// ReloadTimeout bounds the reload-doc invocation.
	ReloadTimeout time.Duration `mapstructure:"reload_timeout" yaml:"reload_timeout"`

	// CacheClearTimeout bounds the clear-cache invocation.
	CacheClearTimeout time.Duration `mapstructure:"cache_clear_timeout" yaml:"cache_clear_timeout"`

	// StatusAddr enables the live status server when non-empty.
	StatusAddr string `mapstructure:"status_addr" yaml:"status_addr,omitempty"`

	// LogFile routes log output through a rotating file when non-empty.
	LogFile string `mapstructure:"log_file" yaml:"log_file,omitempty"`
}

// NewViper creates a viper instance with docwatch defaults and environment
// binding. Flag binding is done by the CLI layer on top of this.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("site", DefaultSite)
	v.SetDefault("bench_path", DefaultBenchPath)
	v.SetDefault("apps", DefaultApps())
	v.SetDefault("bench_bin", DefaultBenchBin)
	v.SetDefault("debounce", DefaultDebounce)
	v.SetDefault("reload_timeout", DefaultReloadTimeout)
	v.SetDefault("cache_clear_timeout", DefaultCacheClearTimeout)
	v.SetDefault("status_addr", "")
	v.SetDefault("log_file", "")

	v.SetEnvPrefix("DOCWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Legacy environment name from the original watcher setup.
	_ = v.BindEnv("site", "DOCWATCH_SITE", "FRAPPE_SITE")
	_ = v.BindEnv("bench_path", "DOCWATCH_BENCH_PATH", "BENCH_PATH")

	return v
}

// Load reads the optional config file and unmarshals the effective
// configuration. A missing config file is not an error.
func Load(v *viper.Viper) (*Config, error) {
	v.SetConfigName("docwatch")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the watcher cannot run with.
func (c *Config) Validate() error {
	if c.Site == "" {
		return fmt.Errorf("site cannot be empty")
	}
	if c.BenchPath == "" {
		return fmt.Errorf("bench path cannot be empty")
	}
	if len(c.Apps) == 0 {
		return fmt.Errorf("apps list cannot be empty")
	}
	if c.BenchBin == "" {
		return fmt.Errorf("bench binary cannot be empty")
	}
	if c.Debounce <= 0 {
		return fmt.Errorf("debounce must be positive (got %v)", c.Debounce)
	}
	if c.ReloadTimeout <= 0 {
		return fmt.Errorf("reload timeout must be positive (got %v)", c.ReloadTimeout)
	}
	if c.CacheClearTimeout <= 0 {
		return fmt.Errorf("cache clear timeout must be positive (got %v)", c.CacheClearTimeout)
	}
	return nil
}
