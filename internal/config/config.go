// Package config loads recovery settings from a YAML file and the
// environment.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/FocuswithJustin/sqlforensic/core/errors"
)

// EnvPrefix prefixes environment overrides, e.g. SQLFORENSIC_WORKERS.
const EnvPrefix = "SQLFORENSIC"

// Config holds everything a recovery run can be tuned with.
type Config struct {
	Workers      int           `mapstructure:"workers"`
	WindowSize   int           `mapstructure:"window_size"`
	CacheBytes   int64         `mapstructure:"cache_bytes"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	DeletedOnly  bool          `mapstructure:"deleted_only"`

	Carve struct {
		Enabled     bool `mapstructure:"enabled"`
		Freelist    bool `mapstructure:"freelist"`
		Unallocated bool `mapstructure:"unallocated"`
		Master      bool `mapstructure:"master"`
	} `mapstructure:"carve"`

	Logs struct {
		WAL     bool `mapstructure:"wal"`
		Journal bool `mapstructure:"journal"`
	} `mapstructure:"logs"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Output struct {
		Dir    string `mapstructure:"dir"`
		Report string `mapstructure:"report"`
	} `mapstructure:"output"`

	Metrics struct {
		File string `mapstructure:"file"`
	} `mapstructure:"metrics"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("window_size", 64*1024)
	v.SetDefault("cache_bytes", 16<<20)
	v.SetDefault("poll_interval", "5ms")
	v.SetDefault("deleted_only", false)
	v.SetDefault("carve.enabled", true)
	v.SetDefault("carve.freelist", true)
	v.SetDefault("carve.unallocated", true)
	v.SetDefault("carve.master", true)
	v.SetDefault("logs.wal", true)
	v.SetDefault("logs.journal", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("output.dir", "")
	v.SetDefault("output.report", "")
	v.SetDefault("metrics.file", "")
}

// Default returns the built-in settings.
func Default() *Config {
	cfg, _ := Load("")
	return cfg
}

// Load reads path, if given, layered over defaults and SQLFORENSIC_*
// environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.NewIO("read config", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no run could use.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", errors.ErrInvalidInput, c.Workers)
	}
	if c.WindowSize < 512 {
		return fmt.Errorf("%w: window_size must be at least 512, got %d", errors.ErrInvalidInput, c.WindowSize)
	}
	if c.CacheBytes < 0 {
		return fmt.Errorf("%w: cache_bytes cannot be negative, got %d", errors.ErrInvalidInput, c.CacheBytes)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("%w: unknown log format %q", errors.ErrInvalidInput, c.Log.Format)
	}
	return nil
}
