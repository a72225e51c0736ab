// Package config loads the sqpack tool configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the sqpack tool configuration.
type Config struct {
	MaxSegmentSize int64  `mapstructure:"max_segment_size"`
	Strict         bool   `mapstructure:"strict"`
	Workers        int    `mapstructure:"workers"`
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
	BlockCache     int    `mapstructure:"block_cache"`
	Mmap           bool   `mapstructure:"mmap"`
}

// Defaults.
const (
	DefaultMaxSegmentSize = 2_000_000_000
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

// Load reads cfgFile, or sqpack.yaml from the working or home directory when
// cfgFile is empty. A missing default file is not an error. SQPACK_-prefixed
// environment variables override file values.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetDefault("max_segment_size", DefaultMaxSegmentSize)
	v.SetDefault("strict", false)
	v.SetDefault("workers", 0)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_format", DefaultLogFormat)
	v.SetDefault("block_cache", 0)
	v.SetDefault("mmap", false)

	v.SetEnvPrefix("sqpack")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.SetConfigName("sqpack")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
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

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.MaxSegmentSize <= 2048 {
		return fmt.Errorf("max_segment_size %d leaves no room for entries", c.MaxSegmentSize)
	}
	if c.BlockCache < 0 {
		return fmt.Errorf("block_cache must not be negative, got %d", c.BlockCache)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// ParseLevel maps a log_level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log_level %q", s)
	}
}
