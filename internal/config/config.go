// Package config resolves settings from flags, VOTERCHART_* environment
// variables and an optional YAML file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/user/voterchart/internal/dataset"
	"github.com/user/voterchart/internal/debounce"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "VOTERCHART"

var ErrInvalid = errors.New("invalid configuration")

// Config is the resolved configuration shared by all commands.
type Config struct {
	Data         string        `mapstructure:"data"`
	Addr         string        `mapstructure:"addr"`
	Width        float64       `mapstructure:"width"`
	Province     string        `mapstructure:"province"`
	Watch        bool          `mapstructure:"watch"`
	Debounce     time.Duration `mapstructure:"debounce"`
	LogLevel     string        `mapstructure:"log_level"`
	LogFormat    string        `mapstructure:"log_format"`
	OTLPEndpoint string        `mapstructure:"otlp_endpoint"`
	CacheDir     string        `mapstructure:"cache_dir"`
	NoCache      bool          `mapstructure:"no_cache"`
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		Data:      dataset.DefaultSource,
		Addr:      "127.0.0.1:8080",
		Width:     960,
		Debounce:  debounce.DefaultDelay,
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// New returns a viper instance primed with defaults and environment lookup.
func New() *viper.Viper {
	v := viper.New()
	d := Defaults()
	v.SetDefault("data", d.Data)
	v.SetDefault("addr", d.Addr)
	v.SetDefault("width", d.Width)
	v.SetDefault("province", d.Province)
	v.SetDefault("watch", d.Watch)
	v.SetDefault("debounce", d.Debounce)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("otlp_endpoint", d.OTLPEndpoint)
	v.SetDefault("cache_dir", d.CacheDir)
	v.SetDefault("no_cache", d.NoCache)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags lets explicitly set flags override the other sources. Flag names
// use dashes; their keys use underscores.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if bindErr := v.BindPFlag(key, f); bindErr != nil {
			err = fmt.Errorf("failed to bind flag %s: %w", f.Name, bindErr)
		}
	})
	return err
}

// Load reads the optional config file and decodes the merged settings.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings no command can work with.
func (c Config) Validate() error {
	if c.Data == "" {
		return fmt.Errorf("%w: data source is empty", ErrInvalid)
	}
	if c.Width <= 0 {
		return fmt.Errorf("%w: width must be positive, got %v", ErrInvalid, c.Width)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("%w: debounce must not be negative, got %s", ErrInvalid, c.Debounce)
	}
	return nil
}
