package config

import (
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"codeberg.org/ferrule/dcmictl/internal/errors"
)

const (
	DefaultLogLevel = "info"
	DefaultInterval = 5

	defaultTelemetryDB = "/var/lib/dcmictl/telemetry.db"

	// ErrInvalidInterval flags a non-positive polling interval.
	ErrInvalidInterval = errors.ErrorCode("invalid_interval")
)

// Config holds the CLI configuration. Precedence: flags over environment
// over config file over defaults.
type Config struct {
	Interval    int    `mapstructure:"interval"`
	LogLevel    string `mapstructure:"log_level"`
	Telemetry   bool   `mapstructure:"telemetry"`
	TelemetryDB string `mapstructure:"database"`
	Simulate    bool   `mapstructure:"simulate"`
}

// Load reads configuration from the TOML file (DCMICTL_CONFIG overrides the
// search path), the DCMICTL_* environment, and the given flag set. A nil
// flag set skips flag binding.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("telemetry", false)
	v.SetDefault("database", defaultTelemetryDB)
	v.SetDefault("simulate", false)

	v.SetEnvPrefix("DCMICTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("DCMICTL_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(errors.ErrReadConfig, err).
				WithMessage("Failed to read config file")
		}
	} else {
		v.SetConfigName("dcmictl")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errors.Wrap(errors.ErrReadConfig, err).
					WithMessage("Failed to read config file")
			}
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// bindFlags maps dashed flag names onto the underscored config keys. Flags
// absent from the set are skipped so callers can bind partial sets.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	keys := map[string]string{
		"interval":  "interval",
		"log_level": "log-level",
		"telemetry": "telemetry",
		"database":  "database",
		"simulate":  "simulate",
	}
	for key, name := range keys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errors.Wrap(errors.ErrBindFlags, err)
		}
	}
	return nil
}

// Validate checks value ranges that viper cannot express.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warning", "warn", "error":
	default:
		return errors.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.Interval <= 0 {
		return errors.WithData(ErrInvalidInterval, c.Interval)
	}
	return nil
}
