// Package config loads client settings from a file and the environment.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (FSP_*)
//  2. Configuration file (fsp.yaml)
//  3. Default values
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/Pablu23/fsp/internal/client"
	"github.com/Pablu23/fsp/internal/common"
)

type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Client  ClientConfig  `mapstructure:"client"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type LoggingConfig struct {
	// Level is one of the logrus level names.
	Level string `mapstructure:"level" validate:"required,oneof=trace debug info warn error"`
	// Format is text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json"`
}

// ClientConfig holds the session settings, see client.Options.
type ClientConfig struct {
	Port         int           `mapstructure:"port" validate:"min=1,max=65535"`
	Delay        time.Duration `mapstructure:"delay" validate:"gte=1s,lte=60s"`
	MaxDelay     time.Duration `mapstructure:"max_delay" validate:"gtefield=Delay,lte=60s"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gte=0"`
	ByeTimeout   time.Duration `mapstructure:"bye_timeout" validate:"gt=0"`
	LocalAddress string        `mapstructure:"local_address" validate:"omitempty,hostname_port"`
	// RateLimit in bytes per second, 0 for unlimited.
	RateLimit int `mapstructure:"rate_limit" validate:"gte=0"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Listen is the address of the Prometheus endpoint.
	Listen string `mapstructure:"listen" validate:"omitempty,hostname_port"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("client.port", common.DefaultPort)
	v.SetDefault("client.delay", common.DefaultDelay)
	v.SetDefault("client.max_delay", common.MaxDelay)
	v.SetDefault("client.timeout", common.DefaultTimeout)
	v.SetDefault("client.bye_timeout", 7*time.Second)
	v.SetDefault("client.local_address", "")
	v.SetDefault("client.rate_limit", 0)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9121")
}

// Load reads configPath, or fsp.yaml from the working directory and the user
// config directory when configPath is empty. A missing file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FSP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("fsp")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(configDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

// configDir is $XDG_CONFIG_HOME/fsp or ~/.config/fsp.
func configDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "fsp")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "fsp")
}

// Options converts the client settings into session options.
func (c *ClientConfig) Options() func(*client.Options) {
	return func(o *client.Options) {
		o.Delay = c.Delay
		o.MaxDelay = c.MaxDelay
		o.Timeout = c.Timeout
		o.ByeTimeout = c.ByeTimeout
		o.LocalAddress = c.LocalAddress
		o.RateLimit = c.RateLimit
	}
}
