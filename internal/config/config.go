// Package config loads client configuration from a config file and
// INSIGHT_* environment variables.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the client.
type Config struct {
	// Backend
	BaseURL        string        `mapstructure:"base_url"`
	APIToken       string        `mapstructure:"api_token"`
	StoreID        string        `mapstructure:"store_id"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// Logging
	LogLevel string `mapstructure:"log_level"`

	// Ops listener (health + Prometheus metrics); empty disables it.
	MetricsAddr string `mapstructure:"metrics_addr"`

	// Observer fan-out over NATS; empty URL disables it.
	NATSURL           string `mapstructure:"nats_url"`
	NATSToken         string `mapstructure:"nats_token"`
	NATSSubjectPrefix string `mapstructure:"nats_subject_prefix"`

	// Tracing
	TracingEnabled  bool   `mapstructure:"tracing_enabled"`
	TracingEndpoint string `mapstructure:"tracing_endpoint"`
}

// Load reads configuration from insight.yaml (working directory or
// ~/.config/insight) with environment overrides.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("insight")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/insight")

	v.SetEnvPrefix("INSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("base_url", "http://localhost:8095")
	v.SetDefault("request_timeout", 15*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("nats_subject_prefix", "insight.messages")
	v.SetDefault("tracing_endpoint", "localhost:4318")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
