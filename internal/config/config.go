// Package config loads statwatch configuration from an optional YAML file and
// STATWATCH_* environment variables.
package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. STATWATCH_SOURCE_MODE
const EnvPrefix = "STATWATCH"

// Stats source modes
const (
	SourceAPI   = "api"
	SourceLocal = "local"
)

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Source SourceConfig `mapstructure:"source"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Logger LoggerConfig `mapstructure:"logger"`
}

type ServerConfig struct {
	Listen         string   `mapstructure:"listen" validate:"required"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedIPs     []string `mapstructure:"allowed_ips" validate:"dive,ip"`
	// RateLimit is requests per second per client IP; 0 disables limiting
	RateLimit float64 `mapstructure:"rate_limit" validate:"gte=0"`
	RateBurst int     `mapstructure:"rate_burst" validate:"gte=0"`
}

type AuthConfig struct {
	// Secret signs dashboard tokens; empty uses a generated key persisted in $HOME
	Secret      string        `mapstructure:"secret"`
	TokenExpiry time.Duration `mapstructure:"token_expiry" validate:"gte=0"`
}

type SourceConfig struct {
	Mode        string        `mapstructure:"mode" validate:"oneof=api local"`
	BaseURL     string        `mapstructure:"base_url" validate:"omitempty,url"`
	Token       string        `mapstructure:"token"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gte=0"`
	LocalHostID string        `mapstructure:"local_host_id" validate:"required"`
}

type CacheConfig struct {
	// Sweep is a cron spec for proactive eviction of expired snapshots; empty disables it
	Sweep string `mapstructure:"sweep"`
}

type LoggerConfig struct {
	Mode       string `mapstructure:"mode" validate:"oneof=development production"`
	FileEnable bool   `mapstructure:"file_enable"`
	Filename   string `mapstructure:"filename" validate:"required_if=FileEnable true"`
}

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", "127.0.0.1:8080")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.allowed_ips", []string{})
	v.SetDefault("server.rate_limit", 100)
	v.SetDefault("server.rate_burst", 200)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_expiry", 90*24*time.Hour)
	v.SetDefault("source.mode", SourceLocal)
	v.SetDefault("source.base_url", "")
	v.SetDefault("source.token", "")
	v.SetDefault("source.timeout", 10*time.Second)
	v.SetDefault("source.local_host_id", "local")
	v.SetDefault("cache.sweep", "")
	v.SetDefault("logger.mode", "development")
	v.SetDefault("logger.file_enable", false)
	v.SetDefault("logger.filename", "statwatch.log")
}

// Load reads the config file at path (skipped when empty), applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and the cross-field source rules
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	if c.Source.Mode == SourceAPI && c.Source.BaseURL == "" {
		return errors.New("invalid config: source.base_url is required when source.mode is api")
	}
	return nil
}
