// Package config loads gateway runtime settings from a YAML file, ACCESSGATE_*
// environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/ppiankov/accessgate/internal/alert"
	"github.com/ppiankov/accessgate/internal/audit"
	"github.com/ppiankov/accessgate/internal/domain"
	"github.com/ppiankov/accessgate/internal/ratelimit"
)

// EnvPrefix prefixes every environment override, e.g. ACCESSGATE_SERVER_PORT.
const EnvPrefix = "ACCESSGATE"

type ServerConfig struct {
	Port int `mapstructure:"port"`
	// MetricsAddr serves Prometheus /metrics when non-empty.
	MetricsAddr string `mapstructure:"metrics_addr"`
	// Reload watches the bundle file and re-applies it on change.
	Reload bool `mapstructure:"reload"`
	// RateLimit bounds evaluations per tenant/user. Zero disables it.
	RateLimit ratelimit.Limit `mapstructure:"rate_limit"`
}

type AuditConfig struct {
	// Log is a JSONL file mirroring the chain. Empty disables it.
	Log        string `mapstructure:"log"`
	MaxEntries int    `mapstructure:"max_entries"`
}

type DomainConfig struct {
	// MissingConfig is "open" or "closed".
	MissingConfig string `mapstructure:"missing_config"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the full runtime configuration.
type Config struct {
	// Bundle is the YAML seed of policies, profiles, filters and domains.
	Bundle string `mapstructure:"bundle"`
	// Database is a SQLite file. Empty keeps all state in memory.
	Database string       `mapstructure:"database"`
	Server   ServerConfig `mapstructure:"server"`
	Audit    AuditConfig  `mapstructure:"audit"`
	Domain   DomainConfig `mapstructure:"domain"`
	Log      LogConfig    `mapstructure:"log"`
	// Alerts are webhooks fired for committed audit entries.
	Alerts []alert.Config `mapstructure:"alerts"`
}

// New returns a viper instance with defaults and env binding applied.
// Callers may bind command-line flags to it before Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bundle", "")
	v.SetDefault("database", "")
	v.SetDefault("server.port", 50051)
	v.SetDefault("server.metrics_addr", "")
	v.SetDefault("server.reload", true)
	v.SetDefault("server.rate_limit.max_requests", 0)
	v.SetDefault("server.rate_limit.window", "1m")
	v.SetDefault("audit.log", "")
	v.SetDefault("audit.max_entries", audit.DefaultMaxEntries)
	v.SetDefault("domain.missing_config", string(domain.MissingOpen))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads configFile into v, or searches ./ and ~/.accessgate for
// config.yaml when configFile is empty. A missing searched file is not an
// error; a missing explicit file is.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := DefaultDir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the gateway cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Server.RateLimit.MaxRequests < 0 || c.Server.RateLimit.Window < 0 {
		return fmt.Errorf("config: server.rate_limit must not be negative")
	}
	if c.Audit.MaxEntries <= 0 {
		return fmt.Errorf("config: audit.max_entries must be positive")
	}
	if _, err := domain.ParseMissingConfigMode(c.Domain.MissingConfig); err != nil {
		return fmt.Errorf("config: domain.missing_config: %w", err)
	}
	for _, a := range c.Alerts {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("config: alerts: %w", err)
		}
	}
	return nil
}

// DefaultDir returns ~/.accessgate.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".accessgate"), nil
}
