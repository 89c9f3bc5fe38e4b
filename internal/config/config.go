// Package config loads and validates application configuration from a
// YAML file with environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces environment overrides, e.g.
// STACKALERT_DATABASE__URL overrides database.url.
const envPrefix = "STACKALERT_"

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	Database DatabaseConfig `koanf:"database"`
	Trigger  TriggerConfig  `koanf:"trigger"`
	Poll     PollConfig     `koanf:"poll"`
	Email    EmailConfig    `koanf:"email"`
	Services []Service      `koanf:"services" validate:"min=1,dive"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `koanf:"format" validate:"omitempty,oneof=json text"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MinIdleConns    int           `koanf:"min_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

// TriggerConfig contains trigger endpoint settings.
type TriggerConfig struct {
	// Secret guards the poll trigger endpoint.
	Secret string `koanf:"secret" validate:"required,min=16"`
	// Schedule is an optional cron expression for built-in scheduling.
	// Empty means an external scheduler drives the trigger endpoint.
	Schedule string `koanf:"schedule"`
}

// PollConfig contains polling behavior settings.
type PollConfig struct {
	CacheTTL          time.Duration `koanf:"cache_ttl"`
	FetchTimeout      time.Duration `koanf:"fetch_timeout"`
	BatchSize         int           `koanf:"batch_size"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
}

// EmailConfig contains SMTP delivery settings.
type EmailConfig struct {
	Enabled        bool   `koanf:"enabled"`
	SMTPHost       string `koanf:"smtp_host"`
	SMTPPort       int    `koanf:"smtp_port"`
	SMTPUser       string `koanf:"smtp_user"`
	SMTPPassword   string `koanf:"smtp_password"`
	FromAddress    string `koanf:"from_address" validate:"omitempty,email"`
	UnsubscribeURL string `koanf:"unsubscribe_url" validate:"omitempty,url"`
}

// Service is one monitored upstream service.
type Service struct {
	Slug      string `koanf:"slug" validate:"required"`
	Name      string `koanf:"name" validate:"required"`
	StatusURL string `koanf:"status_url" validate:"omitempty,url"`
}

// Load reads configuration from the given YAML file, applies environment
// overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config file: %w", err)
	}

	// STACKALERT_DATABASE__URL → database.url
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.MetricsPort == "" {
		cfg.Server.MetricsPort = "9090"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		// Trigger responses wait for the whole pass.
		cfg.Server.WriteTimeout = 5 * time.Minute
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MinIdleConns == 0 {
		cfg.Database.MinIdleConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.Database.ConnectTimeout == 0 {
		cfg.Database.ConnectTimeout = 30 * time.Second
	}
	if cfg.Database.ConnectAttempts == 0 {
		cfg.Database.ConnectAttempts = 5
	}

	if cfg.Poll.CacheTTL == 0 {
		cfg.Poll.CacheTTL = 120 * time.Second
	}
	if cfg.Poll.FetchTimeout == 0 {
		cfg.Poll.FetchTimeout = 15 * time.Second
	}
	if cfg.Poll.BatchSize == 0 {
		cfg.Poll.BatchSize = 10
	}
	if cfg.Poll.RequestsPerSecond == 0 {
		cfg.Poll.RequestsPerSecond = 20
	}

	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = 587
	}
}
