package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config is the full application configuration, loaded from environment
// variables over built-in defaults.
type Config struct {
	Primary       Primary             `koanf:"primary"`
	Server        ServerConfig        `koanf:"server" validate:"required"`
	Storage       StorageConfig       `koanf:"storage" validate:"required"`
	RateLimit     RateLimitConfig     `koanf:"rate_limit"`
	Oplog         OplogConfig         `koanf:"oplog"`
	Observability ObservabilityConfig `koanf:"observability"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Port               string   `koanf:"port" validate:"required"`
	ReadTimeout        int      `koanf:"read_timeout" validate:"required"`
	WriteTimeout       int      `koanf:"write_timeout" validate:"required"`
	IdleTimeout        int      `koanf:"idle_timeout" validate:"required"`
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins" validate:"required"`
	StaticDir          string   `koanf:"static_dir"`
	BodyLimit          string   `koanf:"body_limit" validate:"required"`
}

type StorageConfig struct {
	DataDir       string `koanf:"data_dir" validate:"required"`
	BirdsFile     string `koanf:"birds_file" validate:"required"`
	OplogFile     string `koanf:"oplog_file" validate:"required"`
	RateLimitFile string `koanf:"rate_limit_file" validate:"required"`
	ImagesDir     string `koanf:"images_dir" validate:"required"`
}

type RateLimitConfig struct {
	Limit       int `koanf:"limit" validate:"required,min=1"`
	WindowHours int `koanf:"window_hours" validate:"required,min=1"`
}

type OplogConfig struct {
	RetentionDays int `koanf:"retention_days" validate:"required,min=1"`
}

// ObservabilityConfig enables New Relic reporting when a license key is set.
type ObservabilityConfig struct {
	AppName    string `koanf:"app_name"`
	LicenseKey string `koanf:"license_key"`
}

// BirdsPath is the records file location.
func (s StorageConfig) BirdsPath() string { return filepath.Join(s.DataDir, s.BirdsFile) }

// OplogPath is the operation log file location.
func (s StorageConfig) OplogPath() string { return filepath.Join(s.DataDir, s.OplogFile) }

// RateLimitPath is the rate-limit journal file location.
func (s StorageConfig) RateLimitPath() string { return filepath.Join(s.DataDir, s.RateLimitFile) }

// Window is the limiter's sliding window as a duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowHours) * time.Hour
}

// Retention is the operation log's retention as a duration.
func (o OplogConfig) Retention() time.Duration {
	return time.Duration(o.RetentionDays) * 24 * time.Hour
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Primary: Primary{Env: "development"},
		Server: ServerConfig{
			Port:               "8080",
			ReadTimeout:        15,
			WriteTimeout:       15,
			IdleTimeout:        60,
			CORSAllowedOrigins: []string{"*"},
			StaticDir:          "web/dist",
			BodyLimit:          "5M",
		},
		Storage: StorageConfig{
			DataDir:       "data",
			BirdsFile:     "birds.json",
			OplogFile:     "oplog.json",
			RateLimitFile: "ratelimit.json",
			ImagesDir:     "public/images",
		},
		RateLimit:     RateLimitConfig{Limit: 8, WindowHours: 24},
		Oplog:         OplogConfig{RetentionDays: 30},
		Observability: ObservabilityConfig{AppName: "aviary"},
	}
}

// Load builds the configuration from AVIARY_-prefixed environment variables
// layered over Default, then validates it. Nested keys use a double
// underscore, e.g. AVIARY_SERVER__PORT.
func Load() (*Config, error) {
	k := koanf.New(".")
	err := k.Load(env.Provider("AVIARY_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "AVIARY_")), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
