package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Logging LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port      string `env:"PORRA_PORT" envDefault:"8080"`
	Host      string `env:"PORRA_HOST" envDefault:"0.0.0.0"`
	Env       string `env:"PORRA_ENV" envDefault:"development"` // "development" or "production"
	PublicURL string `env:"PORRA_PUBLIC_URL"`                   // Base URL used in share links
}

// StoreConfig holds record store configuration
type StoreConfig struct {
	Persist            bool          `env:"PORRA_PERSIST" envDefault:"true"`
	DBPath             string        `env:"PORRA_DB_PATH" envDefault:"porra.db"`
	StaleRecordTimeout time.Duration `env:"PORRA_STALE_RECORD_TIMEOUT" envDefault:"2h"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// GetAddr returns the server address in host:port format
func (c *Config) GetAddr() string {
	return c.Server.Host + ":" + c.Server.Port
}
