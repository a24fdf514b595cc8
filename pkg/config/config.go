// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Observability ObservabilityConfig
	Profiling     ProfilingConfig
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Host               string
	Port               int
	RateLimitPerSecond int
	RateLimitBurst     int
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN builds the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// ObservabilityConfig holds metrics settings.
type ObservabilityConfig struct {
	MetricsEnabled bool
}

// ProfilingConfig holds pprof settings.
type ProfilingConfig struct {
	Enabled bool
	Port    int
}

// Load reads configuration from environment variables with sane defaults for
// local development.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:               envString("SERVER_HOST", "0.0.0.0"),
			Port:               envInt("SERVER_PORT", 8080),
			RateLimitPerSecond: envInt("RATE_LIMIT_PER_SECOND", 0),
			RateLimitBurst:     envInt("RATE_LIMIT_BURST", 0),
		},
		Database: DatabaseConfig{
			Host:     envString("DB_HOST", "localhost"),
			Port:     envInt("DB_PORT", 5432),
			User:     envString("DB_USER", "postgres"),
			Password: envString("DB_PASSWORD", "postgres"),
			Name:     envString("DB_NAME", "smsledger"),
			SSLMode:  envString("DB_SSLMODE", "disable"),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: envBool("METRICS_ENABLED", true),
		},
		Profiling: ProfilingConfig{
			Enabled: envBool("PPROF_ENABLED", false),
			Port:    envInt("PPROF_PORT", 6060),
		},
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.Database.Name == "" {
		return nil, fmt.Errorf("database name is required")
	}

	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
