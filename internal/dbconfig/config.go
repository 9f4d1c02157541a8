// Package dbconfig assembles the Postgres connection URL from the
// environment. A full DATABASE_URL wins when set; otherwise the URL is built
// from the individual DB_* variables, defaulting to a local development
// database.
package dbconfig

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the pieces of a Postgres connection URL.
type Config struct {
	// URL carries a complete connection string and overrides the
	// field-by-field settings below.
	URL string

	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewConfigFromEnv reads DATABASE_URL and the DB_* variables.
func NewConfigFromEnv() Config {
	return Config{
		URL:      os.Getenv("DATABASE_URL"),
		Host:     envOr("DB_HOST", "localhost"),
		Port:     envInt("DB_PORT", 5432),
		User:     envOr("DB_USER", "postgres"),
		Password: envOr("DB_PASSWORD", "postgres"),
		Database: envOr("DB_NAME", "crystalball"),
		SSLMode:  envOr("DB_SSLMODE", "disable"),
	}
}

// DSN returns the connection URL handed to both pgx and lib/pq.
func (c Config) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

func envOr(key, fallback string) string {
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
