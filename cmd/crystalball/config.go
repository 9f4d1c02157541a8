package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the server settings that are not database credentials.
// Values come from an optional YAML file, with environment variables filling
// anything left blank.
type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	RedisURL string `yaml:"redis_url"`
	NATSURL  string `yaml:"nats_url"`
}

func loadConfig(path string) (*Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if config.Server.Port == "" {
		config.Server.Port = getEnv("PORT", "8080")
	}
	if len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = []string{"*"}
	}
	if config.RedisURL == "" {
		config.RedisURL = getEnv("REDIS_URL", "redis://localhost:6379/0")
	}
	if config.NATSURL == "" {
		config.NATSURL = getEnv("NATS_URL", "nats://localhost:4222")
	}

	return &config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
