// Package config loads proconqd's server configuration from a YAML file,
// overridable by environment variables, using a simple load-then-merge
// shape.
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds everything proconqd needs to start listening.
type Config struct {
	Host          string `yaml:"host,omitempty"`
	Port          int    `yaml:"port,omitempty"`
	DatabasePath  string `yaml:"database_path,omitempty"`
	LogLevel      string `yaml:"log_level,omitempty"`
	LogFile       string `yaml:"log_file,omitempty"`
	AdminPassword string `yaml:"admin_password,omitempty"`
}

// Defaults returns the built-in configuration (§6 "Server configuration").
func Defaults() *Config {
	return &Config{
		Host:         "0.0.0.0",
		Port:         50000,
		DatabasePath: "proconq.db",
		LogLevel:     "info",
	}
}

// Load reads path (if present), then applies PROCONQ_* environment overrides.
// A missing file is not an error — Defaults() is returned with env overrides
// applied.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PROCONQ_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("PROCONQ_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("PROCONQ_DB"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("PROCONQ_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PROCONQ_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("PROCONQ_ADMIN_PASSWORD"); v != "" {
		cfg.AdminPassword = v
	}
}
