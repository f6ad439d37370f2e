// Package config loads engine configuration from a YAML file, with
// environment overrides for the values that differ between deployments.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Destination describes the destination database connection. Either set DSN
// directly or provide the parts and let the loader assemble one.
type Destination struct {
	Type     string `yaml:"type"`
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
}

// Config is the full engine configuration.
type Config struct {
	Destination  Destination `yaml:"destination"`
	RegistryPath string      `yaml:"registry_path"`
	ServerAddr   string      `yaml:"server_addr"`
	LogLevel     string      `yaml:"log_level"`
	LogFormat    string      `yaml:"log_format"`
	MaxRows      int         `yaml:"max_rows"`
}

// Load reads the YAML file at path, applies defaults, then applies
// environment overrides. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Destination.Type == "" {
		c.Destination.Type = "sqlite"
	}
	if c.Destination.MaxConns == 0 {
		c.Destination.MaxConns = 8
	}
	if c.Destination.SSLMode == "" {
		c.Destination.SSLMode = "prefer"
	}
	if c.RegistryPath == "" {
		c.RegistryPath = "fieldsync.db"
	}
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

func (c *Config) applyEnv() {
	setStr := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setStr(&c.Destination.Type, "FIELDSYNC_DEST_TYPE")
	setStr(&c.Destination.DSN, "FIELDSYNC_DEST_DSN")
	setStr(&c.Destination.Password, "FIELDSYNC_DEST_PASSWORD")
	setStr(&c.RegistryPath, "FIELDSYNC_REGISTRY_PATH")
	setStr(&c.ServerAddr, "FIELDSYNC_SERVER_ADDR")
	setStr(&c.LogLevel, "FIELDSYNC_LOG_LEVEL")
	setStr(&c.LogFormat, "FIELDSYNC_LOG_FORMAT")
	if v := os.Getenv("FIELDSYNC_MAX_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Destination.MaxConns = n
		}
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Destination.Type) {
	case "postgres", "postgresql", "pg", "mssql", "sqlserver", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("unsupported destination type %q", c.Destination.Type)
	}
	return nil
}

// DestinationDSN returns the configured DSN, assembling one from the
// connection parts when no explicit DSN is set. Credentials are URL-encoded
// so passwords containing @ : / survive intact.
func (c *Config) DestinationDSN() string {
	d := c.Destination
	if d.DSN != "" {
		return d.DSN
	}
	switch strings.ToLower(d.Type) {
	case "postgres", "postgresql", "pg":
		port := d.Port
		if port == 0 {
			port = 5432
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			url.QueryEscape(d.User), url.QueryEscape(d.Password),
			d.Host, port, url.QueryEscape(d.Database), d.SSLMode)
	case "mssql", "sqlserver":
		port := d.Port
		if port == 0 {
			port = 1433
		}
		return fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s",
			url.QueryEscape(d.User), url.QueryEscape(d.Password),
			d.Host, port, url.QueryEscape(d.Database))
	default:
		if d.Database != "" {
			return d.Database
		}
		return "fieldsync_dest.db"
	}
}
