package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "REPAIRDESK_"

type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Identity IdentityConfig `yaml:"identity"`
	Session  SessionConfig  `yaml:"session"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
}

type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type IdentityConfig struct {
	BaseURL  string `yaml:"base_url"`
	StateDir string `yaml:"state_dir"`
	// Events enables the revocation feed over WebSocket.
	Events bool `yaml:"events"`
}

type SessionConfig struct {
	ResolveTimeout         time.Duration `yaml:"resolve_timeout"`
	LoginAttemptsPerMinute int           `yaml:"login_attempts_per_minute"`
}

type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	SigninPerMinute int      `yaml:"signin_per_minute"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Seed   bool   `yaml:"seed"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL: "http://127.0.0.1:8000",
			Timeout: 10 * time.Second,
		},
		Identity: IdentityConfig{
			BaseURL: "http://127.0.0.1:8000",
			Events:  true,
		},
		Session: SessionConfig{
			ResolveTimeout:         15 * time.Second,
			LoginAttemptsPerMinute: 5,
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8000,
			SigninPerMinute: 5,
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "file:repairdesk.db?_foreign_keys=on",
			Seed:   true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// REPAIRDESK_* environment overrides. A .env file in the working directory
// is loaded first if present. A missing config file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail later and far from here.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Identity.BaseURL == "" {
		return fmt.Errorf("identity.base_url is required")
	}
	if c.Session.ResolveTimeout <= 0 {
		return fmt.Errorf("session.resolve_timeout must be positive")
	}
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("database.driver %q: want sqlite3 or postgres", c.Database.Driver)
	}
	return nil
}

// Addr is the devserver listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	str("BACKEND_URL", &c.Backend.BaseURL)
	str("IDENTITY_URL", &c.Identity.BaseURL)
	str("STATE_DIR", &c.Identity.StateDir)
	str("DB_DRIVER", &c.Database.Driver)
	str("DB_DSN", &c.Database.DSN)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("HOST", &c.Server.Host)

	if v, ok := lookup(EnvPrefix + "PORT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sPORT: %w", EnvPrefix, err)
		}
		c.Server.Port = n
	}
	if v, ok := lookup(EnvPrefix + "RESOLVE_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sRESOLVE_TIMEOUT: %w", EnvPrefix, err)
		}
		c.Session.ResolveTimeout = d
	}
	if v, ok := lookup(EnvPrefix + "ALLOWED_ORIGINS"); ok && v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}
	return nil
}
