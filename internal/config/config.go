// Package config loads the server and client configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Session   SessionConfig   `yaml:"session"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// SessionConfig tunes session persistence. Zero values mean the defaults.
type SessionConfig struct {
	// StaleAfter is the age at which a persisted session is discarded.
	StaleAfter time.Duration `yaml:"stale_after"`
	// RemoteDebounce coalesces remote mirror writes; negative writes through.
	RemoteDebounce time.Duration `yaml:"remote_debounce"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Load reads config from a YAML file, then applies environment variable overrides.
// Env vars use the prefix TEMPO_ and underscore-separated paths:
//
//	TEMPO_SERVER_HOST, TEMPO_SERVER_PORT,
//	TEMPO_DB_HOST, TEMPO_DB_PORT, TEMPO_DB_NAME,
//	TEMPO_DB_USER, TEMPO_DB_PASSWORD, TEMPO_DB_SSLMODE,
//	TEMPO_AUTH_API_KEY,
//	TEMPO_TAILSCALE_ENABLED, TEMPO_TAILSCALE_HOSTNAME, TEMPO_TAILSCALE_STATE_DIR,
//	TEMPO_SESSION_STALE_AFTER
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TEMPO_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("TEMPO_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TEMPO_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("TEMPO_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("TEMPO_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("TEMPO_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("TEMPO_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("TEMPO_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("TEMPO_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("TEMPO_TAILSCALE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tailscale.Enabled = b
		}
	}
	if v := os.Getenv("TEMPO_TAILSCALE_HOSTNAME"); v != "" {
		cfg.Tailscale.Hostname = v
	}
	if v := os.Getenv("TEMPO_TAILSCALE_STATE_DIR"); v != "" {
		cfg.Tailscale.StateDir = v
	}
	if v := os.Getenv("TEMPO_SESSION_STALE_AFTER"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Session.StaleAfter = d
		}
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 && !c.Tailscale.Enabled {
		return fmt.Errorf("server.port is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	if c.Session.StaleAfter < 0 {
		return fmt.Errorf("session.stale_after must not be negative")
	}
	return nil
}

// ClientConfig configures tempoctl on a device.
type ClientConfig struct {
	// StateDir holds the local session cache.
	StateDir string `yaml:"state_dir"`
	// ServerURL enables the remote mirror when set.
	ServerURL string `yaml:"server_url"`
	APIKey    string `yaml:"api_key"`
	// Owner keys the local cache entry.
	Owner string `yaml:"owner"`
	// Notify is "desktop" or "log".
	Notify  string        `yaml:"notify"`
	Session SessionConfig `yaml:"session"`
}

// DefaultClientConfigPath returns ~/.config/tempo/client.yaml.
func DefaultClientConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "client.yaml"
	}
	return filepath.Join(dir, "tempo", "client.yaml")
}

// LoadClient reads the client config. A missing file is not an error: the
// defaults and TEMPO_* overrides apply.
//
//	TEMPO_STATE_DIR, TEMPO_SERVER_URL, TEMPO_API_KEY, TEMPO_OWNER, TEMPO_NOTIFY
func LoadClient(path string) (*ClientConfig, error) {
	cfg := &ClientConfig{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing client config: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("reading client config: %w", err)
	}

	if v := os.Getenv("TEMPO_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
	if v := os.Getenv("TEMPO_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("TEMPO_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("TEMPO_OWNER"); v != "" {
		cfg.Owner = v
	}
	if v := os.Getenv("TEMPO_NOTIFY"); v != "" {
		cfg.Notify = v
	}

	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving state dir: %w", err)
		}
		cfg.StateDir = filepath.Join(home, ".local", "state", "tempo")
	}
	if cfg.Owner == "" {
		cfg.Owner = "local"
	}
	if cfg.Notify == "" {
		cfg.Notify = "log"
	}

	if cfg.ServerURL != "" && cfg.APIKey == "" {
		return nil, fmt.Errorf("client config validation: api_key is required with server_url")
	}
	if cfg.Notify != "log" && cfg.Notify != "desktop" {
		return nil, fmt.Errorf("client config validation: notify must be log or desktop, got %q", cfg.Notify)
	}
	return cfg, nil
}
