// Package common provides shared utilities for codr.
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for codr.
type Config struct {
	Environment  string             `toml:"environment"`
	Server       ServerConfig       `toml:"server"`
	Broker       BrokerConfig       `toml:"broker"`
	Auth         AuthConfig         `toml:"auth"`
	Admission    AdmissionConfig    `toml:"admission"`
	Languages    map[string]LangCfg `toml:"languages"`
	ControlPlane ControlPlaneConfig `toml:"control_plane"`
	Sandbox      SandboxConfig      `toml:"sandbox"`
	Logging      LoggingConfig      `toml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// BrokerConfig holds the key-value/pub-sub broker connection settings.
type BrokerConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	PoolSize int    `toml:"pool_size"`
}

// AuthConfig holds the API key and stream-token signing configuration.
type AuthConfig struct {
	APIKey         string `toml:"api_key"`
	JWTSecret      string `toml:"jwt_secret"`
	StreamTokenTTL string `toml:"stream_token_ttl"` // duration string, default "24h"
}

// GetStreamTokenTTL parses and returns the stream token TTL.
func (c *AuthConfig) GetStreamTokenTTL() time.Duration {
	d, err := time.ParseDuration(c.StreamTokenTTL)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// AdmissionConfig holds rate-limit and screening toggles.
type AdmissionConfig struct {
	IPLimitPerMin  int  `toml:"ip_limit_per_min"`
	KeyLimitPerMin int  `toml:"key_limit_per_min"`
	ScreeningOn    bool `toml:"screening_on"`
}

// LangCfg maps one language to its worker app name and queue.
type LangCfg struct {
	App   string `toml:"app"`
	Queue string `toml:"queue"`
}

// ControlPlaneConfig holds the machine control-plane client configuration.
type ControlPlaneConfig struct {
	BaseURL   string `toml:"base_url"`
	Token     string `toml:"token"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the control-plane client timeout.
func (c *ControlPlaneConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// SandboxConfig holds the per-host external sandbox client configuration
// (spec.md treats the sandbox itself as an out-of-scope black box; this is
// just the HTTP address the Worker Loop calls into).
type SandboxConfig struct {
	BaseURL string `toml:"base_url"`
	Timeout string `toml:"timeout"`
}

// GetTimeout parses and returns the sandbox client timeout.
func (c *SandboxConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Outputs    []string `toml:"outputs"`
	FilePath   string   `toml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// NewDefaultConfig returns a Config with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Broker: BrokerConfig{
			Addr:     "127.0.0.1:6379",
			DB:       0,
			PoolSize: 20,
		},
		Auth: AuthConfig{
			JWTSecret:      "dev-jwt-secret-change-in-production",
			StreamTokenTTL: "24h",
		},
		Admission: AdmissionConfig{
			IPLimitPerMin:  15,
			KeyLimitPerMin: 100,
			ScreeningOn:    true,
		},
		Languages: map[string]LangCfg{
			"python":     {App: "codr-python-runner", Queue: "queue:python"},
			"javascript": {App: "codr-javascript-runner", Queue: "queue:javascript"},
			"typescript": {App: "codr-typescript-runner", Queue: "queue:typescript"},
			"java":       {App: "codr-java-runner", Queue: "queue:java"},
			"cpp":        {App: "codr-cpp-runner", Queue: "queue:cpp"},
			"c":          {App: "codr-c-runner", Queue: "queue:c"},
			"go":         {App: "codr-go-runner", Queue: "queue:go"},
			"rust":       {App: "codr-rust-runner", Queue: "queue:rust"},
		},
		ControlPlane: ControlPlaneConfig{
			RateLimit: 5,
			Timeout:   "10s",
		},
		Sandbox: SandboxConfig{
			BaseURL: "http://127.0.0.1:9090",
			Timeout: "30s",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Outputs:    []string{"console"},
			FilePath:   "./logs/codr.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := validateRequired(config); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("CODR_ENV"); env != "" {
		config.Environment = env
	}
	if host := os.Getenv("CODR_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("CODR_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if level := os.Getenv("CODR_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if v := os.Getenv("API_KEY"); v != "" {
		config.Auth.APIKey = v
	}
	if v := os.Getenv("JWT_KEY"); v != "" {
		config.Auth.JWTSecret = v
	}
	if v := os.Getenv("CODR_STREAM_TOKEN_TTL"); v != "" {
		config.Auth.StreamTokenTTL = v
	}

	if v := os.Getenv("BROKER_ADDR"); v != "" {
		config.Broker.Addr = v
	}
	if v := os.Getenv("BROKER_PASSWORD"); v != "" {
		config.Broker.Password = v
	}
	if v := os.Getenv("BROKER_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Broker.DB = n
		}
	}

	if v := os.Getenv("CONTROL_PLANE_BASE_URL"); v != "" {
		config.ControlPlane.BaseURL = v
	}
	if v := os.Getenv("CONTROL_PLANE_TOKEN"); v != "" {
		config.ControlPlane.Token = v
	}

	if v := os.Getenv("ORIGINS"); v != "" {
		// not stored in Config; Origins() reads and splits it at point of use
		// (see server CORS middleware)
		_ = v
	}
}

// validateRequired fails fast when required secrets are absent, mirroring
// the documented startup contract: presence of API_KEY/JWT_KEY/broker
// address is required, absence is fatal.
func validateRequired(config *Config) error {
	var missing []string
	if strings.TrimSpace(config.Auth.APIKey) == "" {
		missing = append(missing, "API_KEY")
	}
	if strings.TrimSpace(config.Auth.JWTSecret) == "" || config.Auth.JWTSecret == "dev-jwt-secret-change-in-production" && config.IsProduction() {
		missing = append(missing, "JWT_KEY")
	}
	if strings.TrimSpace(config.Broker.Addr) == "" {
		missing = append(missing, "broker address")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// Origins splits the CSV ORIGINS environment variable into a slice.
func Origins() []string {
	raw := os.Getenv("ORIGINS")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
