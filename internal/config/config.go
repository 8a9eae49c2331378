// ABOUTME: Configuration loading and parsing for polydev-mcp
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ConfigEnvVar names the environment variable that overrides the config path.
const ConfigEnvVar = "POLYDEV_CONFIG"

// Defaults applied when a field is left empty.
const (
	DefaultHTTPAddr           = "0.0.0.0:8080"
	DefaultPublicURL          = "https://www.polydev.ai"
	DefaultMetricsPath        = "/metrics"
	DefaultProviderTimeout    = 30 * time.Second
	DefaultPreferenceCacheTTL = time.Minute
)

// Config represents the complete polydev-mcp configuration
type Config struct {
	Server       ServerConfig       `yaml:"server" toml:"server"`
	Database     DatabaseConfig     `yaml:"database" toml:"database"`
	Logging      LoggingConfig      `yaml:"logging" toml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics" toml:"metrics"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit" toml:"rate_limit"`
	Perspectives PerspectivesConfig `yaml:"perspectives" toml:"perspectives"`
	Providers    []ProviderConfig   `yaml:"providers" toml:"providers"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	// PublicURL is the issuer advertised in the OAuth discovery document.
	PublicURL string `yaml:"public_url" toml:"public_url"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// RateLimitConfig bounds requests per client IP. Zero RequestsPerSecond disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int     `yaml:"burst" toml:"burst"`
}

// PerspectivesConfig tunes the get_perspectives fan-out
type PerspectivesConfig struct {
	ProviderTimeout    time.Duration `yaml:"-" toml:"-"`
	PreferenceCacheTTL time.Duration `yaml:"-" toml:"-"`

	MaxConcurrency int      `yaml:"max_concurrency" toml:"max_concurrency"`
	DefaultModels  []string `yaml:"default_models" toml:"default_models"`

	// Raw string values for unmarshaling
	ProviderTimeoutRaw    string `yaml:"provider_timeout" toml:"provider_timeout"`
	PreferenceCacheTTLRaw string `yaml:"preference_cache_ttl" toml:"preference_cache_ttl"`
}

// ProviderConfig describes one upstream LLM vendor
type ProviderConfig struct {
	Name        string   `yaml:"name" toml:"name"`
	DisplayName string   `yaml:"display_name" toml:"display_name"`
	BaseURL     string   `yaml:"base_url" toml:"base_url"`
	APIKey      string   `yaml:"api_key" toml:"api_key"`
	Models      []string `yaml:"models" toml:"models"`
}

// DefaultPath returns the config file location: $POLYDEV_CONFIG, then
// $XDG_CONFIG_HOME/polydev/mcp.yaml, then ~/.config/polydev/mcp.yaml.
func DefaultPath() string {
	if p := os.Getenv(ConfigEnvVar); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "polydev", "mcp.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "polydev", "mcp.yaml")
	}
	return filepath.Join(home, ".config", "polydev", "mcp.yaml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults fills empty fields. Load calls it; tests building a Config by hand may too.
func (c *Config) ApplyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Server.PublicURL == "" {
		c.Server.PublicURL = DefaultPublicURL
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = int(c.RateLimit.RequestsPerSecond) * 2
		if c.RateLimit.Burst < 1 {
			c.RateLimit.Burst = 1
		}
	}
	if c.Perspectives.ProviderTimeout == 0 {
		c.Perspectives.ProviderTimeout = DefaultProviderTimeout
	}
	if c.Perspectives.PreferenceCacheTTL == 0 {
		c.Perspectives.PreferenceCacheTTL = DefaultPreferenceCacheTTL
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return errors.New("server.http_addr is required")
	}
	if c.Server.PublicURL != "" {
		u, err := url.Parse(c.Server.PublicURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("server.public_url %q must be an absolute URL", c.Server.PublicURL)
		}
	}

	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path)
	}

	if c.RateLimit.RequestsPerSecond < 0 {
		return errors.New("rate_limit.requests_per_second must not be negative")
	}
	if c.RateLimit.Burst < 0 {
		return errors.New("rate_limit.burst must not be negative")
	}

	if c.Perspectives.ProviderTimeout < 0 {
		return errors.New("perspectives.provider_timeout must not be negative")
	}
	if c.Perspectives.MaxConcurrency < 0 {
		return errors.New("perspectives.max_concurrency must not be negative")
	}

	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("providers[%d].name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("providers[%d]: duplicate provider %q", i, p.Name)
		}
		seen[p.Name] = true
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Perspectives.ProviderTimeoutRaw != "" {
		cfg.Perspectives.ProviderTimeout, err = time.ParseDuration(cfg.Perspectives.ProviderTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing provider_timeout %q: %w", cfg.Perspectives.ProviderTimeoutRaw, err)
		}
	}

	if cfg.Perspectives.PreferenceCacheTTLRaw != "" {
		cfg.Perspectives.PreferenceCacheTTL, err = time.ParseDuration(cfg.Perspectives.PreferenceCacheTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing preference_cache_ttl %q: %w", cfg.Perspectives.PreferenceCacheTTLRaw, err)
		}
	}

	return nil
}
