// ABOUTME: Configuration loading and parsing for monarch-gateway
// ABOUTME: Supports YAML files with environment variable expansion plus a pure-env fallback

package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when a field is left empty.
const (
	DefaultHTTPAddr = "localhost:8455"
	DefaultBaseURL  = "https://api.monarchmoney.com"
	DefaultTimeout  = 30 * time.Second
)

// Config represents the complete monarch-gateway configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Upstream    UpstreamConfig    `yaml:"upstream"`
	Auth        AuthConfig        `yaml:"auth"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	// Debug keeps full error detail in JSON-RPC responses. Off by default:
	// production deployments collapse unexpected internal failures to a
	// generic message.
	Debug bool `yaml:"debug"`
}

// UpstreamConfig holds the upstream API endpoint configuration
type UpstreamConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// AuthConfig holds caller-facing authentication configuration
type AuthConfig struct {
	// GatewayKey is the shared secret required of every caller. Empty
	// disables the check entirely.
	GatewayKey string `yaml:"gateway_key"`
	// AllowedOrigin is the single CORS origin to permit. Empty means any
	// origin (wildcard, without credentials).
	AllowedOrigin string `yaml:"allowed_origin"`
}

// CredentialsConfig holds the fallback upstream credentials used when a
// caller does not supply its own in the Authorization header.
type CredentialsConfig struct {
	Email     string `yaml:"email"`
	Password  string `yaml:"password"`
	MFASecret string `yaml:"mfa_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// FromEnv builds a configuration from defaults and MONARCH_* environment
// variables alone. Used when no config file exists, so pure-environment
// deployments need no file on disk.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			HTTPAddr: envOr("MONARCH_HTTP_ADDR", DefaultHTTPAddr),
			Debug:    envBool("MONARCH_DEBUG"),
		},
		Upstream: UpstreamConfig{
			BaseURL:    envOr("MONARCH_BASE_URL", DefaultBaseURL),
			TimeoutRaw: envOr("MONARCH_TIMEOUT", ""),
		},
		Auth: AuthConfig{
			GatewayKey:    os.Getenv("MONARCH_GATEWAY_KEY"),
			AllowedOrigin: os.Getenv("MONARCH_ALLOWED_ORIGIN"),
		},
		Credentials: CredentialsConfig{
			Email:     os.Getenv("MONARCH_EMAIL"),
			Password:  os.Getenv("MONARCH_PASSWORD"),
			MFASecret: os.Getenv("MONARCH_MFA_SECRET"),
		},
		Logging: LoggingConfig{
			Level:  envOr("MONARCH_LOG_LEVEL", "info"),
			Format: envOr("MONARCH_LOG_FORMAT", "text"),
		},
	}

	cfg.applyDefaults()

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrEnv loads the config file at path when it exists and otherwise
// builds configuration from the environment.
func LoadOrEnv(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return FromEnv()
	}
	return Load(path)
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = DefaultBaseURL
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil {
		return fmt.Errorf("upstream.base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("upstream.base_url must use http or https scheme")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json")
	}

	// Fallback credentials are optional, but half a pair is a config mistake.
	if (c.Credentials.Email == "") != (c.Credentials.Password == "") {
		return fmt.Errorf("credentials.email and credentials.password must be set together")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Upstream.TimeoutRaw != "" {
		timeout, err := time.ParseDuration(cfg.Upstream.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing upstream.timeout %q: %w", cfg.Upstream.TimeoutRaw, err)
		}
		cfg.Upstream.Timeout = timeout
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = DefaultTimeout
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	switch os.Getenv(key) {
	case "1", "true", "yes":
		return true
	}
	return false
}
