// ABOUTME: Configuration loading for the monarch-login credential verifier
// ABOUTME: Loads TOML config from an XDG path with environment variable expansion

package main

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultBaseURL is the production Monarch Money API endpoint.
const DefaultBaseURL = "https://api.monarchmoney.com"

// DefaultTimeout bounds each upstream request.
const DefaultTimeout = 30 * time.Second

type Config struct {
	Upstream UpstreamConfig `toml:"upstream"`
	Login    LoginConfig    `toml:"login"`
}

type UpstreamConfig struct {
	BaseURL string        `toml:"base_url"`
	Timeout time.Duration `toml:"-"`

	// Raw string value for TOML unmarshaling
	TimeoutRaw string `toml:"timeout"`
}

// LoginConfig pre-fills the interactive prompts. The password is never read
// from a file; it is always prompted.
type LoginConfig struct {
	Email     string `toml:"email"`
	MFASecret string `toml:"mfa_secret"`
}

// Load reads config from the given path, expanding ${VAR} environment
// references before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if _, err := toml.Decode(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.parseTimeout(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault loads the config file when it exists and otherwise builds
// one from defaults and MONARCH_* environment variables, so the tool works
// with no file on disk.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := &Config{
			Upstream: UpstreamConfig{BaseURL: os.Getenv("MONARCH_BASE_URL")},
			Login: LoginConfig{
				Email:     os.Getenv("MONARCH_EMAIL"),
				MFASecret: os.Getenv("MONARCH_MFA_SECRET"),
			},
		}
		cfg.applyDefaults()
		if err := cfg.parseTimeout(); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validating config: %w", err)
		}
		return cfg, nil
	}
	return Load(path)
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = DefaultBaseURL
	}
}

func (c *Config) parseTimeout() error {
	if c.Upstream.TimeoutRaw != "" {
		timeout, err := time.ParseDuration(c.Upstream.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing upstream.timeout %q: %w", c.Upstream.TimeoutRaw, err)
		}
		c.Upstream.Timeout = timeout
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = DefaultTimeout
	}
	return nil
}

// Validate checks that required config fields are present and valid.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil {
		return fmt.Errorf("upstream.base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("upstream.base_url must use http or https scheme")
	}
	return nil
}
