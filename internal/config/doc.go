// Package config handles configuration loading for monarch-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML file with environment variable
// expansion, or built entirely from MONARCH_* environment variables when no
// file exists. The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from MONARCH_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/monarch-gateway/gateway.yaml
//  3. ~/.config/monarch-gateway/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  gateway_key: "${MONARCH_GATEWAY_KEY}"
//
// Syntax: ${VAR_NAME}
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "localhost:8455"
//	  debug: false
//
// Upstream API:
//
//	upstream:
//	  base_url: "https://api.monarchmoney.com"
//	  timeout: "30s"
//
// Caller authentication and CORS:
//
//	auth:
//	  gateway_key: "${MONARCH_GATEWAY_KEY}"  # empty disables the check
//	  allowed_origin: ""                     # empty allows any origin
//
// Fallback upstream credentials (used when the caller supplies none):
//
//	credentials:
//	  email: "${MONARCH_EMAIL}"
//	  password: "${MONARCH_PASSWORD}"
//	  mfa_secret: "${MONARCH_MFA_SECRET}"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Pure-Environment Deployments
//
// FromEnv() builds the same structure from MONARCH_HTTP_ADDR, MONARCH_DEBUG,
// MONARCH_BASE_URL, MONARCH_TIMEOUT, MONARCH_GATEWAY_KEY,
// MONARCH_ALLOWED_ORIGIN, MONARCH_EMAIL, MONARCH_PASSWORD,
// MONARCH_MFA_SECRET, MONARCH_LOG_LEVEL, and MONARCH_LOG_FORMAT.
// LoadOrEnv() picks between the two based on whether the file exists.
//
// # Validation
//
// Load() and FromEnv() validate:
//
//   - upstream.base_url is a valid http(s) URL
//   - logging level and format values
//   - fallback credentials are all-or-nothing on email/password
package config
