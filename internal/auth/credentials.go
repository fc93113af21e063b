// ABOUTME: Upstream credential model and Authorization-header decoding
// ABOUTME: Caller-supplied base64 JSON credentials take precedence over config fallback

package auth

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"strings"
)

// Credentials identify one upstream account. Email and Password are required;
// MFASecret, when present, takes precedence over a raw MFACode because the
// current code can always be derived from the seed.
type Credentials struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	MFACode   string `json:"mfaCode,omitempty"`
	MFASecret string `json:"mfaSecretKey,omitempty"`
}

// Valid reports whether the credentials carry both required fields.
func (c *Credentials) Valid() bool {
	return c != nil && c.Email != "" && c.Password != ""
}

// LogValue renders credentials for logging without exposing secret material.
func (c *Credentials) LogValue() slog.Value {
	if c == nil {
		return slog.StringValue("<none>")
	}
	return slog.GroupValue(
		slog.String("email", MaskEmail(c.Email)),
		slog.Bool("has_mfa_code", c.MFACode != ""),
		slog.Bool("has_mfa_secret", c.MFASecret != ""),
	)
}

// ParseHeader decodes caller-supplied credentials from an Authorization
// header value. The expected encoding is base64 JSON, with or without a
// "Bearer " prefix and with or without base64 padding. Returns false when the
// header does not decode to a payload carrying both an email and a password;
// a false return is not an error, it just means the fallback path applies.
func ParseHeader(header string) (*Credentials, bool) {
	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if raw == "" {
		return nil, false
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(raw)
		if err != nil {
			return nil, false
		}
	}

	var creds Credentials
	if err := json.Unmarshal(decoded, &creds); err != nil {
		return nil, false
	}
	if !creds.Valid() {
		return nil, false
	}
	return &creds, true
}

// Resolve picks the credentials for one call: caller-supplied from the
// Authorization header if present and complete, otherwise the configured
// fallback. The returned source is "caller" or "fallback" for logging.
func Resolve(authHeader string, fallback *Credentials) (*Credentials, string) {
	if creds, ok := ParseHeader(authHeader); ok {
		return creds, "caller"
	}
	if fallback.Valid() {
		return fallback, "fallback"
	}
	return nil, ""
}

// MaskEmail redacts an email address down to a recognizable prefix, keeping
// the domain so operators can tell accounts apart in logs.
func MaskEmail(email string) string {
	at := strings.Index(email, "@")
	if at < 1 {
		return "***"
	}
	keep := 2
	if at < keep {
		keep = at
	}
	return email[:keep] + "***" + email[at:]
}
