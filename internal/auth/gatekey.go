// ABOUTME: Gateway-key extraction and constant-time comparison
// ABOUTME: An empty configured key disables the check entirely (deployment opt-out)

package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// PresentedKey extracts the gateway key a caller supplied, checking the
// dedicated X-API-Key header first and falling back to a bearer
// Authorization header. Returns "" when neither is present.
func PresentedKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// KeyMatches reports whether the presented key matches the configured
// gateway key. The comparison is constant time. An empty configured key
// means the deployment opted out of caller authentication, so every
// presented value (including none) is accepted.
func KeyMatches(configured, presented string) bool {
	if configured == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}
