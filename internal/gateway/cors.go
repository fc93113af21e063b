// ABOUTME: CORS middleware for browser-based MCP clients
// ABOUTME: Echoes a single configured origin with credentials, or a wildcard without

package gateway

import "net/http"

// corsMiddleware sets CORS headers on every response and short-circuits
// OPTIONS preflights. A configured origin is allowed to send credentials;
// the wildcard fallback cannot be, so the credentials header is omitted
// there.
func corsMiddleware(allowedOrigin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
