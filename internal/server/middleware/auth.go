package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Auth returns middleware that requires one of the configured API keys as a
// Bearer token or in the X-API-Key header. apiKeys is a comma-separated list
// so a key can be rotated without downtime; an empty list disables the
// check. Requests for the public paths are never checked.
func Auth(apiKeys string, public ...string) func(http.Handler) http.Handler {
	keys := parseKeys(apiKeys)
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(keys) == 0 || open[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			token := extractToken(r)
			switch {
			case token == "":
				w.Header().Set("WWW-Authenticate", `Bearer realm="tradesync"`)
				writeJSONError(w, http.StatusUnauthorized, "missing authentication token", "unauthorized")
			case !matchesAny(token, keys):
				writeJSONError(w, http.StatusUnauthorized, "invalid authentication token", "unauthorized")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func parseKeys(s string) [][]byte {
	var keys [][]byte
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, []byte(k))
		}
	}
	return keys
}

// matchesAny compares token against every key in constant time.
func matchesAny(token string, keys [][]byte) bool {
	ok := 0
	for _, k := range keys {
		ok |= subtle.ConstantTimeCompare([]byte(token), k)
	}
	return ok == 1
}

// extractToken reads "Authorization: Bearer <token>", then X-API-Key.
func extractToken(r *http.Request) string {
	if scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " "); found && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// writeJSONError writes the same {"error","code"} body the API handlers use.
func writeJSONError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}
