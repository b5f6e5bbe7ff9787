package api

import (
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
)

// AuthConfig holds authentication credentials for the API middleware.
type AuthConfig struct {
	Users   map[string]string // username -> password
	APIKeys map[string]bool   // valid API key tokens
}

// publicPaths are served without credentials.
var publicPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// authMiddleware accepts HTTP Basic credentials, a Bearer token or an
// X-API-Key header. Anything else gets 401 with a Basic challenge.
func authMiddleware(cfg AuthConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		principal, ok := cfg.authenticate(r)
		if !ok {
			slog.Debug("API request rejected", "path", r.URL.Path, "remote", r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Basic realm="edgecfg API"`)
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		slog.Debug("API request authenticated", "path", r.URL.Path, "principal", principal)
		next.ServeHTTP(w, r)
	})
}

// authenticate returns who made r. API keys are reported as "api-key".
func (cfg AuthConfig) authenticate(r *http.Request) (string, bool) {
	if key := r.Header.Get("X-API-Key"); key != "" && cfg.APIKeys[key] {
		return "api-key", true
	}

	scheme, value, _ := strings.Cut(r.Header.Get("Authorization"), " ")
	switch scheme {
	case "Bearer":
		if cfg.APIKeys[value] {
			return "api-key", true
		}
	case "Basic":
		if user, ok := cfg.checkBasic(value); ok {
			return user, true
		}
	}
	return "", false
}

func (cfg AuthConfig) checkBasic(encoded string) (string, bool) {
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	user, pass, ok := strings.Cut(string(payload), ":")
	if !ok {
		return "", false
	}
	expected, exists := cfg.Users[user]
	if !exists {
		return "", false
	}
	return user, subtle.ConstantTimeCompare([]byte(pass), []byte(expected)) == 1
}
