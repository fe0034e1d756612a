package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/notesai-go/internal/logging"
)

// authMiddleware enforces Bearer token authentication on /ask and /api/sync.
// apiKey may hold several comma-separated keys so an old key keeps working
// while clients move to a new one. An empty apiKey disables the check; New
// logs a warning once at startup.
//
// Rejections use the same JSON shape as a failed answer so clients handle a
// single error format. The presented token is never logged.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	keys := splitKeys(apiKey)
	if len(keys) == 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContext(r.Context())

		token := bearerToken(r)
		switch {
		case token == "":
			log.Warn("auth: missing bearer token", slog.String("path", r.URL.Path))
			w.Header().Set("WWW-Authenticate", `Bearer realm="notesai"`)
			writeError(w, log, http.StatusUnauthorized, "Authorization required")
		case !matchAny(token, keys):
			log.Warn("auth: invalid bearer token", slog.String("path", r.URL.Path))
			w.Header().Set("WWW-Authenticate", `Bearer realm="notesai", error="invalid_token"`)
			writeError(w, log, http.StatusUnauthorized, "Invalid API key")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// splitKeys parses a comma-separated key list, dropping blanks.
func splitKeys(s string) [][]byte {
	var keys [][]byte
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, []byte(k))
		}
	}
	return keys
}

// matchAny compares token against every key in constant time.
func matchAny(token string, keys [][]byte) bool {
	t := []byte(token)
	ok := 0
	for _, k := range keys {
		ok |= subtle.ConstantTimeCompare(t, k)
	}
	return ok == 1
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. Returns "" if the header is absent or uses another scheme.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
