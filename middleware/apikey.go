package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"musicseed-go/logcolors"

	log "github.com/sirupsen/logrus"
)

// AdminAuth guards operator endpoints (stats, backups). The token is read from
// X-API-Key or an "Authorization: Bearer" header.
// If required is false, all requests pass through.
// If required is true but token is empty, every request is refused: an
// unconfigured token must not expose the operator surface.
func AdminAuth(token string, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !required {
				next.ServeHTTP(w, r)
				return
			}

			if token == "" {
				log.Warnf("%s Admin token required but not configured, refusing %s", logcolors.LogAPIKey, r.URL.Path)
				writeUnauthorized(w, "Admin access is not configured")
				return
			}

			provided := r.Header.Get("X-API-Key")
			if provided == "" {
				provided = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			}

			if provided == "" {
				log.Warnf("%s Missing admin token from %s for %s", logcolors.LogAPIKey, ClientOrigin(r), r.URL.Path)
				writeUnauthorized(w, "Admin token required")
				return
			}

			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				log.Warnf("%s Invalid admin token from %s for %s", logcolors.LogAPIKey, ClientOrigin(r), r.URL.Path)
				writeUnauthorized(w, "Invalid admin token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"kind":"validation","error":"` + message + `"}`))
}
