package middleware

import (
	"crypto/subtle"
	"net/http"

	log "github.com/sirupsen/logrus"

	"music-api-go/logcolors"
)

// AdminTokenMiddleware protects operational endpoints with a static
// access token supplied via the X-Admin-Token header. An empty
// configured token disables the endpoints entirely rather than leaving
// them open.
func AdminTokenMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				log.Warnf("%s Admin endpoint %s requested but no token configured", logcolors.LogAuth, r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte(`{"error":"Admin endpoints disabled"}`))
				return
			}

			provided := r.Header.Get("X-Admin-Token")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				log.Warnf("%s Invalid admin token from %s for %s", logcolors.LogAuth, r.RemoteAddr, r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"Invalid admin token"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
