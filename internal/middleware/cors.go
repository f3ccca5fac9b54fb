package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS allows credentialed requests so browsers send the session cookies. A
// wildcard origin cannot be combined with credentials, so an empty origin list
// disables cross-origin access entirely.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowed := make([]string, 0, len(origins))
	for _, origin := range origins {
		if origin == "" || origin == "*" {
			continue
		}
		allowed = append(allowed, origin)
	}

	options := cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		MaxAge:           3600,
		AllowCredentials: true,
	}
	if len(allowed) == 0 {
		// rs/cors reads an empty origin list as "allow all"
		options.AllowOriginFunc = func(string) bool { return false }
	}

	return cors.New(options).Handler
}

func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "no-referrer")
		headers.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
