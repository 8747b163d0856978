package middleware

import (
	"net/http"
	"os"
	"strings"
)

// AllowedOrigins reads the comma-separated ALLOWED_ORIGINS variable, falling
// back to the given defaults when it is unset.
func AllowedOrigins(defaults ...string) []string {
	raw := os.Getenv("ALLOWED_ORIGINS")
	if raw == "" {
		return defaults
	}
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// CORSMiddleware answers preflight requests and stamps CORS headers for
// origins in the allow list. "*" admits any origin but still echoes the
// concrete origin so credentialed requests work.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAny := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAny = true
			continue
		}
		allowed[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && !allowAny && !allowed[origin] {
				next.ServeHTTP(w, r)
				return
			}
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
