package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"thoth/internal/config"
)

const corsMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"

// OriginAllowed reports whether a browser at origin may call the API.
func OriginAllowed(cfg *config.CORSConfig, origin string) bool {
	for _, allowed := range cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}
	return false
}

// CORS echoes allowed origins back and answers their preflights itself.
// Requests from other origins reach next without CORS headers, so browsers
// drop the response.
func CORS(cfg *config.CORSConfig) func(http.Handler) http.Handler {
	if cfg == nil {
		cfg = config.DefaultCORSConfig()
	}
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	maxAge := strconv.Itoa(int(cfg.MaxAge.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || !OriginAllowed(cfg, origin) {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Allow-Headers", headers)
				h.Set("Access-Control-Max-Age", maxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
