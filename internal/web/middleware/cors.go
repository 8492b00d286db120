package middleware

import (
	"net/http"
	"strings"
)

// allowedOrigins is the configured origin whitelist. A "*" entry allows any origin.
type allowedOrigins struct {
	any     bool
	origins map[string]struct{}
}

func parseAllowedOrigins(list []string) allowedOrigins {
	a := allowedOrigins{origins: make(map[string]struct{})}
	for _, o := range list {
		o = strings.TrimSpace(o)
		switch o {
		case "":
		case "*":
			a.any = true
		default:
			a.origins[o] = struct{}{}
		}
	}
	return a
}

// isLocalhostOrigin returns true if the origin is http(s)://localhost[:port].
func isLocalhostOrigin(origin string) bool {
	for _, prefix := range []string{"http://localhost", "https://localhost"} {
		rest, ok := strings.CutPrefix(origin, prefix)
		if ok && (rest == "" || strings.HasPrefix(rest, ":")) {
			return true
		}
	}
	return false
}

// isOriginAllowed checks whether a request origin should receive CORS headers.
func (a allowedOrigins) isOriginAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	// Always allow localhost for development.
	if a.any || isLocalhostOrigin(origin) {
		return true
	}
	_, ok := a.origins[origin]
	return ok
}

// CORS returns middleware that handles CORS headers with an origin whitelist.
// Localhost origins are always permitted.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowed := parseAllowedOrigins(origins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowed.isOriginAllowed(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Requested-With")
			w.Header().Set("Access-Control-Max-Age", "86400")

			// Handle preflight requests.
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
