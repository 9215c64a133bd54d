package middleware

import (
	"net/http"
	"strings"
)

// CORS handles cross-origin requests from the web frontend.
type CORS struct {
	allowedOrigins []string
	allowAll       bool
}

// NewCORS creates the CORS middleware. "*" in the list allows any origin.
func NewCORS(allowedOrigins []string) *CORS {
	allowAll := false
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
			break
		}
	}
	return &CORS{allowedOrigins: allowedOrigins, allowAll: allowAll}
}

// Handler sets CORS headers and short-circuits preflight requests.
func (c *CORS) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" && (c.allowAll || c.allowed(origin)) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allowed matches the origin exactly. Bare-domain entries also match the
// domain's origin and dot-anchored subdomains, so "example.com" never
// admits "evil-example.com".
func (c *CORS) allowed(origin string) bool {
	for _, a := range c.allowedOrigins {
		if a == origin || strings.HasSuffix(origin, "://"+a) || strings.HasSuffix(origin, "."+a) {
			return true
		}
	}
	return false
}
