package middleware

import (
	"net/http"
	"strings"
)

// SecurityHeaders selects the CORS origin from a closed allow-list and
// attaches the fixed hardening headers. Unlisted or missing origins get the
// fallback origin; the request origin is never reflected unless listed.
type SecurityHeaders struct {
	allow    map[string]struct{}
	fallback string
}

// NewSecurityHeaders builds a policy from an allow-list and fallback origin.
func NewSecurityHeaders(allowedOrigins []string, fallback string) *SecurityHeaders {
	allow := map[string]struct{}{}
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "" || origin == "*" {
			continue
		}
		allow[origin] = struct{}{}
	}
	return &SecurityHeaders{
		allow:    allow,
		fallback: strings.TrimSpace(fallback),
	}
}

// AllowOrigin returns the Access-Control-Allow-Origin value for origin.
func (s *SecurityHeaders) AllowOrigin(origin string) string {
	origin = strings.TrimSpace(origin)
	if _, ok := s.allow[origin]; ok && origin != "" {
		return origin
	}
	return s.fallback
}

// Headers returns a fresh header set for a request from origin.
func (s *SecurityHeaders) Headers(origin string) http.Header {
	h := http.Header{}
	s.apply(h, origin)
	return h
}

func (s *SecurityHeaders) apply(h http.Header, origin string) {
	h.Set("Access-Control-Allow-Origin", s.AllowOrigin(origin))
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
	h.Add("Vary", "Origin")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-XSS-Protection", "1; mode=block")
	h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
}

// Secure applies the header set to every response passing through it, for
// routes such as /metrics that are not served by the lead handler.
func Secure(policy *SecurityHeaders) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy.apply(w.Header(), r.Header.Get("Origin"))
			next.ServeHTTP(w, r)
		})
	}
}
