package security

import (
	"net/http"
	"strconv"
	"strings"
)

// HeadersConfig lists the hardening headers to send. Empty values are
// skipped.
type HeadersConfig struct {
	CSP               string
	FrameOptions      string
	ContentTypeOpts   string
	XSSProtection     string
	ReferrerPolicy    string
	PermissionsPolicy string
	OpenerPolicy      string
	ResourcePolicy    string

	// HSTSMaxAge in seconds; only sent on TLS connections.
	HSTSMaxAge     int
	HSTSSubdomains bool
	HSTSPreload    bool
}

// cspDirectives allow htmx and its sse extension from unpkg and the Google
// sign-in button. connect-src 'self' covers the ledger event stream.
var cspDirectives = []string{
	"default-src 'self'",
	"script-src 'self' https://unpkg.com https://accounts.google.com/gsi/client",
	"style-src 'self' 'unsafe-inline' https://accounts.google.com/gsi/style",
	"img-src 'self' data: https://*.googleusercontent.com",
	"connect-src 'self' https://accounts.google.com/gsi/",
	"frame-src https://accounts.google.com/gsi/",
	"font-src 'self'",
	"object-src 'none'",
	"frame-ancestors 'none'",
	"base-uri 'self'",
	"form-action 'self'",
}

func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		CSP:               strings.Join(cspDirectives, "; "),
		FrameOptions:      "DENY",
		ContentTypeOpts:   "nosniff",
		XSSProtection:     "1; mode=block",
		ReferrerPolicy:    "strict-origin-when-cross-origin",
		PermissionsPolicy: "geolocation=(), microphone=(), camera=(), payment=()",
		// The Google sign-in popup must keep its opener.
		OpenerPolicy:   "same-origin-allow-popups",
		ResourcePolicy: "same-origin",
		HSTSMaxAge:     365 * 24 * 60 * 60,
		HSTSSubdomains: true,
	}
}

type HeadersMiddleware struct {
	always [][2]string
	hsts   string
}

// NewHeadersMiddleware renders the header values once.
func NewHeadersMiddleware(cfg HeadersConfig) *HeadersMiddleware {
	h := &HeadersMiddleware{}
	for _, kv := range [][2]string{
		{"Content-Security-Policy", cfg.CSP},
		{"X-Frame-Options", cfg.FrameOptions},
		{"X-Content-Type-Options", cfg.ContentTypeOpts},
		{"X-XSS-Protection", cfg.XSSProtection},
		{"Referrer-Policy", cfg.ReferrerPolicy},
		{"Permissions-Policy", cfg.PermissionsPolicy},
		{"Cross-Origin-Opener-Policy", cfg.OpenerPolicy},
		{"Cross-Origin-Resource-Policy", cfg.ResourcePolicy},
	} {
		if kv[1] != "" {
			h.always = append(h.always, kv)
		}
	}

	if cfg.HSTSMaxAge > 0 {
		parts := []string{"max-age=" + strconv.Itoa(cfg.HSTSMaxAge)}
		if cfg.HSTSSubdomains {
			parts = append(parts, "includeSubDomains")
		}
		if cfg.HSTSPreload {
			parts = append(parts, "preload")
		}
		h.hsts = strings.Join(parts, "; ")
	}
	return h
}

func (h *HeadersMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		for _, kv := range h.always {
			header.Set(kv[0], kv[1])
		}
		if h.hsts != "" && r.TLS != nil {
			header.Set("Strict-Transport-Security", h.hsts)
		}
		next.ServeHTTP(w, r)
	})
}

// StaticAssetMiddleware marks embedded assets cacheable for maxAge seconds.
func StaticAssetMiddleware(maxAge int) func(http.Handler) http.Handler {
	value := "public, max-age=" + strconv.Itoa(maxAge)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxAge > 0 {
				w.Header().Set("Cache-Control", value)
			}
			next.ServeHTTP(w, r)
		})
	}
}
