package httpmw

import (
	"net/http"
	"strings"
)

// APIPolicy is the Content-Security-Policy for everything except published
// pages.
const APIPolicy = "default-src 'none'; base-uri 'none'; form-action 'self'; frame-ancestors 'none'; object-src 'none'"

// PagePolicy applies under the published-page prefix. Page bodies are user
// authored HTML, so inline styles and same-origin assets are allowed while
// scripts stay off.
const PagePolicy = "default-src 'self'; script-src 'none'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; base-uri 'none'; form-action 'none'; frame-ancestors 'none'; object-src 'none'"

// SecurityHeaders sets the common response headers. Requests under
// pagePrefix get PagePolicy; an empty prefix applies APIPolicy everywhere.
func SecurityHeaders(pagePrefix string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			if pagePrefix != "" && strings.HasPrefix(r.URL.Path, pagePrefix) {
				h.Set("Content-Security-Policy", PagePolicy)
			} else {
				h.Set("Content-Security-Policy", APIPolicy)
			}
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", "accelerometer=(), camera=(), geolocation=(), gyroscope=(), magnetometer=(), microphone=(), payment=(), usb=()")
			h.Set("Cross-Origin-Opener-Policy", "same-origin")
			h.Set("Cross-Origin-Resource-Policy", "same-origin")
			next.ServeHTTP(w, r)
		})
	}
}
