// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"net/http"
	"strings"
)

// SecureHeaders adds security-related HTTP headers to every response.
// frameOrigins lists the editor origins allowed to embed pages in an
// iframe, which is how preview surfaces are usually shown; with none, only
// the same origin may frame them.
func SecureHeaders(frameOrigins []string) func(http.Handler) http.Handler {
	ancestors := "'self'"
	for _, o := range frameOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" && o != "*" {
			ancestors += " " + o
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()

			// Prevent the browser from MIME-sniffing the Content-Type.
			h.Set("X-Content-Type-Options", "nosniff")

			// Legacy browsers only understand X-Frame-Options.
			if len(frameOrigins) == 0 {
				h.Set("X-Frame-Options", "SAMEORIGIN")
			}
			h.Set("Content-Security-Policy", "frame-ancestors "+ancestors)

			// Disable the legacy XSS filter (can cause issues; CSP is preferred).
			h.Set("X-XSS-Protection", "0")

			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "interest-cohort=()")

			next.ServeHTTP(w, r)
		})
	}
}
