package middleware

import (
	"net/http"
	"strings"
)

type header struct{ name, value string }

var apiHeaders = []header{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Cross-Origin-Resource-Policy", "same-origin"},
	{"Cache-Control", "no-store"},
}

// Applied to statement downloads on top of apiHeaders.
var statementHeaders = []header{
	{"X-Download-Options", "noopen"},
	{"Cache-Control", "private, no-store, max-age=0"},
	{"Pragma", "no-cache"},
}

const hsts = "max-age=63072000; includeSubDomains"

// SecureHeaders sets the API response headers. GET requests for benefit
// statements also get the download headers. HSTS is only sent in production.
func SecureHeaders(isProd bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			set(w.Header(), apiHeaders)
			if r.Method == http.MethodGet && isStatementDownload(r.URL.Path) {
				set(w.Header(), statementHeaders)
			}
			if isProd {
				w.Header().Set("Strict-Transport-Security", hsts)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func set(h http.Header, headers []header) {
	for _, hd := range headers {
		h.Set(hd.name, hd.value)
	}
}

func isStatementDownload(path string) bool {
	return strings.HasSuffix(strings.TrimRight(path, "/"), "/benefits/statements")
}
