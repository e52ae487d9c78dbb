package middleware

import (
	"net/http"

	"github.com/unigo-labs/unigo-chat/internal/identity"
	"github.com/unigo-labs/unigo-chat/internal/upstream"
)

// ForwardCredentials attaches the browser's cookies, minus the gateway's own
// device cookie, to the request context for upstream calls.
func ForwardCredentials(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creds := upstream.CredentialsFromRequest(r, identity.DeviceCookieName)
		next.ServeHTTP(w, r.WithContext(upstream.WithCredentials(r.Context(), creds)))
	})
}

// MaxBody caps request bodies at n bytes.
func MaxBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if n > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}
