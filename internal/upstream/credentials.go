package upstream

import (
	"context"
	"net/http"
)

const csrfCookieName = "csrftoken"

type credentialsKey struct{}

// Credentials are the browser's cookies for the remote API, forwarded as-is.
type Credentials struct {
	Cookies []*http.Cookie
}

// WithCredentials returns a context carrying creds for upstream calls.
func WithCredentials(ctx context.Context, creds Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey{}, creds)
}

// CredentialsFromContext extracts forwarded credentials from ctx.
func CredentialsFromContext(ctx context.Context) Credentials {
	if v, ok := ctx.Value(credentialsKey{}).(Credentials); ok {
		return v
	}
	return Credentials{}
}

// CredentialsFromRequest collects the cookies of r except those named in skip.
func CredentialsFromRequest(r *http.Request, skip ...string) Credentials {
	var creds Credentials
	for _, c := range r.Cookies() {
		if contains(skip, c.Name) {
			continue
		}
		creds.Cookies = append(creds.Cookies, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return creds
}

func (c Credentials) apply(req *http.Request) {
	for _, ck := range c.Cookies {
		req.AddCookie(ck)
		if ck.Name == csrfCookieName && req.Method != http.MethodGet {
			req.Header.Set("X-CSRFToken", ck.Value)
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
