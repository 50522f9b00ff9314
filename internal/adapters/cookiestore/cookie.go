// Package cookiestore binds the session token kind to HTTP cookies and owns the
// cookie attributes shared by the auth API and the portal.
package cookiestore

import (
	"net/http"
	"strings"
	"time"
)

// Policy holds the attributes applied to every session cookie.
type Policy struct {
	Domain string
	// Secure forces the Secure attribute; when nil it follows the request scheme.
	Secure *bool
}

func (p Policy) secure(r *http.Request) bool {
	if p.Secure != nil {
		return *p.Secure
	}
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// Set writes an HttpOnly cookie. A zero maxAge produces a browser-session cookie.
func (p Policy) Set(w http.ResponseWriter, r *http.Request, name, value string, maxAge time.Duration) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   p.Domain,
		HttpOnly: true,
		Secure:   p.secure(r),
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		c.MaxAge = int(maxAge.Seconds())
	}
	http.SetCookie(w, c)
}

// Clear expires a cookie. It mirrors the attributes used by Set so browsers match it.
func (p Policy) Clear(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   p.Domain,
		HttpOnly: true,
		Secure:   p.secure(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}
