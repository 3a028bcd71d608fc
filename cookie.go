package levelAuth

import (
	"net/http"
	"time"
)

// CookieOptions is the single source of the session cookie's attributes. The HTTP
// layer uses it both to set the cookie on login and to clear it on logout.
type CookieOptions struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

// CookieOptions returns the configured cookie attributes with MaxAge set to the
// session lifetime.
func (e *Engine) CookieOptions() CookieOptions {
	c := e.config.Cookie
	return CookieOptions{
		Name:     c.Name,
		Path:     c.Path,
		Domain:   c.Domain,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
		SameSite: c.SameSite,
		MaxAge:   e.config.Session.SessionTTL,
	}
}

// SessionCookie builds the cookie carrying token, expiring at expires.
func (o CookieOptions) SessionCookie(token string, expires time.Time) *http.Cookie {
	maxAge := int(time.Until(expires).Seconds())
	if maxAge <= 0 {
		maxAge = int(o.MaxAge.Seconds())
	}
	return &http.Cookie{
		Name:     o.Name,
		Value:    token,
		Path:     o.Path,
		Domain:   o.Domain,
		Expires:  expires.UTC(),
		MaxAge:   maxAge,
		Secure:   o.Secure,
		HttpOnly: o.HTTPOnly,
		SameSite: o.SameSite,
	}
}

// ClearCookie builds the cookie that deletes the session cookie: same name, path
// and domain, zero lifetime (Max-Age=0) and an epoch expiry.
func (o CookieOptions) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     o.Name,
		Value:    "",
		Path:     o.Path,
		Domain:   o.Domain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		Secure:   o.Secure,
		HttpOnly: o.HTTPOnly,
		SameSite: o.SameSite,
	}
}
