package middleware

import (
	"context"
	"net/http"
	"strings"

	levelAuth "github.com/MrEthical07/levelAuth"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the session claims stored by [RequireSession].
func ClaimsFromContext(ctx context.Context) (*levelAuth.SessionClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*levelAuth.SessionClaims)
	return claims, ok && claims != nil
}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *levelAuth.SessionClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// Option customizes a guard.
type Option func(*options)

type options struct {
	reject http.Handler
}

// WithRejectHandler replaces the plain-text 401 written when no valid session is present.
func WithRejectHandler(h http.Handler) Option {
	return func(o *options) {
		o.reject = h
	}
}

func defaultUnauthorized(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// RequireSession returns middleware that validates the session cookie (or an
// Authorization bearer token when the cookie is absent) and stores the claims
// in the request context.
func RequireSession(engine *levelAuth.Engine, opts ...Option) func(http.Handler) http.Handler {
	o := options{reject: http.HandlerFunc(defaultUnauthorized)}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				o.reject.ServeHTTP(w, r)
				return
			}

			token, ok := SessionToken(r, engine.CookieOptions().Name)
			if !ok {
				o.reject.ServeHTTP(w, r)
				return
			}

			claims, err := engine.ValidateSession(r.Context(), token)
			if err != nil {
				o.reject.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// SessionToken extracts the session token from the named cookie, falling back
// to an Authorization bearer header.
func SessionToken(r *http.Request, cookieName string) (string, bool) {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
