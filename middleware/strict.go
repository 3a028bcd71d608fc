package middleware

import (
	"net/http"
)

// RequireLevel returns middleware that admits only sessions whose access level
// is at least min. It must run after [RequireSession]; requests without claims
// are rejected with 401 and under-privileged ones with 403.
func RequireLevel(min int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if claims.AccessLevel < min {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
