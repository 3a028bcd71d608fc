// Package middleware exposes HTTP middleware that turns the auth_token session
// cookie into validated claims on the request context.
//
// # Guards
//
//   - [RequireSession] validates the session cookie (or a bearer header) and
//     injects the claims.
//   - [RequireLevel] admits only sessions at or above an access level.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT implement
// authentication logic itself. Token checks are delegated to Engine.ValidateSession.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access the user store.
//   - Redirect browsers. Page-level routing belongs to the guard package.
package middleware
