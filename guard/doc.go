// Package guard is the browser-side half of levelAuth.
//
// A Controller owns the client auth snapshot. It validates the session cookie
// against the server, keeps the snapshot fresh with a heartbeat, forces a local
// logout when the session window closes, and redirects visitors whose access
// level does not permit the current path.
//
// Path decisions are made by a Policy built from the dashboard-path map:
//
//	cfg := guard.DefaultConfig()
//	policy := guard.NewPolicy(cfg)
//	d := policy.Decide(guard.Authenticated{User: guard.User{AccessLevel: 1}}, "/dashboard/superadmin")
//	// d.Redirect == "/dashboard"
//
// The Controller talks to the server through a Backend. API is the HTTP
// implementation; it keeps the auth_token cookie in its own cookie jar.
package guard
