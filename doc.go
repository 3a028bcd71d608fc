// Package levelAuth is the server side of a browser-facing authentication layer that
// routes users by a numeric access level.
//
// The package issues and validates signed session tokens and runs the account flows
// around them: signup with an upline reference and optional referral level, email
// confirmation, login, logout, forgotten password and profile reads. Engine methods
// are safe to call from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// levelAuth is the public surface. It exposes [Engine], [Builder], [Config] and the
// value types its methods exchange. Account persistence ([UserStore]), email delivery
// ([Mailer]) and password hashing ([PasswordHasher]) are collaborators supplied by the
// caller; store/sqlite, mail/mqtt and password provide bundled implementations.
// Token signing lives in the jwt package. Redis is used only to make password reset
// tokens single use.
//
// The HTTP surface is package server. The browser-side session guard and the
// authorization map builder are package guard.
//
// # Performance contract
//
// ValidateSession is the hot path. It verifies signature, expiry and purpose and
// trusts the embedded claims without any store or Redis round-trip.
package levelAuth
