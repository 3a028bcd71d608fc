// Package server exposes the levelAuth engine over HTTP for browser clients.
//
// Routes mirror the auth pages' expectations: JSON bodies, a
// {success, message, data, errors} envelope, and the session carried in the
// auth_token cookie. Every route can be mounted under a base path such as
// /@semantq/auth.
//
// The server follows the same lifecycle as the other components:
//
//	srv, err := server.New(deps)
//	srv.Start(ctx)
//	defer srv.Close()
//
// All methods are safe for concurrent use.
package server
