// Package sqlite is the bundled levelAuth.UserStore, backed by a single SQLite file.
//
// The schema is embedded and applied by Open. Email and username are unique; an
// empty username is stored as NULL so any number of accounts may omit it. SQLite
// supports one writer, so the pool is limited to a single connection.
package sqlite
