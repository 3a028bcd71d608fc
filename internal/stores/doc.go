// Package stores provides the Redis-backed record store that makes password
// reset tokens single-use.
//
// Each record is a Redis hash living exactly as long as its token. Saving and
// consuming run as Lua scripts, so a record is read and deleted in one step
// whether or not its digest matches. Digests are compared in constant time and
// the plaintext token is never stored.
package stores
