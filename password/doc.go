// Package password implements password hashing and verification with Argon2id.
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters so the
// caller can rehash on the next successful login.
//
// This package owns hashing only. Signup and reset policy (required fields,
// confirmation match) is enforced by the Engine. Plaintext is never logged.
package password
