// Package jwt issues and verifies the signed tokens used by levelAuth: session tokens carried
// in the auth cookie, email verification tokens, and password reset tokens. Every token carries
// a purpose claim and never verifies for a different purpose.
package jwt
