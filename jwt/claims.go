package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Purpose binds a token to the flow that minted it. A token issued for one
// purpose never verifies for another.
type Purpose string

const (
	// PurposeSession marks the browser session token carried in the auth cookie.
	PurposeSession Purpose = "session"
	// PurposeVerify marks the email confirmation token sent after signup.
	PurposeVerify Purpose = "verify"
	// PurposeReset marks the short-lived password reset token.
	PurposeReset Purpose = "reset"
)

// Identity is the set of user facts embedded in a token.
type Identity struct {
	UserID      string
	Email       string
	Username    string
	AccessLevel int
}

// SessionClaims is the decoded payload of a levelAuth token.
type SessionClaims struct {
	UID         string  `json:"uid"`
	Email       string  `json:"email,omitempty"`
	Username    string  `json:"username,omitempty"`
	AccessLevel int     `json:"lvl"`
	Purpose     Purpose `json:"pur"`
	jwt.RegisteredClaims
}

func newClaims(id Identity, purpose Purpose, issuer, jti string, now, exp time.Time) SessionClaims {
	return SessionClaims{
		UID:         id.UserID,
		Email:       id.Email,
		Username:    id.Username,
		AccessLevel: id.AccessLevel,
		Purpose:     purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    issuer,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
}

// Identity returns the user facts carried by c.
func (c *SessionClaims) Identity() Identity {
	return Identity{
		UserID:      c.UID,
		Email:       c.Email,
		Username:    c.Username,
		AccessLevel: c.AccessLevel,
	}
}

// ExpiresAtTime returns the embedded expiry, or the zero time when absent.
func (c *SessionClaims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// check applies the rules the jwt library does not know about.
func (c *SessionClaims) check(want Purpose, notAfter time.Time) error {
	switch {
	case c.Purpose != want:
		return fmt.Errorf("purpose %q, want %q", c.Purpose, want)
	case c.UID == "":
		return errors.New("missing subject")
	case c.IssuedAt != nil && c.IssuedAt.Time.After(notAfter):
		return errors.New("iat in the future")
	}
	return nil
}
