package levelAuth

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrValidation marks malformed or incomplete input. *ValidationError wraps it.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials is returned by Login for an unknown identifier or a wrong password.
	ErrInvalidCredentials = errors.New("Invalid email/username or password")
	// ErrEmailUnverified is returned by Login for an account whose email is not confirmed.
	ErrEmailUnverified = errors.New("Please verify your email")
	// ErrSessionInvalid is returned for a missing, tampered, expired or wrong-purpose session token.
	ErrSessionInvalid = errors.New("invalid or expired session")
	// ErrTokenInvalid is returned for a bad, expired or already used verification or reset token.
	ErrTokenInvalid = errors.New("invalid or expired token")
	// ErrUplineNotFound is returned by Signup when the upline reference resolves to no account.
	ErrUplineNotFound = errors.New("upline not found")
	// ErrRefLevelNotAllowed is returned by Signup for a referral level outside the allowed set.
	ErrRefLevelNotAllowed = errors.New("referral level not allowed")
	// ErrUserNotFound is returned by Profile when no account matches.
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicateUser is returned by a UserStore when email or username is already taken.
	ErrDuplicateUser = errors.New("email or username already registered")
	// ErrStoreUnavailable wraps UserStore failures that are not caller errors.
	ErrStoreUnavailable = errors.New("user store unavailable")
	// ErrResetUnavailable wraps reset token store failures.
	ErrResetUnavailable = errors.New("password reset backend unavailable")
	// ErrSessionCreationFailed is returned when a session token cannot be signed.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrEngineNotReady is returned by methods on a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ValidationError carries per-field messages for rejected input. It matches
// ErrValidation under errors.Is.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Add records msg for field unless the field already has a message.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// Err returns e when any field failed and nil otherwise.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func fieldError(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}
