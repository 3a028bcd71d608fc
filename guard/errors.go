package guard

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrSessionInvalid is returned when the server rejects the session or
	// answers with a payload that does not describe a usable session.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrLevelMismatch is returned by Login when the validated session carries a
	// different access level than the login response.
	ErrLevelMismatch = errors.New("Session validation failed after login. Please try again.")
	// ErrNetwork wraps transport failures. The caller may retry.
	ErrNetwork = errors.New("network error")
	// ErrTimeout is returned when a request exceeds the fetch timeout. The
	// caller may retry.
	ErrTimeout = errors.New("request timed out")
	// ErrInvalidConfig is returned for unusable guard configuration.
	ErrInvalidConfig = errors.New("invalid guard config")
)

// FormError is a rejected form submission. Fields maps form field names to
// messages suitable for inline display.
type FormError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *FormError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(keys, ", "))
}

// Retryable reports whether err is a transport failure worth retrying, as
// opposed to a rejection by the server.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrTimeout)
}
