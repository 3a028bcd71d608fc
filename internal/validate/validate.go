// Package validate holds the signup field rules shared by the server engine and
// the browser-side signup helper, so both reject the same input with the same messages.
package validate

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MsgRequired       = "This field is required"
	MsgInvalidEmail   = "Please enter a valid email"
	MsgPasswordShort  = "Password must be at least 8 characters"
	MsgPasswordMatch  = "Passwords do not match"
	MsgInvalidUser    = "Username must be at least 3 characters, lowercase letters and digits, starting with a letter"
	MsgInvalidRef     = "Invalid or restricted referral level"
	MsgUplineNotFound = "Upline not found"
	MsgEmailTaken     = "Email already registered"
	MsgUsernameTaken  = "Username already taken"

	MinPasswordLength = 8
	maxRefDigits      = 2
)

var (
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	usernamePattern = regexp.MustCompile(`^[a-z][a-z0-9]{2,}$`)
)

// SignupFields is a signup submission after trimming.
type SignupFields struct {
	Name            string
	Surname         string
	Email           string
	Username        string
	Mobile          string
	Password        string
	ConfirmPassword string
	UplineID        string
}

// IsEmail reports whether s looks like an email address.
func IsEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// IsUsername reports whether s is at least three lowercase letters or digits
// and starts with a letter.
func IsUsername(s string) bool {
	return usernamePattern.MatchString(s)
}

// Signup returns field messages keyed by form field name, or nil when f is valid.
// Password length counts characters, not bytes. ConfirmPassword is only checked
// when supplied.
func Signup(f SignupFields) map[string]string {
	errs := make(map[string]string)
	required := []struct {
		field string
		value string
	}{
		{"name", f.Name},
		{"surname", f.Surname},
		{"email", f.Email},
		{"mobile", f.Mobile},
		{"password", f.Password},
		{"upline_id", f.UplineID},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs[r.field] = MsgRequired
		}
	}

	if _, ok := errs["email"]; !ok && !IsEmail(f.Email) {
		errs["email"] = MsgInvalidEmail
	}
	if _, ok := errs["password"]; !ok && utf8.RuneCountInString(f.Password) < MinPasswordLength {
		errs["password"] = MsgPasswordShort
	}
	if f.Username != "" && !IsUsername(f.Username) {
		errs["username"] = MsgInvalidUser
	}
	if f.ConfirmPassword != "" && f.ConfirmPassword != f.Password {
		errs["confirm_password"] = MsgPasswordMatch
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Password checks a new password on its own, as the reset flow does.
func Password(pw string) string {
	if pw == "" {
		return MsgRequired
	}
	if utf8.RuneCountInString(pw) < MinPasswordLength {
		return MsgPasswordShort
	}
	return ""
}

// SanitizeRef keeps only the digits of raw and truncates to two characters.
func SanitizeRef(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			if b.Len() == maxRefDigits {
				break
			}
		}
	}
	return b.String()
}
