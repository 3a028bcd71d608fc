package guard

import (
	"context"
	"strconv"
	"strings"

	"github.com/MrEthical07/levelAuth/internal/validate"
)

// SignupForm is the registration form as the browser submits it.
type SignupForm struct {
	Name            string `json:"name"`
	Surname         string `json:"surname"`
	Email           string `json:"email"`
	Username        string `json:"username,omitempty"`
	Mobile          string `json:"mobile"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password,omitempty"`
	UplineID        string `json:"upline_id"`
	Ref             string `json:"ref,omitempty"`
}

const (
	msgFixFields  = "Please correct the highlighted fields"
	msgInvalidRef = "Invalid referral level. Please contact support."
)

// SignupClient validates and submits signup forms.
type SignupClient struct {
	api     *API
	allowed []int
}

func NewSignupClient(api *API, cfg Config) *SignupClient {
	return &SignupClient{api: api, allowed: append([]int(nil), cfg.AllowedRefLevels...)}
}

// SanitizeRef reduces a referral parameter to at most two digits. ok is false
// when the result is empty or not one of allowed.
func SanitizeRef(raw string, allowed []int) (ref string, ok bool) {
	ref = validate.SanitizeRef(raw)
	if ref == "" {
		return "", false
	}
	level, err := strconv.Atoi(ref)
	if err != nil {
		return "", false
	}
	for _, l := range allowed {
		if l == level {
			return ref, true
		}
	}
	return "", false
}

// Validate trims the form in place and returns field messages for anything the
// server would reject on shape alone.
func (s *SignupClient) Validate(form *SignupForm) map[string]string {
	form.Name = strings.TrimSpace(form.Name)
	form.Surname = strings.TrimSpace(form.Surname)
	form.Email = strings.ToLower(strings.TrimSpace(form.Email))
	form.Username = strings.TrimSpace(form.Username)
	form.Mobile = strings.TrimSpace(form.Mobile)
	form.UplineID = strings.TrimSpace(form.UplineID)

	fields := validate.Signup(validate.SignupFields{
		Name:            form.Name,
		Surname:         form.Surname,
		Email:           form.Email,
		Username:        form.Username,
		Mobile:          form.Mobile,
		Password:        form.Password,
		ConfirmPassword: form.ConfirmPassword,
		UplineID:        form.UplineID,
	})

	if strings.TrimSpace(form.Ref) != "" {
		ref, ok := SanitizeRef(form.Ref, s.allowed)
		if !ok {
			if fields == nil {
				fields = make(map[string]string)
			}
			fields["ref"] = msgInvalidRef
		} else {
			form.Ref = ref
		}
	}
	return fields
}

// Submit validates form and posts it. Local rejections and server field
// errors come back as *FormError. A slow server yields ErrTimeout and a
// transport failure ErrNetwork, both retryable.
func (s *SignupClient) Submit(ctx context.Context, form SignupForm) (SignupResult, error) {
	if fields := s.Validate(&form); len(fields) > 0 {
		return SignupResult{}, &FormError{Message: msgFixFields, Fields: fields}
	}

	return s.api.Signup(ctx, form)
}
