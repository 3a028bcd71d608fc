package guard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 1 << 20

// Backend is the server surface the Controller depends on.
type Backend interface {
	Login(ctx context.Context, identifier, password string) (User, error)
	ValidateSession(ctx context.Context) (User, error)
	Logout(ctx context.Context) error
	Profile(ctx context.Context) (Profile, error)
}

// Profile is the account view returned by GET /profile.
type Profile struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Surname     string    `json:"surname"`
	Email       string    `json:"email"`
	Username    string    `json:"username,omitempty"`
	Mobile      string    `json:"mobile"`
	AccessLevel int       `json:"access_level"`
	UplineID    string    `json:"upline_id,omitempty"`
	Verified    bool      `json:"verified"`
	CreatedAt   time.Time `json:"created_at"`
}

// SignupResult is the body of a successful POST /signup.
type SignupResult struct {
	VerificationToken string `json:"verification_token"`
	UserID            string `json:"user_id"`
}

// API is the HTTP Backend. It holds the session cookie in its own jar, the
// way a browser does for credentialed requests.
type API struct {
	base    string
	client  *http.Client
	timeout time.Duration
}

// APIOption configures an API.
type APIOption func(*API)

// WithHTTPClient replaces the HTTP client. A client without a cookie jar gets
// one.
func WithHTTPClient(c *http.Client) APIOption {
	return func(a *API) { a.client = c }
}

// WithFetchTimeout bounds every request. Zero disables the bound.
func WithFetchTimeout(d time.Duration) APIOption {
	return func(a *API) { a.timeout = d }
}

// NewAPI returns a client for the server mounted at baseURL.
func NewAPI(baseURL string, opts ...APIOption) (*API, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("%w: base url is empty", ErrInvalidConfig)
	}
	a := &API{
		base:    strings.TrimRight(baseURL, "/"),
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.client == nil {
		a.client = &http.Client{}
	}
	if a.client.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}
		a.client.Jar = jar
	}
	return a, nil
}

type apiEnvelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
	Errors  map[string]string `json:"errors"`
}

// do sends a JSON request. A non-2xx answer is returned as *FormError.
func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	_, err := a.send(ctx, method, path, body, out)
	return err
}

// send is do that also reports the envelope's success flag.
func (a *API) send(ctx context.Context, method, path string, body, out any) (bool, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return false, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.base+path, reader)
	if err != nil {
		return false, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return false, transportErr(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return false, transportErr(ctx, err)
	}

	var env apiEnvelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Message
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return false, &FormError{Status: resp.StatusCode, Message: msg, Fields: env.Errors}
	}
	if out == nil {
		return env.Success, nil
	}
	if decodeErr != nil {
		return false, fmt.Errorf("%w: malformed response: %v", ErrSessionInvalid, decodeErr)
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return false, fmt.Errorf("%w: malformed response data: %v", ErrSessionInvalid, err)
		}
	}
	return env.Success, nil
}

func transportErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

// Login posts credentials. On success the session cookie is in the jar.
func (a *API) Login(ctx context.Context, identifier, password string) (User, error) {
	var out struct {
		User User `json:"user"`
	}
	err := a.do(ctx, http.MethodPost, "/login", map[string]string{
		"identifier": identifier,
		"password":   password,
	}, &out)
	if err != nil {
		return User{}, err
	}
	if out.User.ID == "" || out.User.AccessLevel < 1 {
		return User{}, fmt.Errorf("%w: login response carries no usable user", ErrSessionInvalid)
	}
	return out.User, nil
}

type validatePayload struct {
	Valid       bool   `json:"valid"`
	UserID      string `json:"userId"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	AccessLevel int    `json:"access_level"`
}

// ValidateSession asks the server whether the cookie in the jar is still
// good. Any rejection or malformed payload is ErrSessionInvalid; transport
// failures keep their ErrNetwork or ErrTimeout identity.
func (a *API) ValidateSession(ctx context.Context) (User, error) {
	var p validatePayload
	ok, err := a.send(ctx, http.MethodGet, "/validate-session", nil, &p)
	if err != nil {
		var ferr *FormError
		if errors.As(err, &ferr) {
			return User{}, fmt.Errorf("%w: %s", ErrSessionInvalid, ferr.Message)
		}
		return User{}, err
	}
	if !ok || !p.Valid || p.UserID == "" || p.AccessLevel < 1 {
		return User{}, fmt.Errorf("%w: malformed validation payload", ErrSessionInvalid)
	}
	return User{
		ID:          p.UserID,
		Email:       p.Email,
		Username:    p.Username,
		AccessLevel: p.AccessLevel,
	}, nil
}

// Logout asks the server to clear the cookie.
func (a *API) Logout(ctx context.Context) error {
	return a.do(ctx, http.MethodPost, "/logout", nil, nil)
}

// Profile fetches the signed-in account. 401 and 403 are ErrSessionInvalid.
func (a *API) Profile(ctx context.Context) (Profile, error) {
	var out struct {
		Profile Profile `json:"profile"`
	}
	if err := a.do(ctx, http.MethodGet, "/profile", nil, &out); err != nil {
		var ferr *FormError
		if errors.As(err, &ferr) && (ferr.Status == http.StatusUnauthorized || ferr.Status == http.StatusForbidden) {
			return Profile{}, fmt.Errorf("%w: %s", ErrSessionInvalid, ferr.Message)
		}
		return Profile{}, err
	}
	return out.Profile, nil
}

// Signup posts a registration form.
func (a *API) Signup(ctx context.Context, form SignupForm) (SignupResult, error) {
	var out SignupResult
	if err := a.do(ctx, http.MethodPost, "/signup", form, &out); err != nil {
		return SignupResult{}, err
	}
	return out, nil
}

// ConfirmEmail redeems a verification token.
func (a *API) ConfirmEmail(ctx context.Context, token string) error {
	return a.do(ctx, http.MethodPost, "/confirm-email", map[string]string{"token": token}, nil)
}

// ForgotPassword requests a reset mail. The server answers the same way for
// unknown addresses.
func (a *API) ForgotPassword(ctx context.Context, email string) error {
	return a.do(ctx, http.MethodPost, "/forgot-password", map[string]string{"email": email}, nil)
}

// ResetPassword sets a new password with a reset token.
func (a *API) ResetPassword(ctx context.Context, token, newPassword string) error {
	return a.do(ctx, http.MethodPost, "/reset-password", map[string]string{
		"token":       token,
		"newPassword": newPassword,
	}, nil)
}

var _ Backend = (*API)(nil)
