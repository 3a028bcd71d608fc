package server

import (
	"net/http"
	"strings"

	levelAuth "github.com/MrEthical07/levelAuth"
	"github.com/MrEthical07/levelAuth/middleware"
)

// signupRequest is the signup form. Older forms post the upline as uplineId.
type signupRequest struct {
	levelAuth.SignupInput
	UplineIDAlt string `json:"uplineId"`
}

// handleSignup handles POST /signup.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, msgInvalidBody, nil)
		return
	}
	in := req.SignupInput
	if in.UplineID == "" {
		in.UplineID = req.UplineIDAlt
	}

	res, err := s.engine.Signup(r.Context(), in)
	if err != nil {
		s.writeEngineError(w, r, "signup", err)
		return
	}

	writeSuccess(w, http.StatusCreated, "Signup successful. Please check your email to confirm your account.", res)
}

type tokenRequest struct {
	Token string `json:"token"`
}

// handleConfirmEmail handles POST /confirm-email. The token may also arrive as
// a query parameter so emailed links can post an empty body.
func (s *Server) handleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeFailure(w, http.StatusBadRequest, msgInvalidBody, nil)
			return
		}
	}
	if req.Token == "" {
		req.Token = r.URL.Query().Get("token")
	}
	if strings.TrimSpace(req.Token) == "" {
		writeFailure(w, http.StatusBadRequest, msgInvalidToken, map[string]string{"token": "Token is required"})
		return
	}

	if err := s.engine.ConfirmEmail(r.Context(), req.Token); err != nil {
		s.writeEngineError(w, r, "confirm_email", err)
		return
	}

	writeSuccess(w, http.StatusOK, "Email confirmed. You can now log in.", nil)
}

// loginRequest accepts the identifier under any of the names the login forms use.
type loginRequest struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

func (l loginRequest) identifier() string {
	for _, v := range []string{l.Identifier, l.Email, l.Username} {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

type loginResponse struct {
	User      levelAuth.PublicUser `json:"user"`
	ExpiresAt int64                `json:"expires_at"`
}

// handleLogin handles POST /login and sets the session cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, msgInvalidBody, nil)
		return
	}

	res, err := s.engine.Login(r.Context(), req.identifier(), req.Password)
	if err != nil {
		s.writeEngineError(w, r, "login", err)
		return
	}

	http.SetCookie(w, s.engine.CookieOptions().SessionCookie(res.Token, res.ExpiresAt))
	writeSuccess(w, http.StatusOK, "Login successful", loginResponse{
		User:      res.User,
		ExpiresAt: res.ExpiresAt.Unix(),
	})
}

type sessionResponse struct {
	Valid       bool   `json:"valid"`
	UserID      string `json:"userId"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	AccessLevel int    `json:"access_level"`
	ExpiresAt   int64  `json:"expires_at"`
}

// handleValidateSession handles GET /validate-session. It answers from the
// token alone.
func (s *Server) handleValidateSession(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.SessionToken(r, s.engine.CookieOptions().Name)
	if !ok {
		writeFailure(w, http.StatusUnauthorized, "No session", nil)
		return
	}

	claims, err := s.engine.ValidateSession(r.Context(), token)
	if err != nil {
		s.writeEngineError(w, r, "validate_session", err)
		return
	}

	writeSuccess(w, http.StatusOK, "Session valid", sessionResponse{
		Valid:       true,
		UserID:      claims.UID,
		Email:       claims.Email,
		Username:    claims.Username,
		AccessLevel: claims.AccessLevel,
		ExpiresAt:   claims.ExpiresAtTime().Unix(),
	})
}

// handleLogout handles POST /logout. It always clears the cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	opts := s.engine.CookieOptions()
	token, _ := middleware.SessionToken(r, opts.Name)
	s.engine.Logout(r.Context(), token)

	http.SetCookie(w, opts.ClearCookie())
	writeSuccess(w, http.StatusOK, "Logged out", nil)
}

type profileResponse struct {
	Profile levelAuth.Profile `json:"profile"`
}

// handleProfile handles GET /profile for the session's own account.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		rejectSession(w, r)
		return
	}

	p, err := s.engine.Profile(r.Context(), claims.UID)
	if err != nil {
		s.writeEngineError(w, r, "profile", err)
		return
	}

	writeSuccess(w, http.StatusOK, "", profileResponse{Profile: p})
}
