package server

import (
	"net/http"
)

// forgotPasswordMessage is returned whether or not the address is registered.
const forgotPasswordMessage = "If that email is registered, a reset link has been sent."

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// handleForgotPassword handles POST /forgot-password.
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, msgInvalidBody, nil)
		return
	}

	if err := s.engine.ForgotPassword(r.Context(), req.Email); err != nil {
		s.writeEngineError(w, r, "forgot_password", err)
		return
	}

	writeSuccess(w, http.StatusOK, forgotPasswordMessage, nil)
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// handleResetPassword handles POST /reset-password.
func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, msgInvalidBody, nil)
		return
	}

	if err := s.engine.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		s.writeEngineError(w, r, "reset_password", err)
		return
	}

	writeSuccess(w, http.StatusOK, "Password has been reset. You can now log in.", nil)
}
