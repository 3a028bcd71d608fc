package server

import (
	"encoding/json"
	"errors"
	"net/http"

	levelAuth "github.com/MrEthical07/levelAuth"
)

const (
	msgInternal     = "Internal server error"
	msgInvalidBody  = "Invalid request body"
	msgValidation   = "Validation failed"
	msgInvalidToken = "Invalid or expired token"
)

// envelope is the body of every response.
type envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Data    any               `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // connection may already be closed
		json.NewEncoder(w).Encode(v)
	}
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, message string, fields map[string]string) {
	writeJSON(w, status, envelope{Success: false, Message: message, Errors: fields})
}

// writeEngineError maps an engine error onto a status and a message safe to
// show the browser. Anything unrecognised is logged and reported as a 500.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verr *levelAuth.ValidationError
	switch {
	case errors.As(err, &verr):
		writeFailure(w, http.StatusBadRequest, msgValidation, verr.Fields)
	case errors.Is(err, levelAuth.ErrValidation):
		writeFailure(w, http.StatusBadRequest, msgValidation, nil)
	case errors.Is(err, levelAuth.ErrUplineNotFound):
		writeFailure(w, http.StatusBadRequest, "Upline not found", map[string]string{"upline_id": "Upline not found"})
	case errors.Is(err, levelAuth.ErrTokenInvalid):
		writeFailure(w, http.StatusBadRequest, msgInvalidToken, nil)
	case errors.Is(err, levelAuth.ErrEmailUnverified):
		writeFailure(w, http.StatusUnauthorized, levelAuth.ErrEmailUnverified.Error(), nil)
	case errors.Is(err, levelAuth.ErrInvalidCredentials):
		writeFailure(w, http.StatusUnauthorized, levelAuth.ErrInvalidCredentials.Error(), nil)
	case errors.Is(err, levelAuth.ErrSessionInvalid):
		writeFailure(w, http.StatusUnauthorized, "Invalid or expired session", nil)
	case errors.Is(err, levelAuth.ErrUserNotFound):
		writeFailure(w, http.StatusNotFound, "User not found", nil)
	default:
		s.logger.Error("request failed",
			"op", op,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeFailure(w, http.StatusInternalServerError, msgInternal, nil)
	}
}

// decodeJSON reads a JSON body into dst. Unknown fields are ignored so whole
// form payloads can be posted as-is.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	return json.NewDecoder(r.Body).Decode(dst)
}
