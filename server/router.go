package server

import (
	"net/http"
	"strings"

	"github.com/MrEthical07/levelAuth/middleware"
	"github.com/go-chi/chi/v5"
)

// buildRouter creates the router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeFailure(w, http.StatusNotFound, "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeFailure(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})

	base := strings.TrimRight(s.cfg.BasePath, "/")
	if base == "" {
		s.mountRoutes(r)
	} else {
		r.Route(base, s.mountRoutes)
	}

	return r
}

func (s *Server) mountRoutes(r chi.Router) {
	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, s.metricsPath, s.metrics)
	}

	r.Post("/signup", s.handleSignup)
	r.Post("/confirm-email", s.handleConfirmEmail)
	r.Post("/login", s.handleLogin)
	r.Get("/validate-session", s.handleValidateSession)
	r.Post("/logout", s.handleLogout)
	r.Post("/forgot-password", s.handleForgotPassword)
	r.Post("/reset-password", s.handleResetPassword)

	// Session-only routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(s.engine, middleware.WithRejectHandler(http.HandlerFunc(rejectSession))))
		r.Get("/profile", s.handleProfile)
	})
}

func rejectSession(w http.ResponseWriter, _ *http.Request) {
	writeFailure(w, http.StatusUnauthorized, "Invalid or expired session", nil)
}
