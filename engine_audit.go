package levelAuth

import (
	"context"
	"errors"
	"strconv"
)

const (
	auditEventSignupSuccess       = "signup_success"
	auditEventSignupFailure       = "signup_failure"
	auditEventEmailConfirm        = "email_confirm"
	auditEventLoginSuccess        = "login_success"
	auditEventLoginFailure        = "login_failure"
	auditEventLogout              = "logout"
	auditEventPasswordResetReq    = "password_reset_request"
	auditEventPasswordResetDone   = "password_reset_confirm"
	auditEventPasswordResetReplay = "password_reset_replay"
	auditEventMailFailure         = "mail_failure"
)

// AuditErrorCode is the stable error label written into audit events.
type AuditErrorCode string

const (
	auditErrValidation         AuditErrorCode = "validation"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrEmailUnverified    AuditErrorCode = "email_unverified"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrSessionInvalid     AuditErrorCode = "session_invalid"
	auditErrUplineNotFound     AuditErrorCode = "upline_not_found"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	accessLevel int,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:   e.now().UTC(),
		EventType:   eventType,
		UserID:      userID,
		AccessLevel: accessLevel,
		IP:          clientIPFromContext(ctx),
		UserAgent:   userAgentFromContext(ctx),
		RequestID:   requestIDFromContext(ctx),
		Success:     success,
		Metadata:    metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func levelMetadata(level int) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"access_level": strconv.Itoa(level)}
	}
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrDuplicateUser):
		return auditErrDuplicate
	case errors.Is(err, ErrValidation), errors.Is(err, ErrRefLevelNotAllowed):
		return auditErrValidation
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrEmailUnverified):
		return auditErrEmailUnverified
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrSessionInvalid):
		return auditErrSessionInvalid
	case errors.Is(err, ErrUplineNotFound):
		return auditErrUplineNotFound
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrResetUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
