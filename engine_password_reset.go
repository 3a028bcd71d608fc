package levelAuth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/levelAuth/internal/stores"
	"github.com/MrEthical07/levelAuth/internal/validate"
	"github.com/MrEthical07/levelAuth/jwt"
)

// ForgotPassword emails a single-use reset link to the account registered under email.
//
// The result never reveals whether the account exists: unknown addresses return nil
// without sending anything. Issuing a new reset token revokes any earlier one for the
// same account.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	if !e.ready() || e.resetStore == nil {
		return ErrEngineNotReady
	}

	// Malformed input gets the same silent success as an unknown address.
	email = strings.ToLower(strings.TrimSpace(email))
	if !validate.IsEmail(email) {
		e.emitAudit(ctx, auditEventPasswordResetReq, false, "", 0, ErrValidation, nil)
		return nil
	}

	e.metricInc(MetricPasswordResetRequest)

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.emitAudit(ctx, auditEventPasswordResetReq, false, "", 0, ErrUserNotFound, nil)
			return nil
		}
		return storeErr(err)
	}

	issued, err := e.tokens.Issue(jwt.Identity{
		UserID:      user.ID,
		Email:       user.Email,
		Username:    user.Username,
		AccessLevel: user.AccessLevel,
	}, jwt.PurposeReset, e.config.Session.ResetTTL)
	if err != nil {
		return fmt.Errorf("issuing reset token: %w", err)
	}

	if err := e.resetStore.Save(ctx, issued.ID, &stores.ResetRecord{
		UserID:    user.ID,
		TokenHash: stores.HashToken(issued.Token),
		ExpiresAt: issued.ExpiresAt.Unix(),
	}, e.config.Session.ResetTTL); err != nil {
		e.emitAudit(ctx, auditEventPasswordResetReq, false, user.ID, user.AccessLevel, ErrResetUnavailable, nil)
		return fmt.Errorf("%w: %v", ErrResetUnavailable, err)
	}

	e.sendMail(ctx, MailMessage{
		Kind:    MailPasswordReset,
		To:      user.Email,
		Name:    user.Name,
		Token:   issued.Token,
		Link:    withToken(e.config.Signup.ResetURL, issued.Token),
		Expires: issued.ExpiresAt,
	})

	e.emitAudit(ctx, auditEventPasswordResetReq, true, user.ID, user.AccessLevel, nil, nil)
	return nil
}

// ResetPassword sets a new password using a token from ForgotPassword.
//
// The new password is checked first, so a rejected password does not burn the
// token. The token is then verified and redeemed; a second use yields ErrTokenInvalid.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if !e.ready() || e.resetStore == nil {
		return ErrEngineNotReady
	}

	if msg := validate.Password(newPassword); msg != "" {
		e.metricInc(MetricPasswordResetConfirmFailure)
		return fieldError("newPassword", msg)
	}

	fail := func(userID string, err error, event string) error {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, event, false, userID, 0, err, nil)
		return err
	}

	claims, err := e.tokens.Parse(token, jwt.PurposeReset)
	if err != nil {
		return fail("", ErrTokenInvalid, auditEventPasswordResetDone)
	}

	record, err := e.resetStore.Consume(ctx, claims.ID, stores.HashToken(token))
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrResetNotFound), errors.Is(err, stores.ErrResetTokenMismatch):
			return fail(claims.UID, ErrTokenInvalid, auditEventPasswordResetReplay)
		default:
			return fail(claims.UID, fmt.Errorf("%w: %v", ErrResetUnavailable, err), auditEventPasswordResetDone)
		}
	}
	if record.UserID != claims.UID {
		return fail(claims.UID, ErrTokenInvalid, auditEventPasswordResetDone)
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return fail(record.UserID, fmt.Errorf("hashing password: %w", err), auditEventPasswordResetDone)
	}

	if err := e.users.UpdatePasswordHash(ctx, record.UserID, hash); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return fail(record.UserID, ErrTokenInvalid, auditEventPasswordResetDone)
		}
		return fail(record.UserID, storeErr(err), auditEventPasswordResetDone)
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetDone, true, record.UserID, claims.AccessLevel, nil, nil)
	return nil
}
