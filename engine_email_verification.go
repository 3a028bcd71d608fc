package levelAuth

import (
	"context"
	"errors"

	"github.com/MrEthical07/levelAuth/jwt"
)

// ConfirmEmail verifies token and marks the matching pending account verified.
//
// The token must verify as an email confirmation token and must equal the value stored
// on the account at signup. Any mismatch or expiry is ErrTokenInvalid. Confirming an
// account that is already verified succeeds without writing.
func (e *Engine) ConfirmEmail(ctx context.Context, token string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	fail := func(err error, reason string) error {
		e.metricInc(MetricEmailConfirmFailure)
		e.emitAudit(ctx, auditEventEmailConfirm, false, "", 0, err, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return err
	}

	claims, err := e.tokens.Parse(token, jwt.PurposeVerify)
	if err != nil {
		return fail(ErrTokenInvalid, "token_rejected")
	}

	user, err := e.users.GetUserByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return fail(ErrTokenInvalid, "no_matching_account")
		}
		return fail(storeErr(err), "store_error")
	}
	if user.ID != claims.UID {
		return fail(ErrTokenInvalid, "subject_mismatch")
	}

	if user.Verified {
		e.metricInc(MetricEmailConfirmAlreadyVerified)
		return nil
	}

	if err := e.users.MarkVerified(ctx, user.ID); err != nil {
		return fail(storeErr(err), "store_error")
	}

	e.metricInc(MetricEmailConfirmSuccess)
	e.emitAudit(ctx, auditEventEmailConfirm, true, user.ID, user.AccessLevel, nil, nil)
	return nil
}
