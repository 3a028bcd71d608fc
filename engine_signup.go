package levelAuth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrEthical07/levelAuth/internal/validate"
	"github.com/MrEthical07/levelAuth/jwt"
	"github.com/google/uuid"
)

// Signup creates a pending account and sends its confirmation email.
//
// Input is trimmed and the email lowercased before validation. Field problems and
// duplicate email or username yield a *ValidationError. An upline reference that
// resolves to no account yields ErrUplineNotFound. A non-empty Ref is reduced to
// its leading two digits and must be one of Config.Signup.AllowedRefLevels; it
// becomes the new account's access level.
//
// A mail delivery failure is logged and does not fail the signup. The verification
// token is returned either way.
func (e *Engine) Signup(ctx context.Context, in SignupInput) (SignupResult, error) {
	if !e.ready() {
		return SignupResult{}, ErrEngineNotReady
	}

	in = normalizeSignup(in)
	fail := func(err error) (SignupResult, error) {
		e.emitAudit(ctx, auditEventSignupFailure, false, "", 0, err, func() map[string]string {
			return map[string]string{"email": in.Email}
		})
		return SignupResult{}, err
	}

	verr := &ValidationError{}
	for field, msg := range validate.Signup(validate.SignupFields{
		Name:            in.Name,
		Surname:         in.Surname,
		Email:           in.Email,
		Username:        in.Username,
		Mobile:          in.Mobile,
		Password:        in.Password,
		ConfirmPassword: in.ConfirmPassword,
		UplineID:        in.UplineID,
	}) {
		verr.Add(field, msg)
	}

	level, refErr := e.resolveRefLevel(in.Ref)
	if refErr != nil {
		verr.Add("ref", validate.MsgInvalidRef)
	}
	if err := verr.Err(); err != nil {
		e.metricInc(MetricSignupValidationFailure)
		return fail(err)
	}

	if err := e.checkDuplicates(ctx, in, verr); err != nil {
		return fail(err)
	}
	if err := verr.Err(); err != nil {
		e.metricInc(MetricSignupDuplicate)
		e.emitAudit(ctx, auditEventSignupFailure, false, "", 0, ErrDuplicateUser, nil)
		return SignupResult{}, err
	}

	uplineID, err := e.users.ResolveUpline(ctx, in.UplineID)
	if err != nil {
		if errors.Is(err, ErrUplineNotFound) || errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricSignupUplineNotFound)
			return fail(ErrUplineNotFound)
		}
		return fail(storeErr(err))
	}

	hash, err := e.hasher.Hash(in.Password)
	if err != nil {
		return fail(fmt.Errorf("hashing password: %w", err))
	}

	userID := uuid.NewString()
	issued, err := e.tokens.Issue(jwt.Identity{
		UserID:      userID,
		Email:       in.Email,
		Username:    in.Username,
		AccessLevel: level,
	}, jwt.PurposeVerify, e.config.Session.VerificationTTL)
	if err != nil {
		return fail(fmt.Errorf("issuing verification token: %w", err))
	}

	user, err := e.users.CreateUser(ctx, NewUser{
		ID:                userID,
		Name:              in.Name,
		Surname:           in.Surname,
		Email:             in.Email,
		Username:          in.Username,
		Mobile:            in.Mobile,
		PasswordHash:      hash,
		AccessLevel:       level,
		UplineID:          uplineID,
		VerificationToken: issued.Token,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateUser) {
			e.metricInc(MetricSignupDuplicate)
			e.emitAudit(ctx, auditEventSignupFailure, false, "", 0, ErrDuplicateUser, nil)
			return SignupResult{}, fieldError("email", "Email or username already registered")
		}
		return fail(storeErr(err))
	}

	e.sendMail(ctx, MailMessage{
		Kind:    MailVerification,
		To:      user.Email,
		Name:    user.Name,
		Token:   issued.Token,
		Link:    withToken(e.config.Signup.ConfirmURL, issued.Token),
		Expires: issued.ExpiresAt,
	})

	e.metricInc(MetricSignupSuccess)
	e.emitAudit(ctx, auditEventSignupSuccess, true, user.ID, user.AccessLevel, nil, levelMetadata(user.AccessLevel))

	return SignupResult{VerificationToken: issued.Token, UserID: user.ID}, nil
}

func normalizeSignup(in SignupInput) SignupInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Surname = strings.TrimSpace(in.Surname)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.TrimSpace(in.Username)
	in.Mobile = strings.TrimSpace(in.Mobile)
	in.UplineID = strings.TrimSpace(in.UplineID)
	in.Ref = strings.TrimSpace(in.Ref)
	return in
}

// resolveRefLevel maps the raw referral value to an access level. An empty value
// yields the default level.
func (e *Engine) resolveRefLevel(raw string) (int, error) {
	if raw == "" {
		return e.config.Signup.DefaultAccessLevel, nil
	}
	cleaned := validate.SanitizeRef(raw)
	if cleaned == "" {
		return 0, ErrRefLevelNotAllowed
	}
	level, err := strconv.Atoi(cleaned)
	if err != nil || !e.config.refLevelAllowed(level) {
		return 0, ErrRefLevelNotAllowed
	}
	return level, nil
}

func (e *Engine) checkDuplicates(ctx context.Context, in SignupInput, verr *ValidationError) error {
	if _, err := e.users.GetUserByEmail(ctx, in.Email); err == nil {
		verr.Add("email", validate.MsgEmailTaken)
	} else if !errors.Is(err, ErrUserNotFound) {
		return storeErr(err)
	}

	if in.Username == "" {
		return nil
	}
	if _, err := e.users.GetUserByUsername(ctx, in.Username); err == nil {
		verr.Add("username", validate.MsgUsernameTaken)
	} else if !errors.Is(err, ErrUserNotFound) {
		return storeErr(err)
	}
	return nil
}

func storeErr(err error) error {
	if isContextErr(err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
