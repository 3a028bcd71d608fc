package levelAuth

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Login authenticates identifier and password and issues a session token.
//
// An identifier containing "@" is treated as an email, anything else as a username.
// Unknown accounts and wrong passwords both yield ErrInvalidCredentials. A correct
// password on an unverified account yields ErrEmailUnverified. The session token
// embeds user id, email, username and access level and expires after
// Config.Session.SessionTTL.
func (e *Engine) Login(ctx context.Context, identifier, password string) (LoginResult, error) {
	if !e.ready() {
		return LoginResult{}, ErrEngineNotReady
	}
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.Observe(MetricLoginLatency, time.Since(start))
		}
	}()

	identifier = strings.TrimSpace(identifier)
	fail := func(userID string, err error) (LoginResult, error) {
		if errors.Is(err, ErrEmailUnverified) {
			e.metricInc(MetricLoginUnverified)
		} else {
			e.metricInc(MetricLoginFailure)
		}
		e.emitAudit(ctx, auditEventLoginFailure, false, userID, 0, err, func() map[string]string {
			return map[string]string{"identifier": identifier}
		})
		return LoginResult{}, err
	}

	if identifier == "" || password == "" {
		return fail("", ErrInvalidCredentials)
	}

	user, err := e.lookupIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return fail("", ErrInvalidCredentials)
		}
		return fail("", storeErr(err))
	}

	ok, err := e.hasher.Verify(password, user.PasswordHash)
	if err != nil || !ok {
		return fail(user.ID, ErrInvalidCredentials)
	}

	if !user.Verified {
		return fail(user.ID, ErrEmailUnverified)
	}

	if user.AccessLevel < 1 {
		user.AccessLevel = 1
	}

	e.maybeRehash(ctx, user, password)

	token, exp, err := e.issueSession(user)
	if err != nil {
		return fail(user.ID, err)
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, user.AccessLevel, nil, nil)

	return LoginResult{
		Token:     token,
		ExpiresAt: exp,
		User:      publicUser(user),
	}, nil
}

func (e *Engine) lookupIdentifier(ctx context.Context, identifier string) (UserRecord, error) {
	if strings.Contains(identifier, "@") {
		return e.users.GetUserByEmail(ctx, strings.ToLower(identifier))
	}
	return e.users.GetUserByUsername(ctx, identifier)
}

// maybeRehash upgrades a stored hash produced with weaker parameters. Failures are
// logged and never affect the login.
func (e *Engine) maybeRehash(ctx context.Context, user UserRecord, password string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	up, ok := e.hasher.(upgradeableHasher)
	if !ok {
		return
	}
	needs, err := up.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return
	}
	newHash, err := e.hasher.Hash(password)
	if err != nil {
		e.logger.WarnContext(ctx, "password hash upgrade generation failed", "user_id", user.ID, "error", err)
		return
	}
	if err := e.users.UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
		e.logger.WarnContext(ctx, "password hash upgrade update failed", "user_id", user.ID, "error", err)
		return
	}
	e.metricInc(MetricPasswordRehash)
}
