package levelAuth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/levelAuth/internal/audit"
	"github.com/MrEthical07/levelAuth/internal/stores"
	"github.com/MrEthical07/levelAuth/jwt"
)

// Engine is the server-side session controller. It issues and validates signed
// session tokens and runs the signup, email confirmation and password reset flows.
//
// Engine is safe for concurrent use. Session validation is stateless; Redis is only
// touched by the password reset flow.
type Engine struct {
	config     Config
	users      UserStore
	mailer     Mailer
	hasher     PasswordHasher
	tokens     *jwt.Manager
	resetStore *stores.ResetStore
	audit      *internalaudit.Dispatcher
	metrics    *Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// Close flushes pending audit events. The Engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditStats counts what became of emitted audit events.
type AuditStats struct {
	Delivered uint64
	// Dropped events never reached the sink: the buffer was full or the
	// request context ended first.
	Dropped uint64
	// Failed events made the sink panic.
	Failed uint64
}

// AuditStats reports audit delivery counters. All zero when audit is disabled.
func (e *Engine) AuditStats() AuditStats {
	if e == nil || e.audit == nil {
		return AuditStats{}
	}
	st := e.audit.Stats()
	return AuditStats{Delivered: st.Delivered, Dropped: st.Dropped, Failed: st.Failed}
}

// AuditDropped is AuditStats().Dropped.
func (e *Engine) AuditDropped() uint64 {
	return e.AuditStats().Dropped
}

// MetricsSnapshot returns the current counters and histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.users != nil && e.tokens != nil && e.hasher != nil
}

// ValidateSession verifies a session token's signature, expiry and purpose and
// returns its claims. It never consults the user store. Any failure is ErrSessionInvalid.
func (e *Engine) ValidateSession(ctx context.Context, token string) (*SessionClaims, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}
	}()

	claims, err := e.tokens.Parse(token, jwt.PurposeSession)
	if err != nil || claims.AccessLevel < 1 {
		e.metricInc(MetricSessionInvalid)
		return nil, ErrSessionInvalid
	}

	e.metricInc(MetricSessionValid)
	return claims, nil
}

// Logout records the end of a session. Tokens are stateless, so the caller is
// responsible for clearing the cookie; an invalid or missing token is not an error.
func (e *Engine) Logout(ctx context.Context, token string) {
	if e == nil {
		return
	}
	e.metricInc(MetricLogout)

	var userID string
	if e.tokens != nil && token != "" {
		if claims, err := e.tokens.Parse(token, jwt.PurposeSession); err == nil {
			userID = claims.UID
		}
	}
	e.emitAudit(ctx, auditEventLogout, true, userID, 0, nil, nil)
}

func (e *Engine) issueSession(u UserRecord) (string, time.Time, error) {
	issued, err := e.tokens.Issue(jwt.Identity{
		UserID:      u.ID,
		Email:       u.Email,
		Username:    u.Username,
		AccessLevel: u.AccessLevel,
	}, jwt.PurposeSession, e.config.Session.SessionTTL)
	if err != nil {
		return "", time.Time{}, errors.Join(ErrSessionCreationFailed, err)
	}
	e.metricInc(MetricSessionCreated)
	return issued.Token, issued.ExpiresAt, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
