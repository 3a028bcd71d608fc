package levelAuth

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func buildAuditTestEngine(t *testing.T, cfg Config, sink AuditSink, store UserStore) (*Engine, *captureMailer, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	mailer := &captureMailer{}
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(store).
		WithMailer(mailer).
		WithAuditSink(sink).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return engine, mailer, func() {
		engine.Close()
		mr.Close()
	}
}

// collectEvents drains sink until want events arrive or the timeout passes.
func collectEvents(sink *ChannelSink, want int) []AuditEvent {
	events := make([]AuditEvent, 0, want)
	timeout := time.After(2 * time.Second)
	for len(events) < want {
		select {
		case ev := <-sink.Events():
			events = append(events, ev)
		case <-timeout:
			return events
		}
	}
	return events
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = false

	sink := &countingSink{}
	store := newMemoryUserStore()
	engine, _, done := buildAuditTestEngine(t, cfg, sink, store)
	defer done()
	seedAlice(t, engine, store, 1, true)

	_, _ = engine.Login(WithClientIP(context.Background(), "203.0.113.1"), "alice", "wrong-password")
	time.Sleep(30 * time.Millisecond)

	if sink.count.Load() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.count.Load())
	}
}

func TestAuditLoginEventCarriesRequestFields(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 16

	sink := NewChannelSink(16)
	store := newMemoryUserStore()
	engine, _, done := buildAuditTestEngine(t, cfg, sink, store)
	defer done()
	seedAlice(t, engine, store, 2, true)

	ctx := WithRequestID(WithUserAgent(WithClientIP(context.Background(), "198.51.100.33"), "test-agent"), "req-1")
	if _, err := engine.Login(ctx, "alice", "correct-password"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	events := collectEvents(sink, 1)
	if len(events) != 1 {
		t.Fatal("expected login audit event")
	}
	ev := events[0]
	if ev.EventType != auditEventLoginSuccess || !ev.Success {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.IP != "198.51.100.33" || ev.UserAgent != "test-agent" || ev.RequestID != "req-1" {
		t.Fatalf("request fields not propagated: %+v", ev)
	}
	if ev.UserID != "u-alice" || ev.AccessLevel != 2 {
		t.Fatalf("unexpected subject %+v", ev)
	}
}

func TestAuditEventUsesEngineClock(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 16

	sink := NewChannelSink(16)
	store := newMemoryUserStore()
	engine, _, done := buildAuditTestEngine(t, cfg, sink, store)
	defer done()

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	engine.now = func() time.Time { return fixed }

	_, _ = engine.Login(context.Background(), "nobody", "whatever-password")

	events := collectEvents(sink, 1)
	if len(events) != 1 {
		t.Fatal("expected login failure audit event")
	}
	if !events[0].Timestamp.Equal(fixed) || events[0].Timestamp.Location() != time.UTC {
		t.Fatalf("timestamp = %v, want %v in UTC", events[0].Timestamp, fixed)
	}
}

func TestAuditFailureCodes(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 16

	sink := NewChannelSink(16)
	store := newMemoryUserStore()
	engine, _, done := buildAuditTestEngine(t, cfg, sink, store)
	defer done()
	seedAlice(t, engine, store, 1, true)
	ctx := context.Background()

	_, _ = engine.Login(ctx, "alice", "wrong-password")
	_ = engine.ConfirmEmail(ctx, "bogus")

	events := collectEvents(sink, 2)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].EventType != auditEventLoginFailure || events[0].Error != string(auditErrInvalidCredentials) {
		t.Fatalf("unexpected login failure event %+v", events[0])
	}
	if events[1].EventType != auditEventEmailConfirm || events[1].Error != string(auditErrInvalidToken) {
		t.Fatalf("unexpected confirm failure event %+v", events[1])
	}
	if events[1].Metadata["reason"] != "token_rejected" {
		t.Fatalf("expected reason metadata, got %v", events[1].Metadata)
	}
}

func TestAuditResetReplayEvent(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 32

	sink := NewChannelSink(32)
	store := newMemoryUserStore()
	engine, mailer, done := buildAuditTestEngine(t, cfg, sink, store)
	defer done()
	seedAlice(t, engine, store, 1, true)
	ctx := context.Background()

	if err := engine.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	token := mailer.last(t).Token
	if err := engine.ResetPassword(ctx, token, "brand-new-password"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}
	_ = engine.ResetPassword(ctx, token, "brand-new-password")

	events := collectEvents(sink, 3)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[2].EventType != auditEventPasswordResetReplay || events[2].Success {
		t.Fatalf("expected replay event, got %+v", events[2])
	}
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 32
	cfg.Audit.DropIfFull = false

	sink := NewChannelSink(32)
	store := newMemoryUserStore(rootUser())
	engine, _, done := buildAuditTestEngine(t, cfg, sink, store)
	defer done()
	ctx := context.Background()

	in := validSignup()
	res, err := engine.Signup(ctx, in)
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if err := engine.ConfirmEmail(ctx, res.VerificationToken); err != nil {
		t.Fatalf("ConfirmEmail failed: %v", err)
	}
	login, err := engine.Login(ctx, "alice", in.Password)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	engine.Logout(ctx, login.Token)

	needles := []string{in.Password, res.VerificationToken, login.Token, store.get(res.UserID).PasswordHash}
	events := collectEvents(sink, 4)
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	if events[3].EventType != auditEventLogout || events[3].UserID != res.UserID {
		t.Fatalf("expected logout event for user, got %+v", events[3])
	}
	for _, ev := range events {
		for _, needle := range needles {
			if strings.Contains(ev.Error, needle) {
				t.Fatalf("sensitive value leaked in audit error field")
			}
			for k, v := range ev.Metadata {
				if strings.Contains(k, needle) || strings.Contains(v, needle) {
					t.Fatalf("sensitive value leaked in audit metadata")
				}
			}
		}
	}
}

func TestAuditJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf strings.Builder
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), AuditEvent{
		Timestamp:   time.Now().UTC(),
		EventType:   auditEventSignupSuccess,
		UserID:      "u1",
		AccessLevel: 2,
		Success:     true,
	})

	line := buf.String()
	if !strings.Contains(line, `"event_type":"signup_success"`) || !strings.Contains(line, `"access_level":2`) {
		t.Fatalf("unexpected JSON line %q", line)
	}
	if !strings.HasSuffix(line, "\n") {
		t.Fatal("expected newline-terminated record")
	}
}
