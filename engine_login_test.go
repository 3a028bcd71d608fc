package levelAuth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/levelAuth/jwt"
	gojwt "github.com/golang-jwt/jwt/v5"
)

func identityOf(u UserRecord) jwt.Identity {
	return jwt.Identity{UserID: u.ID, Email: u.Email, Username: u.Username, AccessLevel: u.AccessLevel}
}

func seedAlice(t testing.TB, engine *Engine, store *memoryUserStore, level int, verified bool) UserRecord {
	t.Helper()
	return seedUser(t, engine, store, UserRecord{
		ID:          "u-alice",
		Name:        "Alice",
		Surname:     "Smith",
		Email:       "alice@example.com",
		Username:    "alice",
		Mobile:      "+15550001111",
		AccessLevel: level,
		UplineID:    "root",
		Verified:    verified,
	}, "correct-password")
}

func TestLoginValidateRoundTrip(t *testing.T) {
	store := newMemoryUserStore()
	engine, done := newTestEngine(t, testConfig(), store)
	defer done()
	ctx := context.Background()
	seedAlice(t, engine, store, 2, true)

	res, err := engine.Login(ctx, "alice", "correct-password")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if res.User.AccessLevel != 2 || res.User.ID != "u-alice" {
		t.Fatalf("unexpected user %+v", res.User)
	}
	if d := time.Until(res.ExpiresAt); d <= 59*time.Minute || d > time.Hour {
		t.Fatalf("expected ~1h expiry, got %v", d)
	}

	before := store.totalCalls()
	claims, err := engine.ValidateSession(ctx, res.Token)
	if err != nil {
		t.Fatalf("ValidateSession failed: %v", err)
	}
	if claims.UID != "u-alice" || claims.AccessLevel != 2 {
		t.Fatalf("round trip lost identity: %+v", claims.Identity())
	}
	if claims.Email != "alice@example.com" || claims.Username != "alice" {
		t.Fatalf("unexpected claims %+v", claims.Identity())
	}
	if store.totalCalls() != before {
		t.Fatal("expected ValidateSession to make no store calls")
	}
}

func TestLoginByEmailIsCaseInsensitive(t *testing.T) {
	store := newMemoryUserStore()
	engine, done := newTestEngine(t, testConfig(), store)
	defer done()
	seedAlice(t, engine, store, 1, true)

	if _, err := engine.Login(context.Background(), " Alice@Example.COM ", "correct-password"); err != nil {
		t.Fatalf("Login by email failed: %v", err)
	}
	if store.getByEmailCalls != 1 || store.getByUsernameCalls != 0 {
		t.Fatalf("expected email lookup, got email=%d username=%d", store.getByEmailCalls, store.getByUsernameCalls)
	}
}

func TestLoginFailures(t *testing.T) {
	store := newMemoryUserStore()
	engine, done := newTestEngine(t, testConfig(), store)
	defer done()
	ctx := context.Background()
	seedAlice(t, engine, store, 1, true)
	seedUser(t, engine, store, UserRecord{ID: "u-bob", Email: "bob@example.com", Username: "bob", AccessLevel: 1}, "bob-password")

	tests := []struct {
		name       string
		identifier string
		password   string
		want       error
	}{
		{"wrong password", "alice", "wrong-password", ErrInvalidCredentials},
		{"unknown user", "mallory", "whatever-123", ErrInvalidCredentials},
		{"empty identifier", "", "correct-password", ErrInvalidCredentials},
		{"empty password", "alice", "", ErrInvalidCredentials},
		{"unverified", "bob", "bob-password", ErrEmailUnverified},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.Login(ctx, tc.identifier, tc.password)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if ErrInvalidCredentials.Error() != "Invalid email/username or password" {
		t.Fatalf("unexpected credentials message %q", ErrInvalidCredentials.Error())
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricLoginFailure] != 4 || snap.Counters[MetricLoginUnverified] != 1 {
		t.Fatalf("unexpected failure counters %+v", snap.Counters)
	}
}

func TestLoginUpgradesWeakHash(t *testing.T) {
	store := newMemoryUserStore()
	cfg := testConfig()
	engine, done := newTestEngine(t, cfg, store)
	defer done()
	u := seedAlice(t, engine, store, 1, true)

	cfg.Password.Time = 2
	stronger, cleanup := newTestEngine(t, cfg, store)
	defer cleanup()

	if _, err := stronger.Login(context.Background(), "alice", "correct-password"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if store.get(u.ID).PasswordHash == u.PasswordHash {
		t.Fatal("expected stored hash to be upgraded")
	}
	if stronger.MetricsSnapshot().Counters[MetricPasswordRehash] != 1 {
		t.Fatal("expected rehash metric")
	}
}

func TestValidateSessionRejectsExpiredToken(t *testing.T) {
	cases := []struct {
		name      string
		leeway    time.Duration
		expiredBy time.Duration
	}{
		{"long expired", 0, time.Hour},
		{"just expired", 0, 10 * time.Second},
		{"default config", DefaultConfig().JWT.Leeway, time.Second},
		{"expired inside leeway", 30 * time.Second, 10 * time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.JWT.Leeway = tc.leeway
			engine, done := newTestEngine(t, cfg, newMemoryUserStore())
			defer done()

			now := time.Now()
			claims := jwt.SessionClaims{
				UID:         "u-alice",
				AccessLevel: 2,
				Purpose:     jwt.PurposeSession,
				RegisteredClaims: gojwt.RegisteredClaims{
					Issuer:    engine.config.JWT.Issuer,
					IssuedAt:  gojwt.NewNumericDate(now.Add(-2 * time.Hour)),
					ExpiresAt: gojwt.NewNumericDate(now.Add(-tc.expiredBy)),
				},
			}
			token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(engine.config.JWT.Secret)
			if err != nil {
				t.Fatalf("SignedString failed: %v", err)
			}

			if _, err := engine.ValidateSession(context.Background(), token); !errors.Is(err, ErrSessionInvalid) {
				t.Fatalf("expected ErrSessionInvalid, got %v", err)
			}
			if engine.MetricsSnapshot().Counters[MetricSessionInvalid] != 1 {
				t.Fatal("expected invalid session metric")
			}
		})
	}
}

func TestValidateSessionRejectsForeignTokens(t *testing.T) {
	store := newMemoryUserStore()
	engine, done := newTestEngine(t, testConfig(), store)
	defer done()
	ctx := context.Background()
	u := seedAlice(t, engine, store, 2, true)

	verify, err := engine.tokens.Issue(identityOf(u), jwt.PurposeVerify, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	zero := u
	zero.AccessLevel = 0
	noLevel, err := engine.tokens.Issue(identityOf(zero), jwt.PurposeSession, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	res, err := engine.Login(ctx, "alice", "correct-password")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	parts := strings.Split(res.Token, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	for name, token := range map[string]string{
		"empty":          "",
		"verify purpose": verify.Token,
		"level zero":     noLevel.Token,
		"tampered":       tampered,
	} {
		if _, err := engine.ValidateSession(ctx, token); !errors.Is(err, ErrSessionInvalid) {
			t.Fatalf("%s: expected ErrSessionInvalid, got %v", name, err)
		}
	}
}

func TestLogoutCookieClearsSession(t *testing.T) {
	engine, done := newTestEngine(t, testConfig(), newMemoryUserStore())
	defer done()

	engine.Logout(context.Background(), "")
	engine.Logout(context.Background(), "garbage")
	if engine.MetricsSnapshot().Counters[MetricLogout] != 2 {
		t.Fatal("expected logout metric for each call")
	}

	opts := engine.CookieOptions()
	cleared := opts.ClearCookie().String()
	for _, want := range []string{"auth_token=", "Max-Age=0", "Path=/", "HttpOnly", "SameSite=Lax"} {
		if !strings.Contains(cleared, want) {
			t.Fatalf("expected %q in clear cookie %q", want, cleared)
		}
	}

	set := opts.SessionCookie("tok", time.Now().Add(time.Hour))
	if set.Name != "auth_token" || !set.HttpOnly || set.SameSite != http.SameSiteLaxMode || set.MaxAge <= 0 {
		t.Fatalf("unexpected session cookie %+v", set)
	}
}

func TestProfile(t *testing.T) {
	store := newMemoryUserStore()
	engine, done := newTestEngine(t, testConfig(), store)
	defer done()
	ctx := context.Background()
	seedAlice(t, engine, store, 2, true)

	if _, err := engine.Profile(ctx, " "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty id, got %v", err)
	}
	if _, err := engine.Profile(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	p, err := engine.Profile(ctx, "u-alice")
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if p.Name != "Alice" || p.Surname != "Smith" || p.AccessLevel != 2 || !p.Verified {
		t.Fatalf("unexpected profile %+v", p)
	}
}

func TestNilEngineIsNotReady(t *testing.T) {
	var engine *Engine
	if _, err := engine.Login(context.Background(), "a", "b"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := engine.ValidateSession(context.Background(), "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}
