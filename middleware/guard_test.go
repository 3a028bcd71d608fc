package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	levelAuth "github.com/MrEthical07/levelAuth"
	"github.com/MrEthical07/levelAuth/password"
	"github.com/MrEthical07/levelAuth/store/sqlite"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newGuardEngine returns an engine backed by a temp SQLite store and a session
// token for a verified user at the given level.
func newGuardEngine(t *testing.T, level int) (*levelAuth.Engine, string) {
	t.Helper()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store, err := sqlite.Open(ctx, sqlite.Config{Path: filepath.Join(t.TempDir(), "users.db")})
	if err != nil {
		t.Fatalf("sqlite.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cfg := levelAuth.DefaultConfig()
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")

	hasher, err := password.NewArgon2(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	hash, err := hasher.Hash("correct-password")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	u, err := store.CreateUser(ctx, levelAuth.NewUser{
		Name: "Alice", Surname: "Smith", Email: "alice@example.com", Username: "alice",
		Mobile: "+15550001111", PasswordHash: hash, AccessLevel: level,
	})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if err := store.MarkVerified(ctx, u.ID); err != nil {
		t.Fatalf("MarkVerified failed: %v", err)
	}

	engine, err := levelAuth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(store).
		WithPasswordHasher(hasher).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	res, err := engine.Login(ctx, "alice", "correct-password")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return engine, res.Token
}

func claimsEcho(t *testing.T, gotLevel *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			t.Error("expected claims in context")
			return
		}
		*gotLevel = claims.AccessLevel
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireSessionCookie(t *testing.T) {
	engine, token := newGuardEngine(t, 2)

	var level int
	h := RequireSession(engine)(claimsEcho(t, &level))

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: token})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if level != 2 {
		t.Fatalf("expected level 2 in claims, got %d", level)
	}
}

func TestRequireSessionBearerFallback(t *testing.T) {
	engine, token := newGuardEngine(t, 1)

	var level int
	h := RequireSession(engine)(claimsEcho(t, &level))

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent || level != 1 {
		t.Fatalf("expected bearer session accepted, got %d level=%d", rec.Code, level)
	}
}

func TestRequireSessionRejects(t *testing.T) {
	engine, token := newGuardEngine(t, 1)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler must not run")
	})

	cases := map[string]func(*http.Request){
		"no credentials":  func(*http.Request) {},
		"garbage cookie":  func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "auth_token", Value: "garbage"}) },
		"wrong cookie":    func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "other", Value: token}) },
		"basic auth":      func(r *http.Request) { r.Header.Set("Authorization", "Basic "+token) },
		"empty bearer":    func(r *http.Request) { r.Header.Set("Authorization", "Bearer ") },
		"truncated token": func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "auth_token", Value: token[:len(token)-4]}) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/profile", nil)
			mutate(req)
			rec := httptest.NewRecorder()
			RequireSession(engine)(next).ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestRequireSessionCustomReject(t *testing.T) {
	reject := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	RequireSession(nil, WithRejectHandler(reject))(http.NotFoundHandler()).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected custom reject status, got %d", rec.Code)
	}
}

func TestRequireLevel(t *testing.T) {
	engine, token := newGuardEngine(t, 2)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		min  int
		want int
	}{
		{1, http.StatusOK},
		{2, http.StatusOK},
		{3, http.StatusForbidden},
	}
	for _, tc := range tests {
		h := RequireSession(engine)(RequireLevel(tc.min)(ok))
		req := httptest.NewRequest(http.MethodGet, "/dashboard/superadmin", nil)
		req.AddCookie(&http.Cookie{Name: "auth_token", Value: token})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("min=%d: expected %d, got %d", tc.min, tc.want, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	RequireLevel(1)(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without claims, got %d", rec.Code)
	}
}
