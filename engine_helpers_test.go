package levelAuth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Signup.AllowedRefLevels = []int{1}
	cfg.Signup.ConfirmURL = "https://app.example.test/confirm-email"
	cfg.Signup.ResetURL = "https://app.example.test/reset-password"
	return cfg
}

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

// newTestEngine builds an Engine against miniredis with a capturing mailer. The
// returned func releases redis and the audit dispatcher.
func newTestEngine(t testing.TB, cfg Config, store UserStore) (*Engine, func()) {
	t.Helper()
	engine, _, _, done := newTestEngineWithMailer(t, cfg, store)
	return engine, done
}

func newTestEngineWithMailer(t testing.TB, cfg Config, store UserStore) (*Engine, *captureMailer, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	mailer := &captureMailer{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(store).
		WithMailer(mailer).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return engine, mailer, mr, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

type captureMailer struct {
	mu   sync.Mutex
	sent []MailMessage
	err  error
}

func (m *captureMailer) Send(ctx context.Context, msg MailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

func (m *captureMailer) last(t *testing.T) MailMessage {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("expected a mail to be sent")
	}
	return m.sent[len(m.sent)-1]
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type memoryUserStore struct {
	mu    sync.Mutex
	users map[string]UserRecord

	createErr error
	lookupErr error

	createCalls         int
	getByIDCalls        int
	getByEmailCalls     int
	getByUsernameCalls  int
	getByTokenCalls     int
	resolveUplineCalls  int
	markVerifiedCalls   int
	updatePasswordCalls int
}

func newMemoryUserStore(seed ...UserRecord) *memoryUserStore {
	s := &memoryUserStore{users: make(map[string]UserRecord)}
	for _, u := range seed {
		s.users[u.ID] = u
	}
	return s
}

func (s *memoryUserStore) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCalls + s.getByIDCalls + s.getByEmailCalls + s.getByUsernameCalls +
		s.getByTokenCalls + s.resolveUplineCalls + s.markVerifiedCalls + s.updatePasswordCalls
}

func (s *memoryUserStore) get(id string) UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id]
}

func (s *memoryUserStore) CreateUser(ctx context.Context, input NewUser) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++

	if s.createErr != nil {
		return UserRecord{}, s.createErr
	}
	for _, existing := range s.users {
		if existing.Email == input.Email || (input.Username != "" && existing.Username == input.Username) {
			return UserRecord{}, ErrDuplicateUser
		}
	}

	now := time.Now().UTC()
	u := UserRecord{
		ID:                input.ID,
		Name:              input.Name,
		Surname:           input.Surname,
		Email:             input.Email,
		Username:          input.Username,
		Mobile:            input.Mobile,
		PasswordHash:      input.PasswordHash,
		AccessLevel:       input.AccessLevel,
		UplineID:          input.UplineID,
		VerificationToken: input.VerificationToken,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *memoryUserStore) GetUserByID(ctx context.Context, userID string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getByIDCalls++

	if s.lookupErr != nil {
		return UserRecord{}, s.lookupErr
	}
	u, ok := s.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

func (s *memoryUserStore) GetUserByEmail(ctx context.Context, email string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getByEmailCalls++
	return s.find(func(u UserRecord) bool { return u.Email == email })
}

func (s *memoryUserStore) GetUserByUsername(ctx context.Context, username string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getByUsernameCalls++
	return s.find(func(u UserRecord) bool { return u.Username != "" && u.Username == username })
}

func (s *memoryUserStore) GetUserByVerificationToken(ctx context.Context, token string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getByTokenCalls++
	return s.find(func(u UserRecord) bool { return token != "" && u.VerificationToken == token })
}

func (s *memoryUserStore) ResolveUpline(ctx context.Context, ref string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolveUplineCalls++

	if s.lookupErr != nil {
		return "", s.lookupErr
	}
	if u, ok := s.users[ref]; ok {
		return u.ID, nil
	}
	u, err := s.find(func(u UserRecord) bool { return strings.EqualFold(u.Username, ref) })
	if err != nil {
		return "", ErrUplineNotFound
	}
	return u.ID, nil
}

func (s *memoryUserStore) MarkVerified(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markVerifiedCalls++

	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.Verified = true
	u.UpdatedAt = time.Now().UTC()
	s.users[userID] = u
	return nil
}

func (s *memoryUserStore) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updatePasswordCalls++

	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = newHash
	s.users[userID] = u
	return nil
}

func (s *memoryUserStore) find(match func(UserRecord) bool) (UserRecord, error) {
	if s.lookupErr != nil {
		return UserRecord{}, s.lookupErr
	}
	for _, u := range s.users {
		if match(u) {
			return u, nil
		}
	}
	return UserRecord{}, ErrUserNotFound
}

// seedUser hashes password with the engine's hasher and stores u as given.
func seedUser(t testing.TB, engine *Engine, store *memoryUserStore, u UserRecord, password string) UserRecord {
	t.Helper()

	hash, err := engine.hasher.Hash(password)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	u.PasswordHash = hash
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	store.mu.Lock()
	store.users[u.ID] = u
	store.mu.Unlock()
	return u
}

func validSignup() SignupInput {
	return SignupInput{
		Name:            "Alice",
		Surname:         "Smith",
		Email:           "Alice@Example.com ",
		Username:        "alice",
		Mobile:          "+15550001111",
		Password:        "correct-horse-1",
		ConfirmPassword: "correct-horse-1",
		UplineID:        "root",
	}
}

func rootUser() UserRecord {
	return UserRecord{
		ID:          "root",
		Name:        "Root",
		Surname:     "Upline",
		Email:       "root@example.com",
		Username:    "rootuser",
		AccessLevel: 3,
		Verified:    true,
	}
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T (%v)", err, err)
	}
	return verr.Fields
}
