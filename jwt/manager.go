package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the algorithm used to sign and verify tokens.
type SigningMethod string

const (
	// MethodHS256 signs with a shared secret. This is the default.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	// ErrTokenInvalid is returned for any token that fails signature, expiry,
	// issuer or purpose checks.
	ErrTokenInvalid = errors.New("jwt: invalid token")
	// ErrTokenExpired is returned (wrapped in ErrTokenInvalid) for expired tokens.
	ErrTokenExpired = errors.New("jwt: token expired")
)

// Config defines the signing keys and verification rules of a Manager.
//
// An Ed25519 manager built without PrivateKey can verify but not issue.
// VerifyKeys, when set, replaces PublicKey (or Secret) for verification and
// makes the kid header mandatory.
type Config struct {
	SigningMethod SigningMethod
	Secret        []byte
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	// Leeway tolerates issuer clock skew on iat only. Expiry is never
	// extended: a token is rejected from its exp onwards.
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

// Manager issues and verifies signed tokens. It is safe for concurrent use.
type Manager struct {
	keys   *keyset
	issuer string
	leeway time.Duration
	parser *jwt.Parser
	now    func() time.Time
}

// Issued is a freshly signed token with its id and expiry.
type Issued struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS256
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, fmt.Errorf("leeway %s outside [0, 2m]", cfg.Leeway)
	}

	keys, err := newKeyset(cfg)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		keys:   keys,
		issuer: cfg.Issuer,
		leeway: cfg.Leeway,
		now:    time.Now,
	}

	// No jwt.WithLeeway: the library would stretch exp as well as iat.
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{keys.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return m.now() }),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	m.parser = jwt.NewParser(opts...)
	return m, nil
}

// Issue signs a token for id with the given purpose and lifetime.
func (m *Manager) Issue(id Identity, purpose Purpose, ttl time.Duration) (Issued, error) {
	switch {
	case ttl <= 0:
		return Issued{}, errors.New("token ttl must be positive")
	case id.UserID == "":
		return Issued{}, errors.New("token subject must not be empty")
	case purpose == "":
		return Issued{}, errors.New("token purpose must not be empty")
	case m.keys.sign == nil:
		return Issued{}, errors.New("manager has no signing key")
	}

	now := m.now()
	claims := newClaims(id, purpose, m.issuer, uuid.NewString(), now, now.Add(ttl))

	token := jwt.NewWithClaims(m.keys.method, claims)
	if m.keys.kid != "" {
		token.Header["kid"] = m.keys.kid
	}
	signed, err := token.SignedString(m.keys.sign)
	if err != nil {
		return Issued{}, fmt.Errorf("signing %s token: %w", purpose, err)
	}
	return Issued{Token: signed, ID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Parse verifies tokenStr and requires it to carry purpose. Every failure is
// reported as ErrTokenInvalid; expiry additionally matches ErrTokenExpired.
func (m *Manager) Parse(tokenStr string, purpose Purpose) (*SessionClaims, error) {
	if tokenStr == "" {
		return nil, ErrTokenInvalid
	}

	claims := &SessionClaims{}
	token, err := m.parser.ParseWithClaims(tokenStr, claims, m.keys.lookup)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, ErrTokenExpired)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	case !token.Valid:
		return nil, ErrTokenInvalid
	}

	if err := claims.check(purpose, m.now().Add(m.leeway)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return claims, nil
}
