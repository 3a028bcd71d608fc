package levelAuth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Config is the engine configuration. Obtain one from DefaultConfig and adjust fields
// before passing it to the Builder; the engine keeps its own copy.
type Config struct {
	JWT      JWTConfig
	Session  SessionConfig
	Cookie   CookieConfig
	Signup   SignupConfig
	Password PasswordConfig
	Reset    ResetConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig selects the signing key material. HS256 with a 32+ byte secret is the
// default; Ed25519 takes PEM or raw keys.
type JWTConfig struct {
	SigningMethod string // "hs256" (default) or "ed25519"
	Secret        []byte
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	KeyID         string
	// Leeway tolerates issuer clock skew on iat. It never extends expiry.
	Leeway        time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig holds token lifetimes.
type SessionConfig struct {
	SessionTTL      time.Duration
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// CookieConfig describes the session cookie written on login and cleared on logout.
type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
}

// SignupConfig controls account creation.
type SignupConfig struct {
	// AllowedRefLevels lists the referral levels a signup link may grant.
	AllowedRefLevels   []int
	DefaultAccessLevel int
	// ConfirmURL and ResetURL are the front-end pages the emailed token is appended to.
	ConfirmURL string
	ResetURL   string
}

// PasswordConfig carries the Argon2id cost parameters used when no hasher is supplied.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

// ResetConfig configures the Redis keyspace for single-use reset tokens.
type ResetConfig struct {
	RedisPrefix string
}

// AuditConfig configures the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// EmitTimeout bounds each sink call. Zero means 5s.
	EmitTimeout time.Duration
}

// MetricsConfig toggles in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration: one hour sessions, 24 hour
// verification links, 15 minute reset links, an HttpOnly Lax cookie named auth_token,
// and referral level 1 as the only grantable level.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: "hs256",
			Issuer:        "levelauth",
		},
		Session: SessionConfig{
			SessionTTL:      time.Hour,
			VerificationTTL: 24 * time.Hour,
			ResetTTL:        15 * time.Minute,
		},
		Cookie: CookieConfig{
			Name:     "auth_token",
			Path:     "/",
			Secure:   true,
			HTTPOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
		Signup: SignupConfig{
			AllowedRefLevels:   []int{1},
			DefaultAccessLevel: 1,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Reset: ResetConfig{
			RedisPrefix: "lar",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.Signup.AllowedRefLevels = append([]int(nil), cfg.Signup.AllowedRefLevels...)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	switch strings.ToLower(c.JWT.SigningMethod) {
	case "", "hs256":
		if len(c.JWT.Secret) < 32 {
			return errors.New("hs256 requires a Secret of at least 32 bytes")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be within [0, 2m]")
	}

	if c.Session.SessionTTL <= 0 {
		return errors.New("Session SessionTTL must be > 0")
	}
	if c.Session.VerificationTTL <= 0 {
		return errors.New("Session VerificationTTL must be > 0")
	}
	if c.Session.ResetTTL <= 0 {
		return errors.New("Session ResetTTL must be > 0")
	}

	if strings.TrimSpace(c.Cookie.Name) == "" {
		return errors.New("Cookie Name must not be empty")
	}
	if c.Cookie.SameSite == http.SameSiteNoneMode && !c.Cookie.Secure {
		return errors.New("Cookie SameSite=None requires Secure")
	}

	if c.Signup.DefaultAccessLevel < 1 {
		return errors.New("Signup DefaultAccessLevel must be >= 1")
	}
	for _, lvl := range c.Signup.AllowedRefLevels {
		if lvl < 1 || lvl > 99 {
			return fmt.Errorf("Signup AllowedRefLevels entry %d out of range [1, 99]", lvl)
		}
	}

	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 || c.Password.Parallelism < 1 {
		return errors.New("Password Time and Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 || c.Password.KeyLength < 16 {
		return errors.New("Password SaltLength and KeyLength must be >= 16")
	}

	if strings.TrimSpace(c.Reset.RedisPrefix) == "" {
		return errors.New("Reset RedisPrefix must not be empty")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

// refLevelAllowed reports whether level is in the configured referral set.
func (c *Config) refLevelAllowed(level int) bool {
	for _, allowed := range c.Signup.AllowedRefLevels {
		if allowed == level {
			return true
		}
	}
	return false
}

// ParseRefLevels parses a comma separated list such as "1,2" into levels.
func ParseRefLevels(raw string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lvl, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid ref level %q", part)
		}
		out = append(out, lvl)
	}
	return out, nil
}
