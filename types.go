package levelAuth

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/levelAuth/internal/audit"
	"github.com/MrEthical07/levelAuth/jwt"
)

// UserRecord is the persisted account. PasswordHash and VerificationToken never
// leave the server.
type UserRecord struct {
	ID                string
	Name              string
	Surname           string
	Email             string
	Username          string
	Mobile            string
	PasswordHash      string
	AccessLevel       int
	UplineID          string
	Verified          bool
	VerificationToken string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewUser is the input for [UserStore.CreateUser]. The account is created unverified.
type NewUser struct {
	ID                string
	Name              string
	Surname           string
	Email             string
	Username          string
	Mobile            string
	PasswordHash      string
	AccessLevel       int
	UplineID          string
	VerificationToken string
}

// UserStore is the account persistence boundary. Lookups return ErrUserNotFound
// when nothing matches; CreateUser returns ErrDuplicateUser when email or username
// is taken.
//
// Implementations must be safe for concurrent use. See store/sqlite for the bundled one.
type UserStore interface {
	CreateUser(ctx context.Context, input NewUser) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByUsername(ctx context.Context, username string) (UserRecord, error)
	GetUserByVerificationToken(ctx context.Context, token string) (UserRecord, error)
	// ResolveUpline maps an upline reference (user id or username) to a user id.
	ResolveUpline(ctx context.Context, ref string) (string, error)
	MarkVerified(ctx context.Context, userID string) error
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error
}

// MailKind distinguishes the emails the engine sends.
type MailKind string

const (
	MailVerification  MailKind = "verification"
	MailPasswordReset MailKind = "password_reset"
)

// MailMessage is one outbound email. Link is Token appended to the configured
// confirm or reset page, or empty when no page is configured.
type MailMessage struct {
	Kind    MailKind  `json:"kind"`
	To      string    `json:"to"`
	Name    string    `json:"name,omitempty"`
	Token   string    `json:"token"`
	Link    string    `json:"link,omitempty"`
	Expires time.Time `json:"expires"`
}

// Mailer delivers transactional email. Engine treats delivery as best effort.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}

// PasswordHasher hashes and verifies passwords. password.Argon2 satisfies it.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// upgradeableHasher is implemented by hashers that can report stale parameters.
type upgradeableHasher interface {
	NeedsUpgrade(encodedHash string) (bool, error)
}

// SessionClaims is the verified payload of a session token.
type SessionClaims = jwt.SessionClaims

// SignupInput carries a signup form submission. Ref is the raw referral level
// from the signup link; it is sanitized before use.
type SignupInput struct {
	Name            string `json:"name"`
	Surname         string `json:"surname"`
	Email           string `json:"email"`
	Username        string `json:"username,omitempty"`
	Mobile          string `json:"mobile"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password,omitempty"`
	UplineID        string `json:"upline_id"`
	Ref             string `json:"ref,omitempty"`
}

// SignupResult is returned by [Engine.Signup].
type SignupResult struct {
	VerificationToken string `json:"verification_token"`
	UserID            string `json:"user_id"`
}

// PublicUser is the user view safe to return to the browser.
type PublicUser struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Username    string `json:"username,omitempty"`
	Name        string `json:"name,omitempty"`
	AccessLevel int    `json:"access_level"`
}

// LoginResult is returned by [Engine.Login]. Token is written to the session cookie.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      PublicUser
}

// Profile is the account view served to authenticated dashboards.
type Profile struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Surname     string    `json:"surname"`
	Email       string    `json:"email"`
	Username    string    `json:"username,omitempty"`
	Mobile      string    `json:"mobile"`
	AccessLevel int       `json:"access_level"`
	UplineID    string    `json:"upline_id,omitempty"`
	Verified    bool      `json:"verified"`
	CreatedAt   time.Time `json:"created_at"`
}

func publicUser(u UserRecord) PublicUser {
	return PublicUser{
		ID:          u.ID,
		Email:       u.Email,
		Username:    u.Username,
		Name:        u.Name,
		AccessLevel: u.AccessLevel,
	}
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// MultiSink fans events out to several sinks.
type MultiSink = internalaudit.MultiSink

// SlogSink is an [AuditSink] that writes events to a [log/slog.Logger].
type SlogSink = internalaudit.SlogSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
