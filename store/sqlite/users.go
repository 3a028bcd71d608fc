package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	levelAuth "github.com/MrEthical07/levelAuth"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

const userColumns = `id, name, surname, email, username, mobile, password_hash, access_level,
	upline_id, verified, verification_token, created_at, updated_at`

var _ levelAuth.UserStore = (*Store)(nil)

// CreateUser inserts an unverified account. A taken email or username yields
// levelAuth.ErrDuplicateUser.
func (s *Store) CreateUser(ctx context.Context, in levelAuth.NewUser) (levelAuth.UserRecord, error) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.AccessLevel < 1 {
		in.AccessLevel = 1
	}
	now := time.Now().UTC()
	stamp := now.Format(timeLayout)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		in.ID, in.Name, in.Surname, in.Email, nullString(in.Username), in.Mobile,
		in.PasswordHash, in.AccessLevel, nullString(in.UplineID),
		nullString(in.VerificationToken), stamp, stamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return levelAuth.UserRecord{}, levelAuth.ErrDuplicateUser
		}
		if isForeignKeyViolation(err) {
			return levelAuth.UserRecord{}, levelAuth.ErrUplineNotFound
		}
		return levelAuth.UserRecord{}, fmt.Errorf("creating user: %w", err)
	}

	return levelAuth.UserRecord{
		ID:                in.ID,
		Name:              in.Name,
		Surname:           in.Surname,
		Email:             in.Email,
		Username:          in.Username,
		Mobile:            in.Mobile,
		PasswordHash:      in.PasswordHash,
		AccessLevel:       in.AccessLevel,
		UplineID:          in.UplineID,
		VerificationToken: in.VerificationToken,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (levelAuth.UserRecord, error) {
	return s.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", userID)
}

// GetUserByEmail matches case-insensitively.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (levelAuth.UserRecord, error) {
	return s.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", strings.TrimSpace(email))
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (levelAuth.UserRecord, error) {
	if username == "" {
		return levelAuth.UserRecord{}, levelAuth.ErrUserNotFound
	}
	return s.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
}

func (s *Store) GetUserByVerificationToken(ctx context.Context, token string) (levelAuth.UserRecord, error) {
	if token == "" {
		return levelAuth.UserRecord{}, levelAuth.ErrUserNotFound
	}
	return s.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE verification_token = ?", token)
}

// ResolveUpline accepts a user id or a username.
func (s *Store) ResolveUpline(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", levelAuth.ErrUplineNotFound
	}
	var id string
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM users WHERE id = ? OR username = ? ORDER BY id = ? DESC LIMIT 1",
		ref, ref, ref,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", levelAuth.ErrUplineNotFound
		}
		return "", fmt.Errorf("resolving upline: %w", err)
	}
	return id, nil
}

// MarkVerified sets the verified flag. The verification token is kept so a repeated
// confirmation still finds the account.
func (s *Store) MarkVerified(ctx context.Context, userID string) error {
	return s.update(ctx, "marking user verified",
		"UPDATE users SET verified = 1, updated_at = ? WHERE id = ?",
		time.Now().UTC().Format(timeLayout), userID,
	)
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	return s.update(ctx, "updating password",
		"UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?",
		newHash, time.Now().UTC().Format(timeLayout), userID,
	)
}

func (s *Store) update(ctx context.Context, op, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return levelAuth.ErrUserNotFound
	}
	return nil
}

func (s *Store) getUser(ctx context.Context, query string, args ...any) (levelAuth.UserRecord, error) {
	var (
		u                       levelAuth.UserRecord
		username, upline, token sql.NullString
		verified                int
		createdAt, updatedAt    string
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.Name, &u.Surname, &u.Email, &username, &u.Mobile, &u.PasswordHash,
		&u.AccessLevel, &upline, &verified, &token, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return levelAuth.UserRecord{}, levelAuth.ErrUserNotFound
		}
		return levelAuth.UserRecord{}, fmt.Errorf("scanning user: %w", err)
	}

	u.Username = username.String
	u.UplineID = upline.String
	u.VerificationToken = token.String
	u.Verified = verified != 0
	u.CreatedAt, _ = time.Parse(timeLayout, createdAt) //nolint:errcheck // format is controlled
	u.UpdatedAt, _ = time.Parse(timeLayout, updatedAt) //nolint:errcheck // format is controlled
	return u, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}
