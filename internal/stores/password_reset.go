package stores

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrResetNotFound         = errors.New("reset record not found")
	ErrResetTokenMismatch    = errors.New("reset token mismatch")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

// ResetRecord is the pending state of one issued reset token, keyed by its jti.
type ResetRecord struct {
	UserID    string
	TokenHash [32]byte
	ExpiresAt int64
}

// saveScript stores a record as a hash and points the user's slot at it,
// deleting whatever jti the slot pointed at before.
//
// KEYS: jti key, user key. ARGV: jti, uid, hash, exp, ttl ms, jti key prefix.
var saveScript = redis.NewScript(`
local prev = redis.call('GET', KEYS[2])
if prev and prev ~= ARGV[1] then
	redis.call('DEL', ARGV[6] .. prev)
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], 'uid', ARGV[2], 'hash', ARGV[3], 'exp', ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[5])
return 1
`)

// consumeScript reads and deletes a record in one step. The user slot is
// cleared only while it still names this jti.
//
// KEYS: jti key. ARGV: user key prefix, jti.
var consumeScript = redis.NewScript(`
local rec = redis.call('HMGET', KEYS[1], 'uid', 'hash', 'exp')
if not rec[1] then
	return false
end
redis.call('DEL', KEYS[1])
local userKey = ARGV[1] .. rec[1]
if redis.call('GET', userKey) == ARGV[2] then
	redis.call('DEL', userKey)
end
return rec
`)

// ResetStore keeps issued reset token ids so each token is redeemable once.
// Issuing a new token for a user revokes the previous one.
type ResetStore struct {
	redis     redis.UniversalClient
	jtiPrefix string
	uidPrefix string
	now       func() time.Time
}

func NewResetStore(redisClient redis.UniversalClient, prefix string) *ResetStore {
	if prefix == "" {
		prefix = "lar"
	}
	return &ResetStore{
		redis:     redisClient,
		jtiPrefix: prefix + ":jti:",
		uidPrefix: prefix + ":user:",
		now:       time.Now,
	}
}

// HashToken returns the digest stored alongside a reset jti.
func HashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

// Save records jti as redeemable until ttl elapses and revokes any earlier
// outstanding token for the same user.
func (s *ResetStore) Save(ctx context.Context, jti string, record *ResetRecord, ttl time.Duration) error {
	if jti == "" || record == nil || record.UserID == "" {
		return errors.New("reset record requires jti and user id")
	}
	if ttl <= 0 {
		return errors.New("reset record ttl must be positive")
	}
	if record.ExpiresAt == 0 {
		record.ExpiresAt = s.now().Add(ttl).Unix()
	}

	keys := []string{s.jtiPrefix + jti, s.uidPrefix + record.UserID}
	err := saveScript.Run(ctx, s.redis, keys,
		jti,
		record.UserID,
		hex.EncodeToString(record.TokenHash[:]),
		record.ExpiresAt,
		ttl.Milliseconds(),
		s.jtiPrefix,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return nil
}

// Consume redeems jti. The record is gone afterwards whatever the outcome;
// a digest that does not match tokenHash yields ErrResetTokenMismatch.
func (s *ResetStore) Consume(ctx context.Context, jti string, tokenHash [32]byte) (*ResetRecord, error) {
	vals, err := consumeScript.Run(ctx, s.redis, []string{s.jtiPrefix + jti}, s.uidPrefix, jti).StringSlice()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrResetNotFound
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}

	record, err := parseResetRecord(vals)
	if err != nil {
		return nil, err
	}
	if s.now().Unix() > record.ExpiresAt {
		return nil, ErrResetNotFound
	}
	if subtle.ConstantTimeCompare(record.TokenHash[:], tokenHash[:]) != 1 {
		return nil, ErrResetTokenMismatch
	}
	return record, nil
}

// Pending reports whether jti is still redeemable.
func (s *ResetStore) Pending(ctx context.Context, jti string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.jtiPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return n == 1, nil
}

// parseResetRecord reads the uid, hash and exp fields returned by consumeScript.
func parseResetRecord(vals []string) (*ResetRecord, error) {
	if len(vals) != 3 {
		return nil, fmt.Errorf("reset record has %d fields", len(vals))
	}
	rec := &ResetRecord{UserID: vals[0]}

	digest, err := hex.DecodeString(vals[1])
	if err != nil || len(digest) != len(rec.TokenHash) {
		return nil, errors.New("reset record hash is malformed")
	}
	copy(rec.TokenHash[:], digest)

	if rec.ExpiresAt, err = strconv.ParseInt(vals[2], 10, 64); err != nil {
		return nil, fmt.Errorf("reset record expiry: %w", err)
	}
	return rec, nil
}
