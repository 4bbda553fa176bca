package otp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/internal"
)

type Purpose string

const (
	PurposeRegistration  Purpose = "registration"
	PurposePasswordReset Purpose = "password_reset"
)

func (p Purpose) valid() bool {
	return p == PurposeRegistration || p == PurposePasswordReset
}

var (
	ErrNotFound         = errors.New("otp: not found")
	ErrExpired          = errors.New("otp: expired")
	ErrAttemptsExceeded = errors.New("otp: attempts exceeded")
	ErrMismatch         = errors.New("otp: code mismatch")
	ErrInvalidPurpose   = errors.New("otp: invalid purpose")
	ErrUnavailable      = errors.New("otp: redis unavailable")
)

// verifyOTPLua decrements attempts and compares the code hash atomically.
// KEYS[1] = record key
// ARGV[1] = hex hash of the submitted code
// ARGV[2] = now, unix ms
//
// Returns the stored hash on match, otherwise an error reply:
// not_found, expired, attempts_exceeded or mismatch.
var verifyOTPLua = redis.NewScript(`
local stored = redis.call('HGET', KEYS[1], 'h')
if not stored then
  return {err='not_found'}
end

local exp = tonumber(redis.call('HGET', KEYS[1], 'exp'))
if exp == nil or tonumber(ARGV[2]) > exp then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

local left = redis.call('HINCRBY', KEYS[1], 'a', -1)
if stored == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return stored
end

if left <= 0 then
  redis.call('DEL', KEYS[1])
  return {err='attempts_exceeded'}
end
return {err='mismatch'}
`)

type Config struct {
	TTL         time.Duration
	MaxAttempts int
	Digits      int
	// Pepper keys the code HMAC so a leaked record cannot be brute-forced
	// offline without it.
	Pepper []byte
}

func DefaultConfig() Config {
	return Config{TTL: 10 * time.Minute, MaxAttempts: 5, Digits: 6}
}

func (c Config) Validate() error {
	if c.TTL <= 0 {
		return errors.New("otp: TTL must be > 0")
	}
	if c.MaxAttempts < 1 {
		return errors.New("otp: max attempts must be >= 1")
	}
	if c.Digits < 6 || c.Digits > 10 {
		return errors.New("otp: digits must be in [6,10]")
	}
	if len(c.Pepper) < 16 {
		return errors.New("otp: pepper must be at least 16 bytes")
	}
	return nil
}

// Issued is returned by Issue. Code is plaintext and must only be handed to
// the notifier.
type Issued struct {
	Reference string
	Code      string
	ExpiresAt time.Time
}

// Store keeps hashed one-time codes in Redis with attempt counters.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	cfg    Config
	now    func() time.Time
}

// NewStore validates cfg and binds the store to client. An empty prefix
// defaults to "otp".
func NewStore(client redis.UniversalClient, prefix string, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = "otp"
	}
	return &Store{redis: client, prefix: prefix, cfg: cfg, now: time.Now}, nil
}

func (s *Store) key(accountID string, purpose Purpose) string {
	return s.prefix + ":{" + string(purpose) + ":" + accountID + "}"
}

func (s *Store) hash(accountID string, purpose Purpose, code string) string {
	mac := hmac.New(sha256.New, s.cfg.Pepper)
	mac.Write([]byte(purpose))
	mac.Write([]byte{0})
	mac.Write([]byte(accountID))
	mac.Write([]byte{0})
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// Issue replaces any live code for (accountID, purpose) with a fresh one.
func (s *Store) Issue(ctx context.Context, accountID string, purpose Purpose) (Issued, error) {
	if !purpose.valid() {
		return Issued{}, ErrInvalidPurpose
	}

	code, err := internal.NewOTP(s.cfg.Digits)
	if err != nil {
		return Issued{}, err
	}

	now := s.now()
	issued := Issued{
		Reference: uuid.NewString(),
		Code:      code,
		ExpiresAt: now.Add(s.cfg.TTL),
	}

	key := s.key(accountID, purpose)
	_, err = s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key,
			"h", s.hash(accountID, purpose, code),
			"a", s.cfg.MaxAttempts,
			"exp", issued.ExpiresAt.UnixMilli(),
			"c", now.UnixMilli(),
			"ref", issued.Reference,
		)
		p.PExpire(ctx, key, s.cfg.TTL)
		return nil
	})
	if err != nil {
		return Issued{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return issued, nil
}

// Verify consumes the record when code matches. See package doc for the
// failure modes.
func (s *Store) Verify(ctx context.Context, accountID string, purpose Purpose, code string) error {
	if !purpose.valid() {
		return ErrInvalidPurpose
	}

	provided := s.hash(accountID, purpose, code)
	res, err := verifyOTPLua.Run(ctx, s.redis,
		[]string{s.key(accountID, purpose)},
		provided,
		s.now().UnixMilli(),
	).Result()
	if err != nil {
		switch err.Error() {
		case "not_found":
			return ErrNotFound
		case "expired":
			return ErrExpired
		case "attempts_exceeded":
			return ErrAttemptsExceeded
		case "mismatch":
			return ErrMismatch
		default:
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	stored, ok := res.(string)
	if !ok {
		return fmt.Errorf("%w: unexpected lua result type", ErrUnavailable)
	}
	// Lua string equality is not constant time.
	if subtle.ConstantTimeCompare([]byte(stored), []byte(provided)) != 1 {
		return ErrMismatch
	}
	return nil
}

// Revoke drops any live code for (accountID, purpose). Missing records are not an error.
func (s *Store) Revoke(ctx context.Context, accountID string, purpose Purpose) error {
	if err := s.redis.Del(ctx, s.key(accountID, purpose)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Remaining reports the attempts left on the live record, or ErrNotFound.
func (s *Store) Remaining(ctx context.Context, accountID string, purpose Purpose) (int, error) {
	v, err := s.redis.HGet(ctx, s.key(accountID, purpose), "a").Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return strconv.Atoi(v)
}
