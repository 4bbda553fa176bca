package session

import (
	"errors"
	"time"
)

var (
	ErrInvalid       = errors.New("session: invalid refresh token")
	ErrExpired       = errors.New("session: refresh token expired")
	ErrRevoked       = errors.New("session: family revoked")
	ErrReuseDetected = errors.New("session: refresh token reuse detected")
	ErrUnavailable   = errors.New("session: redis unavailable")
)

// ReuseError is returned by Rotate when a replay revoked a family.
// errors.Is(err, ErrReuseDetected) holds.
type ReuseError struct {
	AccountID string
	FamilyID  string
}

func (e *ReuseError) Error() string {
	return ErrReuseDetected.Error() + ": family " + e.FamilyID
}

func (e *ReuseError) Is(target error) bool { return target == ErrReuseDetected }

// Issued describes the current session of a family after Create or Rotate.
// Token is the opaque credential handed to the client.
type Issued struct {
	AccountID string
	FamilyID  string
	SessionID string
	Sequence  uint64
	Token     string
	ExpiresAt time.Time
	// Replayed is set when Rotate resolved a benign race by returning the
	// token an earlier concurrent rotation already produced.
	Replayed bool
}

// Family is the introspection view of a refresh family.
type Family struct {
	ID        string
	AccountID string
	DeviceID  string
	SessionID string
	Sequence  uint64
	Revoked   bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

type Config struct {
	// RefreshTTL is the lifetime of each session row; every rotation starts a
	// new one, capped by AbsoluteLifetime.
	RefreshTTL time.Duration
	// AbsoluteLifetime bounds a family from its first login.
	AbsoluteLifetime time.Duration
	// RaceGrace is how long after a rotation its predecessor may be
	// presented again and be answered idempotently. Zero treats every
	// presentation of a rotated token as reuse.
	RaceGrace time.Duration
}

func DefaultConfig() Config {
	return Config{
		RefreshTTL:       7 * 24 * time.Hour,
		AbsoluteLifetime: 30 * 24 * time.Hour,
	}
}

func (c Config) Validate() error {
	if c.RefreshTTL <= 0 {
		return errors.New("session: refresh TTL must be > 0")
	}
	if c.AbsoluteLifetime < c.RefreshTTL {
		return errors.New("session: absolute lifetime must be >= refresh TTL")
	}
	if c.RaceGrace < 0 || c.RaceGrace > time.Minute {
		return errors.New("session: race grace must be in [0,1m]")
	}
	return nil
}
