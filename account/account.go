package account

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/permission"
)

type Status string

const (
	StatusPendingVerification Status = "pending_verification"
	StatusActive              Status = "active"
	StatusBlocked             Status = "blocked"
	StatusDeleted             Status = "deleted"
)

var (
	ErrNotFound      = errors.New("account: not found")
	ErrEmailTaken    = errors.New("account: email already registered")
	ErrStateConflict = errors.New("account: status precondition failed")
	ErrInvalidEmail  = errors.New("account: invalid email")
	ErrTransition    = errors.New("account: transition not allowed")
	ErrUnavailable   = errors.New("account: store unavailable")
)

// Account is the aggregate root. OTP records and refresh sessions reference
// it by ID and live in the ephemeral store.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Role         permission.Role
	Status       Status
	TokenVersion uint64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

func (a Account) Active() bool { return a.Status == StatusActive }

// Store is the durable account store.
//
// GetByEmail only sees non-deleted accounts. Every mutation returns the row as
// written. A status precondition miss returns ErrStateConflict; a connection
// or timeout failure wraps ErrUnavailable.
type Store interface {
	Create(ctx context.Context, a Account) (Account, error)
	GetByID(ctx context.Context, id string) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)

	// Transition moves the account from any of from to to. bumpVersion
	// increments TokenVersion in the same update. Moving to StatusDeleted
	// stamps DeletedAt.
	Transition(ctx context.Context, id string, from []Status, to Status, bumpVersion bool) (Account, error)
	// UpdatePassword replaces the hash of an account in one of from and bumps TokenVersion.
	UpdatePassword(ctx context.Context, id string, from []Status, hash string) (Account, error)
	// UpdateRole changes the role of a non-deleted account and bumps TokenVersion.
	UpdateRole(ctx context.Context, id string, role permission.Role) (Account, error)
}

// CanTransition encodes the lifecycle: Pending->Active, Active<->Blocked and
// any non-deleted status -> Deleted. Deleted is terminal.
func CanTransition(from, to Status) bool {
	switch {
	case from == StatusDeleted:
		return false
	case to == StatusDeleted:
		return true
	case from == StatusPendingVerification && to == StatusActive:
		return true
	case from == StatusActive && to == StatusBlocked:
		return true
	case from == StatusBlocked && to == StatusActive:
		return true
	default:
		return false
	}
}

// ValidateTransition rejects disallowed edges from every from status.
func ValidateTransition(from []Status, to Status) error {
	if len(from) == 0 {
		return ErrTransition
	}
	for _, f := range from {
		if !CanTransition(f, to) {
			return ErrTransition
		}
	}
	return nil
}

// LiveStatuses is every status except Deleted.
func LiveStatuses() []Status {
	return []Status{StatusPendingVerification, StatusActive, StatusBlocked}
}

// NormalizeEmail trims and lower-cases the address and checks it parses as a
// bare addr-spec.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" || len(email) > 254 {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	if !strings.Contains(email[strings.LastIndexByte(email, '@')+1:], ".") {
		return "", ErrInvalidEmail
	}
	return email, nil
}
