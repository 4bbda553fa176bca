package authcore

import (
	"context"
	"io"
	"time"

	"github.com/MrEthical07/authcore/account"
	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/permission"
)

// TokenPair is returned by every operation that starts or continues a session.
// RefreshToken is opaque and must only be presented to Refresh and Logout.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	FamilyID         string
}

// Principal is the verified caller of a protected operation. It is rebuilt
// from the account record on every call, never cached.
type Principal struct {
	AccountID    string
	Email        string
	Role         permission.Role
	TokenVersion uint64
	FamilyID     string
	Permissions  permission.Mask64
}

// RegisterResult identifies the pending account and the verification code
// sent to it. The code itself only travels through the Notifier.
type RegisterResult struct {
	AccountID    string
	OTPReference string
	ExpiresAt    time.Time
}

// SessionInfo describes one live refresh family of an account.
type SessionInfo struct {
	FamilyID  string
	DeviceID  string
	Sequence  uint64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// AccountView is the outward projection of an account record.
type AccountView struct {
	ID        string
	Email     string
	Role      permission.Role
	Status    account.Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

func viewOf(a account.Account) AccountView {
	return AccountView{
		ID:        a.ID,
		Email:     a.Email,
		Role:      a.Role,
		Status:    a.Status,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// MessageKind names the template a Notifier should render.
type MessageKind string

const (
	MessageVerifyEmail   MessageKind = "verify_email"
	MessagePasswordReset MessageKind = "password_reset"
)

// Message carries a one-time code to its recipient.
type Message struct {
	Kind      MessageKind
	To        string
	AccountID string
	Code      string
	Reference string
	ExpiresAt time.Time
}

// Notifier delivers messages out of band. Delivery is best effort: the engine
// calls it in the background and only logs failures.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Notify(ctx context.Context, msg Message) error { return f(ctx, msg) }

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Message) error { return nil }

// AuditEvent is the record handed to audit sinks.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink drops audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers audit events in a channel, mostly for tests.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON document per event.
type JSONWriterSink = internalaudit.JSONWriterSink

// MultiSink fans events out to several sinks.
type MultiSink = internalaudit.MultiSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
