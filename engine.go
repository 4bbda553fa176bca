package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/account"
	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	internalmetrics "github.com/MrEthical07/authcore/internal/metrics"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/otp"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/session"
)

// Engine is the identity and session core. It holds no per-request state:
// every decision is taken against the account store and Redis, so any number
// of instances may serve the same users.
//
// Engine instances are built once by Builder and are safe for concurrent use.
type Engine struct {
	config    Config
	accounts  account.Store
	roles     *permission.RoleTable
	sessions  *session.Store
	otps      *otp.Store
	limiter   *rate.Limiter
	hasher    password.Hasher
	policy    password.Policy
	tokens    *jwt.Manager
	audit     *internalaudit.Dispatcher
	metrics   *internalmetrics.Metrics
	logger    *zap.Logger
	notifier  Notifier
	dummyHash string
	now       func() time.Time

	notifyMu sync.Mutex
	notifyWG sync.WaitGroup
	closed   bool
}

// Close waits for in-flight notifications and drains the audit buffer.
// Operations started after Close still work but no longer notify.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.notifyMu.Lock()
	e.closed = true
	e.notifyMu.Unlock()
	e.notifyWG.Wait()

	e.audit.Close()
	_ = e.logger.Sync()
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.Store.OperationTimeout)
}

// readAccount runs an idempotent account read, retrying transient store
// failures with a linear backoff. Writes never go through here.
func (e *Engine) readAccount(ctx context.Context, read func(context.Context) (account.Account, error)) (account.Account, error) {
	var lastErr error
	for attempt := 0; attempt <= e.config.Store.ReadRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * e.config.Store.RetryBackoff
			select {
			case <-ctx.Done():
				return account.Account{}, accountErr(lastErr)
			case <-time.After(wait):
			}
		}

		opCtx, cancel := e.withTimeout(ctx)
		acct, err := read(opCtx)
		cancel()
		if err == nil {
			return acct, nil
		}
		lastErr = err
		if !errors.Is(err, account.ErrUnavailable) {
			break
		}
	}
	return account.Account{}, accountErr(lastErr)
}

func (e *Engine) accountByEmail(ctx context.Context, email string) (account.Account, error) {
	return e.readAccount(ctx, func(ctx context.Context) (account.Account, error) {
		return e.accounts.GetByEmail(ctx, email)
	})
}

func (e *Engine) accountByID(ctx context.Context, id string) (account.Account, error) {
	return e.readAccount(ctx, func(ctx context.Context) (account.Account, error) {
		return e.accounts.GetByID(ctx, id)
	})
}

// accountErr maps store errors onto engine sentinels. Anything unrecognised
// is treated as a store failure so the caller denies.
func accountErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, account.ErrNotFound):
		return ErrAccountNotFound
	case errors.Is(err, account.ErrEmailTaken):
		return ErrAccountExists
	case errors.Is(err, account.ErrStateConflict), errors.Is(err, account.ErrTransition):
		return ErrStateConflict
	case errors.Is(err, account.ErrInvalidEmail):
		return ErrInvalidInput
	default:
		return unavailable(err)
	}
}

func statusError(s account.Status) error {
	switch s {
	case account.StatusActive:
		return nil
	case account.StatusPendingVerification:
		return ErrAccountUnverified
	case account.StatusBlocked:
		return ErrAccountBlocked
	case account.StatusDeleted:
		return ErrAccountDeleted
	default:
		return ErrForbidden
	}
}

// allow consumes one unit of scope for identity. A limiter failure denies.
func (e *Engine) allow(ctx context.Context, scope rate.Scope, identity string) error {
	opCtx, cancel := e.withTimeout(ctx)
	defer cancel()

	d, err := e.limiter.Allow(opCtx, scope, identity)
	if err != nil {
		e.logger.Error("rate limiter unavailable", zap.String("scope", string(scope)), zap.Error(err))
		return unavailable(err)
	}
	if d.Allowed {
		return nil
	}
	e.emitRateLimit(ctx, string(scope))
	return &RateLimitError{Scope: string(scope), RetryAfter: d.RetryAfter}
}

func (e *Engine) issueAccess(acct account.Account, familyID string) (string, time.Time, error) {
	return e.tokens.CreateAccess(jwt.AccessInput{
		AccountID:    acct.ID,
		Role:         string(acct.Role),
		TokenVersion: acct.TokenVersion,
		FamilyID:     familyID,
	})
}

// startSession opens a refresh family for acct and mints the first access token.
func (e *Engine) startSession(ctx context.Context, acct account.Account, deviceID string) (TokenPair, error) {
	opCtx, cancel := e.withTimeout(ctx)
	issued, err := e.sessions.Create(opCtx, acct.ID, deviceID)
	cancel()
	if err != nil {
		e.logger.Error("session create failed", zap.String("account_id", acct.ID), zap.Error(err))
		return TokenPair{}, unavailable(err)
	}

	access, exp, err := e.issueAccess(acct, issued.FamilyID)
	if err != nil {
		return TokenPair{}, err
	}
	e.metricInc(MetricSessionCreated)

	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  exp,
		RefreshToken:     issued.Token,
		RefreshExpiresAt: issued.ExpiresAt,
		FamilyID:         issued.FamilyID,
	}, nil
}

// revokeAccountSessions revokes every refresh family of accountID. The
// version bump that precedes it already invalidated access tokens.
func (e *Engine) revokeAccountSessions(ctx context.Context, accountID string) error {
	opCtx, cancel := e.withTimeout(ctx)
	defer cancel()

	n, err := e.sessions.RevokeAll(opCtx, accountID)
	if err != nil {
		e.logger.Error("revoke sessions failed", zap.String("account_id", accountID), zap.Int("revoked", n), zap.Error(err))
		return unavailable(err)
	}
	for i := 0; i < n; i++ {
		e.metricInc(MetricSessionRevoked)
	}
	return nil
}

func (e *Engine) checkPassword(plaintext, email string) error {
	if err := e.policy.Check(plaintext, email); err != nil {
		return fmt.Errorf("%w: %w", ErrPasswordPolicy, err)
	}
	return nil
}

func (e *Engine) checkCode(code string) error {
	if len(code) != e.config.OTP.Digits {
		return ErrInvalidInput
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return ErrInvalidInput
		}
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	email, err := account.NormalizeEmail(raw)
	if err != nil {
		return "", ErrInvalidInput
	}
	return email, nil
}

// maskEmail keeps the first character of the local part for log correlation.
func maskEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
