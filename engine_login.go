package authcore

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/internal/rate"
)

// Login checks credentials and opens a new refresh family for deviceID.
//
// Unknown emails, deleted accounts and wrong passwords all fail with
// ErrInvalidCredentials after the same amount of hashing work. Attempts are
// limited per email and, when WithClientIP was used, per client IP.
func (e *Engine) Login(ctx context.Context, email, plaintext, deviceID string) (TokenPair, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return TokenPair{}, err
	}
	if plaintext == "" {
		e.loginFailed(ctx, "", ErrInvalidCredentials, "empty_password")
		return TokenPair{}, ErrInvalidCredentials
	}

	if ip := ClientIPFromContext(ctx); ip != "" {
		if err := e.allow(ctx, rate.ScopeLoginIP, ip); err != nil {
			e.loginRateLimited(err)
			return TokenPair{}, err
		}
	}
	if err := e.allow(ctx, rate.ScopeLogin, email); err != nil {
		e.loginRateLimited(err)
		return TokenPair{}, err
	}

	acct, err := e.accountByEmail(ctx, email)
	if errors.Is(err, ErrAccountNotFound) {
		_, _ = e.hasher.Verify(plaintext, e.dummyHash)
		e.loginFailed(ctx, "", ErrInvalidCredentials, "unknown_email")
		return TokenPair{}, ErrInvalidCredentials
	}
	if err != nil {
		return TokenPair{}, err
	}

	ok, err := e.hasher.Verify(plaintext, acct.PasswordHash)
	if err != nil {
		e.logger.Error("stored password hash unusable", zap.String("account_id", acct.ID), zap.Error(err))
	}
	if err != nil || !ok {
		e.loginFailed(ctx, acct.ID, ErrInvalidCredentials, "password_mismatch")
		return TokenPair{}, ErrInvalidCredentials
	}
	if statusErr := statusError(acct.Status); statusErr != nil {
		e.loginFailed(ctx, acct.ID, statusErr, "account_status")
		return TokenPair{}, statusErr
	}

	opCtx, cancel := e.withTimeout(ctx)
	if err := e.limiter.Reset(opCtx, rate.ScopeLogin, email); err != nil {
		e.logger.Warn("login limiter reset failed", zap.String("account_id", acct.ID), zap.Error(err))
	}
	cancel()

	acct = e.upgradeHash(ctx, acct, plaintext)
	plaintext = ""

	pair, err := e.startSession(ctx, acct, deviceID)
	if err != nil {
		return TokenPair{}, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, acct.ID, pair.FamilyID, nil, nil)
	return pair, nil
}

// upgradeHash re-hashes with the current parameters when the stored hash is
// outdated. The update bumps the token version, so it runs before any token
// is minted. Failure keeps the old hash and the login proceeds.
func (e *Engine) upgradeHash(ctx context.Context, acct account.Account, plaintext string) account.Account {
	if !e.config.Password.UpgradeOnLogin || !e.hasher.NeedsRehash(acct.PasswordHash) {
		return acct
	}
	hash, err := e.hasher.Hash(plaintext)
	if err != nil {
		e.logger.Warn("password rehash failed", zap.String("account_id", acct.ID), zap.Error(err))
		return acct
	}

	opCtx, cancel := e.withTimeout(ctx)
	defer cancel()
	updated, err := e.accounts.UpdatePassword(opCtx, acct.ID, []account.Status{account.StatusActive}, hash)
	if err != nil {
		e.logger.Warn("password rehash update failed", zap.String("account_id", acct.ID), zap.Error(err))
		return acct
	}
	return updated
}

func (e *Engine) loginFailed(ctx context.Context, accountID string, err error, reason string) {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, accountID, "", err, func() map[string]string {
		return map[string]string{
			"reason": reason,
		}
	})
}

func (e *Engine) loginRateLimited(err error) {
	if errors.Is(err, ErrRateLimited) {
		e.metricInc(MetricLoginRateLimited)
	}
}
