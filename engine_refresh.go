package authcore

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/session"
)

// Refresh rotates refreshToken and mints a new access token from the current
// account record.
//
// Presenting a token that was already rotated revokes its whole family and
// fails with ErrRefreshReuse; the client must log in again. The rotation is
// never retried: a store failure fails closed. The per-family rate limit is
// charged only once the token's secret has matched.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	tok, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		e.refreshFailed(ctx, "", "", ErrRefreshInvalid, "decode_failed")
		return TokenPair{}, ErrRefreshInvalid
	}

	// Only a token whose secret matches its family may spend that family's
	// budget.
	var issued session.Issued
	verifyCtx, cancel := e.withTimeout(ctx)
	err = e.sessions.Verify(verifyCtx, refreshToken)
	cancel()
	if err == nil {
		if err := e.allow(ctx, rate.ScopeRefresh, tok.FamilyID); err != nil {
			return TokenPair{}, err
		}
		opCtx, cancel := e.withTimeout(ctx)
		issued, err = e.sessions.Rotate(opCtx, refreshToken)
		cancel()
	}
	if err != nil {
		var reuse *session.ReuseError
		switch {
		case errors.As(err, &reuse):
			e.metricInc(MetricRefreshReuseDetected)
			e.metricInc(MetricSessionRevoked)
			e.securityEvent("refresh token reuse detected",
				zap.String("account_id", reuse.AccountID),
				zap.String("family_id", reuse.FamilyID),
				zap.String("ip", ClientIPFromContext(ctx)),
			)
			e.emitAudit(ctx, auditEventRefreshReuseDetected, false, reuse.AccountID, reuse.FamilyID, ErrRefreshReuse, nil)
			return TokenPair{}, ErrRefreshReuse
		case errors.Is(err, session.ErrUnavailable):
			e.logger.Error("refresh rotation failed", zap.String("family_id", tok.FamilyID), zap.Error(err))
			e.refreshFailed(ctx, "", tok.FamilyID, unavailable(err), "store_unavailable")
			return TokenPair{}, unavailable(err)
		default:
			e.refreshFailed(ctx, "", tok.FamilyID, ErrRefreshInvalid, refreshReason(err))
			return TokenPair{}, ErrRefreshInvalid
		}
	}
	if issued.Replayed {
		e.metricInc(MetricRefreshReplayed)
	}

	acct, err := e.accountByID(ctx, issued.AccountID)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return TokenPair{}, err
	}
	if err == nil {
		err = statusError(acct.Status)
	}
	if err != nil {
		// the account can no longer hold sessions; drop this family now
		revokeCtx, cancel := e.withTimeout(ctx)
		if revokeErr := e.sessions.Revoke(revokeCtx, issued.FamilyID); revokeErr != nil {
			e.logger.Error("family revoke failed", zap.String("family_id", issued.FamilyID), zap.Error(revokeErr))
		}
		cancel()
		e.metricInc(MetricSessionRevoked)
		if errors.Is(err, ErrAccountNotFound) {
			err = ErrRefreshInvalid
		}
		e.refreshFailed(ctx, issued.AccountID, issued.FamilyID, err, "account_status")
		return TokenPair{}, err
	}

	access, exp, err := e.issueAccess(acct, issued.FamilyID)
	if err != nil {
		e.refreshFailed(ctx, acct.ID, issued.FamilyID, err, "issue_access_failed")
		return TokenPair{}, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, acct.ID, issued.FamilyID, nil, func() map[string]string {
		if !issued.Replayed {
			return nil
		}
		return map[string]string{"replayed": "true"}
	})

	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  exp,
		RefreshToken:     issued.Token,
		RefreshExpiresAt: issued.ExpiresAt,
		FamilyID:         issued.FamilyID,
	}, nil
}

func (e *Engine) refreshFailed(ctx context.Context, accountID, familyID string, err error, reason string) {
	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, auditEventRefreshInvalid, false, accountID, familyID, err, func() map[string]string {
		return map[string]string{
			"reason": reason,
		}
	})
}

func refreshReason(err error) string {
	switch {
	case errors.Is(err, session.ErrRevoked):
		return "revoked"
	case errors.Is(err, session.ErrExpired):
		return "expired"
	default:
		return "invalid"
	}
}

// Logout revokes the family refreshToken belongs to. Repeating it with the
// same token succeeds.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	opCtx, cancel := e.withTimeout(ctx)
	fam, err := e.sessions.RevokeByToken(opCtx, refreshToken)
	cancel()
	switch {
	case err == nil:
	case errors.Is(err, session.ErrUnavailable):
		e.logger.Error("logout failed", zap.Error(err))
		return unavailable(err)
	default:
		return ErrRefreshInvalid
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventLogoutSession, true, fam.AccountID, fam.ID, nil, nil)
	return nil
}

// LogoutAll revokes every refresh family of the caller and returns how many
// were live. Access tokens already issued stay valid until they expire.
func (e *Engine) LogoutAll(ctx context.Context, caller *Principal) (int, error) {
	if caller == nil {
		return 0, ErrTokenInvalid
	}
	opCtx, cancel := e.withTimeout(ctx)
	n, err := e.sessions.RevokeAll(opCtx, caller.AccountID)
	cancel()
	if err != nil {
		e.logger.Error("logout all failed", zap.String("account_id", caller.AccountID), zap.Error(err))
		return n, unavailable(err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, caller.AccountID, "", nil, nil)
	return n, nil
}

// ListSessions returns the caller's live refresh families.
func (e *Engine) ListSessions(ctx context.Context, caller *Principal) ([]SessionInfo, error) {
	if caller == nil {
		return nil, ErrTokenInvalid
	}
	opCtx, cancel := e.withTimeout(ctx)
	defer cancel()

	families, err := e.sessions.ListFamilies(opCtx, caller.AccountID)
	if err != nil {
		return nil, unavailable(err)
	}
	out := make([]SessionInfo, 0, len(families))
	for _, f := range families {
		out = append(out, SessionInfo{
			FamilyID:  f.ID,
			DeviceID:  f.DeviceID,
			Sequence:  f.Sequence,
			CreatedAt: f.CreatedAt,
			ExpiresAt: f.ExpiresAt,
		})
	}
	return out, nil
}
