package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/permission"
)

// Authorize verifies accessToken against the current account record and
// checks req.
//
// A token only authorizes while the account is Active and its embedded token
// version and role still match the record. Bad or expired tokens fail
// Unauthenticated; blocked, deleted, stale or under-privileged callers fail
// Forbidden.
func (e *Engine) Authorize(ctx context.Context, accessToken string, req permission.Requirement) (*Principal, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricAuthorizeLatency, time.Since(start))
		}()
	}

	p, err := e.authorize(ctx, accessToken, req)
	if err != nil {
		e.metricInc(MetricAuthorizeDenied)
		accountID := ""
		if p != nil {
			accountID = p.AccountID
		}
		e.emitAudit(ctx, auditEventAuthorizeDenied, false, accountID, "", err, func() map[string]string {
			return map[string]string{"requirement": req.String()}
		})
		return nil, err
	}
	e.metricInc(MetricAuthorizeSuccess)
	return p, nil
}

// VerifyAccessToken is Authorize with the weakest requirement: any Active
// account with a current token.
func (e *Engine) VerifyAccessToken(ctx context.Context, accessToken string) (*Principal, error) {
	return e.Authorize(ctx, accessToken, permission.AtLeast(permission.RoleUser))
}

// authorize returns a partial Principal alongside the error once the token
// itself has been trusted, so the denial can be attributed.
func (e *Engine) authorize(ctx context.Context, accessToken string, req permission.Requirement) (*Principal, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, ErrTokenInvalid
	}

	claims, err := e.tokens.ParseAccess(accessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	p := &Principal{AccountID: claims.Subject, TokenVersion: claims.TokenVersion, FamilyID: claims.FamilyID}

	acct, err := e.accountByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return p, ErrTokenInvalid
		}
		return p, err
	}
	if err := statusError(acct.Status); err != nil {
		return p, err
	}
	if acct.TokenVersion != claims.TokenVersion || string(acct.Role) != claims.Role {
		return p, ErrTokenStale
	}

	if err := e.roles.Check(acct.Role, req); err != nil {
		return p, fmt.Errorf("%w: %v", ErrForbidden, err)
	}
	mask, _ := e.roles.Mask(acct.Role)

	p.Email = acct.Email
	p.Role = acct.Role
	p.Permissions = mask
	return p, nil
}
