package authcore

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/otp"
)

// ForgotPassword sends a reset code to an active account. Unknown, pending
// and blocked emails get the same nil result; only rate limiting and store
// failures are reported.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if err := e.allow(ctx, rate.ScopeOTPIssue, otpIdentity(otp.PurposePasswordReset, email)); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetRequest)
	acct, err := e.accountByEmail(ctx, email)
	if errors.Is(err, ErrAccountNotFound) {
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", "", err, nil)
		return nil
	}
	if err != nil {
		return err
	}
	if acct.Status != account.StatusActive {
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, acct.ID, "", statusError(acct.Status), nil)
		return nil
	}

	if _, err := e.sendCode(ctx, acct, otp.PurposePasswordReset); err != nil {
		return err
	}
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, acct.ID, "", nil, nil)
	return nil
}

// ResetPassword consumes a reset code and replaces the password. The token
// version is bumped and every refresh family revoked, so all existing
// sessions end.
func (e *Engine) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if err := e.checkCode(code); err != nil {
		return err
	}
	if err := e.checkPassword(newPassword, email); err != nil {
		return err
	}
	if err := e.allow(ctx, rate.ScopeOTPVerify, otpIdentity(otp.PurposePasswordReset, email)); err != nil {
		return err
	}

	acct, err := e.accountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			err = ErrOTPNotFound
		}
		e.resetFailed(ctx, "", err)
		return err
	}
	if acct.Status != account.StatusActive {
		e.resetFailed(ctx, acct.ID, ErrOTPNotFound)
		return ErrOTPNotFound
	}

	if err := e.verifyCode(ctx, acct.ID, otp.PurposePasswordReset, code); err != nil {
		e.resetFailed(ctx, acct.ID, err)
		return err
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := e.replacePassword(ctx, acct.ID, hash); err != nil {
		e.resetFailed(ctx, acct.ID, err)
		return err
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, acct.ID, "", nil, nil)
	return nil
}

func (e *Engine) resetFailed(ctx context.Context, accountID string, err error) {
	e.metricInc(MetricPasswordResetFailure)
	e.emitAudit(ctx, auditEventPasswordResetFailure, false, accountID, "", err, nil)
}

// ChangePassword replaces the caller's password after checking the current
// one. Like ResetPassword it ends every session, including the caller's.
func (e *Engine) ChangePassword(ctx context.Context, caller *Principal, oldPassword, newPassword string) error {
	if caller == nil {
		return ErrTokenInvalid
	}
	if oldPassword == newPassword {
		return ErrPasswordReuse
	}
	if err := e.checkPassword(newPassword, caller.Email); err != nil {
		return err
	}

	acct, err := e.accountByID(ctx, caller.AccountID)
	if err != nil {
		return err
	}
	if err := statusError(acct.Status); err != nil {
		return err
	}

	ok, err := e.hasher.Verify(oldPassword, acct.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, acct.ID, "", ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := e.replacePassword(ctx, acct.ID, hash); err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, acct.ID, "", err, nil)
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, acct.ID, "", nil, nil)
	return nil
}

// replacePassword writes hash, which bumps the token version, then revokes
// every family. A revocation failure is reported even though the password
// already changed.
func (e *Engine) replacePassword(ctx context.Context, accountID, hash string) error {
	opCtx, cancel := e.withTimeout(ctx)
	_, err := e.accounts.UpdatePassword(opCtx, accountID, []account.Status{account.StatusActive}, hash)
	cancel()
	if err != nil {
		return accountErr(err)
	}
	if err := e.revokeAccountSessions(ctx, accountID); err != nil {
		e.securityEvent("password changed but sessions not revoked", zap.String("account_id", accountID), zap.Error(err))
		return err
	}
	return nil
}
