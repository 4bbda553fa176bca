package authcore

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/otp"
	"github.com/MrEthical07/authcore/permission"
)

// Register creates a pending account and sends it a verification code.
//
// Registering again with the email of an account that never verified replaces
// its password and sends a fresh code; the earlier code stops working. An
// email held by a verified, blocked or otherwise live account is a conflict.
func (e *Engine) Register(ctx context.Context, email, plaintext string) (RegisterResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return RegisterResult{}, err
	}
	if err := e.checkPassword(plaintext, email); err != nil {
		return RegisterResult{}, err
	}
	if err := e.allow(ctx, rate.ScopeOTPIssue, otpIdentity(otp.PurposeRegistration, email)); err != nil {
		return RegisterResult{}, err
	}

	hash, err := e.hasher.Hash(plaintext)
	if err != nil {
		return RegisterResult{}, err
	}
	plaintext = ""

	acct, err := e.createOrReplacePending(ctx, email, hash)
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", "", err, nil)
		}
		return RegisterResult{}, err
	}

	issued, err := e.sendCode(ctx, acct, otp.PurposeRegistration)
	if err != nil {
		return RegisterResult{}, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegister, true, acct.ID, "", nil, nil)
	e.logger.Info("account registered", zap.String("account_id", acct.ID), zap.String("email", maskEmail(email)))

	return RegisterResult{
		AccountID:    acct.ID,
		OTPReference: issued.Reference,
		ExpiresAt:    issued.ExpiresAt,
	}, nil
}

func (e *Engine) createOrReplacePending(ctx context.Context, email, hash string) (account.Account, error) {
	existing, err := e.accountByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Status != account.StatusPendingVerification {
			return account.Account{}, ErrAccountExists
		}
		opCtx, cancel := e.withTimeout(ctx)
		defer cancel()
		acct, err := e.accounts.UpdatePassword(opCtx, existing.ID, []account.Status{account.StatusPendingVerification}, hash)
		if errors.Is(err, account.ErrStateConflict) {
			// verified between the read and the write
			return account.Account{}, ErrAccountExists
		}
		return acct, accountErr(err)
	case errors.Is(err, ErrAccountNotFound):
	default:
		return account.Account{}, err
	}

	now := e.now().UTC()
	opCtx, cancel := e.withTimeout(ctx)
	defer cancel()
	acct, err := e.accounts.Create(opCtx, account.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         permission.RoleUser,
		Status:       account.StatusPendingVerification,
		TokenVersion: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	return acct, accountErr(err)
}

// ResendVerification issues a new registration code. It reports success for
// unknown and already verified emails alike.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if err := e.allow(ctx, rate.ScopeOTPIssue, otpIdentity(otp.PurposeRegistration, email)); err != nil {
		return err
	}

	acct, err := e.accountByEmail(ctx, email)
	if errors.Is(err, ErrAccountNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if acct.Status != account.StatusPendingVerification {
		return nil
	}

	_, err = e.sendCode(ctx, acct, otp.PurposeRegistration)
	return err
}

// VerifyRegistration consumes the registration code, activates the account
// and opens its first session.
func (e *Engine) VerifyRegistration(ctx context.Context, email, code, deviceID string) (TokenPair, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return TokenPair{}, err
	}
	if err := e.checkCode(code); err != nil {
		return TokenPair{}, err
	}
	if err := e.allow(ctx, rate.ScopeOTPVerify, otpIdentity(otp.PurposeRegistration, email)); err != nil {
		return TokenPair{}, err
	}

	acct, err := e.accountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			err = ErrOTPNotFound
		}
		e.verificationFailed(ctx, "", err)
		return TokenPair{}, err
	}
	if acct.Status != account.StatusPendingVerification {
		e.verificationFailed(ctx, acct.ID, ErrOTPNotFound)
		return TokenPair{}, ErrOTPNotFound
	}

	if err := e.verifyCode(ctx, acct.ID, otp.PurposeRegistration, code); err != nil {
		e.verificationFailed(ctx, acct.ID, err)
		return TokenPair{}, err
	}

	opCtx, cancel := e.withTimeout(ctx)
	activated, err := e.accounts.Transition(opCtx, acct.ID, []account.Status{account.StatusPendingVerification}, account.StatusActive, false)
	cancel()
	if err != nil {
		err = accountErr(err)
		e.verificationFailed(ctx, acct.ID, err)
		return TokenPair{}, err
	}
	acct = activated

	pair, err := e.startSession(ctx, acct, deviceID)
	if err != nil {
		return TokenPair{}, err
	}

	e.metricInc(MetricVerificationSuccess)
	e.emitAudit(ctx, auditEventVerificationConfirm, true, acct.ID, pair.FamilyID, nil, nil)
	return pair, nil
}

func (e *Engine) verificationFailed(ctx context.Context, accountID string, err error) {
	e.metricInc(MetricVerificationFailure)
	e.emitAudit(ctx, auditEventVerificationFailure, false, accountID, "", err, nil)
}

// sendCode persists a fresh code for purpose and queues its delivery. Only
// persistence failures are reported.
func (e *Engine) sendCode(ctx context.Context, acct account.Account, purpose otp.Purpose) (otp.Issued, error) {
	opCtx, cancel := e.withTimeout(ctx)
	issued, err := e.otps.Issue(opCtx, acct.ID, purpose)
	cancel()
	if err != nil {
		e.logger.Error("otp issue failed", zap.String("account_id", acct.ID), zap.String("purpose", string(purpose)), zap.Error(err))
		return otp.Issued{}, unavailable(err)
	}

	kind := MessageVerifyEmail
	if purpose == otp.PurposePasswordReset {
		kind = MessagePasswordReset
	}
	e.notify(Message{
		Kind:      kind,
		To:        acct.Email,
		AccountID: acct.ID,
		Code:      issued.Code,
		Reference: issued.Reference,
		ExpiresAt: issued.ExpiresAt,
	})

	e.metricInc(MetricOTPIssued)
	e.emitAudit(ctx, auditEventVerificationSent, true, acct.ID, "", nil, func() map[string]string {
		return map[string]string{
			"purpose":   string(purpose),
			"reference": issued.Reference,
		}
	})
	return issued, nil
}

func (e *Engine) verifyCode(ctx context.Context, accountID string, purpose otp.Purpose, code string) error {
	opCtx, cancel := e.withTimeout(ctx)
	defer cancel()

	err := e.otps.Verify(opCtx, accountID, purpose, code)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, otp.ErrNotFound):
		return ErrOTPNotFound
	case errors.Is(err, otp.ErrExpired):
		return ErrOTPExpired
	case errors.Is(err, otp.ErrAttemptsExceeded):
		e.securityEvent("otp attempts exhausted", zap.String("account_id", accountID), zap.String("purpose", string(purpose)))
		return ErrOTPAttemptsExceeded
	case errors.Is(err, otp.ErrMismatch):
		return ErrOTPMismatch
	default:
		return unavailable(err)
	}
}

// otpIdentity keys the issue and verify limits per purpose so a reset request
// does not consume the registration budget.
func otpIdentity(purpose otp.Purpose, email string) string {
	return string(purpose) + ":" + email
}
