package authcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/permission"
)

func TestForgotPasswordDoesNotEnumerate(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.seed(t, "pending@x.com", permission.RoleUser, account.StatusPendingVerification)
	env.seed(t, "blocked@x.com", permission.RoleUser, account.StatusBlocked)

	for _, email := range []string{"nobody@x.com", "pending@x.com", "blocked@x.com"} {
		if err := env.engine.ForgotPassword(ctx, email); err != nil {
			t.Fatalf("%s: expected nil, got %v", email, err)
		}
	}
	select {
	case msg := <-env.mail:
		t.Fatalf("no message expected, got %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPasswordResetRevokesEverything(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	_, pair := env.login(t, "reset@x.com", permission.RoleUser)

	if err := env.engine.ForgotPassword(ctx, "reset@x.com"); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	msg := env.nextMessage(t)
	if msg.Kind != MessagePasswordReset {
		t.Fatalf("unexpected message kind %q", msg.Kind)
	}

	if err := env.engine.ResetPassword(ctx, "reset@x.com", otherCode(msg.Code), "brand-new-pass"); !errors.Is(err, ErrOTPMismatch) {
		t.Fatalf("expected ErrOTPMismatch, got %v", err)
	}
	if err := env.engine.ResetPassword(ctx, "reset@x.com", msg.Code, "brand-new-pass"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if _, err := env.engine.VerifyAccessToken(ctx, pair.AccessToken); !errors.Is(err, ErrTokenStale) {
		t.Fatalf("expected ErrTokenStale, got %v", err)
	}
	if _, err := env.engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected revoked refresh token, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "reset@x.com", testPassword, ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must fail, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "reset@x.com", "brand-new-pass", ""); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if err := env.engine.ResetPassword(ctx, "reset@x.com", msg.Code, "another-pass"); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected code to be consumed, got %v", err)
	}
}

func TestResetPasswordUnknownEmail(t *testing.T) {
	env := newTestEnv(t, nil)
	err := env.engine.ResetPassword(context.Background(), "nobody@x.com", "123456", "brand-new-pass")
	if !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound, got %v", err)
	}
}

func TestRegistrationCodeCannotResetPassword(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.engine.Register(ctx, "mix@x.com", testPassword); err != nil {
		t.Fatalf("register: %v", err)
	}
	msg := env.nextMessage(t)
	if _, err := env.engine.VerifyRegistration(ctx, "mix@x.com", msg.Code, ""); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := env.engine.ResetPassword(ctx, "mix@x.com", msg.Code, "brand-new-pass"); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	p, pair := env.login(t, "cp@x.com", permission.RoleUser)

	if err := env.engine.ChangePassword(ctx, p, testPassword, testPassword); !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse, got %v", err)
	}
	if err := env.engine.ChangePassword(ctx, p, testPassword, "abc"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if err := env.engine.ChangePassword(ctx, p, "wrong-old", "brand-new-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricPasswordChangeInvalidOld]; got != 1 {
		t.Fatalf("expected one invalid old password, got %d", got)
	}

	if err := env.engine.ChangePassword(ctx, p, testPassword, "brand-new-pass"); err != nil {
		t.Fatalf("change: %v", err)
	}
	if _, err := env.engine.VerifyAccessToken(ctx, pair.AccessToken); !errors.Is(err, ErrTokenStale) {
		t.Fatalf("expected ErrTokenStale, got %v", err)
	}
	if _, err := env.engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected revoked refresh token, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "cp@x.com", "brand-new-pass", ""); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}
