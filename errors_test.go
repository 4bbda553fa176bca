package authcore

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{nil, KindInternal},
		{errors.New("boom"), KindInternal},
		{ErrInvalidInput, KindValidation},
		{fmt.Errorf("%w: too short", ErrPasswordPolicy), KindValidation},
		{ErrOTPMismatch, KindValidation},
		{ErrTokenInvalid, KindUnauthenticated},
		{ErrTokenExpired, KindUnauthenticated},
		{ErrRefreshReuse, KindUnauthenticated},
		{ErrInvalidCredentials, KindForbidden},
		{ErrAccountBlocked, KindForbidden},
		{ErrTokenStale, KindForbidden},
		{fmt.Errorf("%w: role", ErrForbidden), KindForbidden},
		{ErrAccountNotFound, KindNotFound},
		{ErrOTPExpired, KindNotFound},
		{ErrAccountExists, KindConflict},
		{ErrStateConflict, KindConflict},
		{&RateLimitError{Scope: "login", RetryAfter: time.Second}, KindRateLimited},
		{ErrOTPAttemptsExceeded, KindRateLimited},
		{unavailable(errors.New("i/o timeout")), KindUnavailable},
		{ErrEngineNotReady, KindInternal},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Errorf("KindOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestRateLimitErrorMatchesSentinel(t *testing.T) {
	var err error = fmt.Errorf("wrapped: %w", &RateLimitError{Scope: "otp-issue", RetryAfter: 30 * time.Second})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatal("expected errors.Is to match ErrRateLimited")
	}
	var rl *RateLimitError
	if !errors.As(err, &rl) || rl.RetryAfter != 30*time.Second {
		t.Fatalf("unexpected As result %+v", rl)
	}
}
