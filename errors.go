package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidInput is returned for malformed requests before any store is touched.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPasswordPolicy wraps the password package reason.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrInvalidCredentials covers unknown email, deleted account and wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountUnverified  = errors.New("account unverified")
	ErrAccountBlocked     = errors.New("account blocked")
	ErrAccountDeleted     = errors.New("account deleted")
	ErrAccountNotFound    = errors.New("account not found")
	// ErrAccountExists is returned when the email belongs to a verified account.
	ErrAccountExists = errors.New("account already exists")
	// ErrStateConflict is returned when a concurrent change moved the account first.
	ErrStateConflict = errors.New("account state changed concurrently")

	ErrOTPNotFound         = errors.New("verification code not found")
	ErrOTPExpired          = errors.New("verification code expired")
	ErrOTPMismatch         = errors.New("verification code mismatch")
	ErrOTPAttemptsExceeded = errors.New("verification attempts exceeded")

	ErrRateLimited = errors.New("rate limited")

	ErrTokenInvalid = errors.New("invalid access token")
	ErrTokenExpired = errors.New("access token expired")
	// ErrTokenStale is returned when the token version no longer matches the account.
	ErrTokenStale     = errors.New("access token revoked")
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshReuse means a rotated refresh token was presented again and its
	// whole family has been revoked.
	ErrRefreshReuse = errors.New("refresh token reuse detected")

	ErrForbidden     = errors.New("forbidden")
	ErrSelfAction    = errors.New("operation not allowed on own account")
	ErrPasswordReuse = errors.New("new password must differ from current password")

	// ErrStoreUnavailable wraps every store failure; callers fail closed on it.
	ErrStoreUnavailable = errors.New("backend unavailable")
	ErrEngineNotReady   = errors.New("engine not initialized")
)

// RateLimitError is returned when a limiter scope rejected the request.
// errors.Is(err, ErrRateLimited) holds.
type RateLimitError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: %s, retry after %s", ErrRateLimited, e.Scope, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// Kind classifies an engine error for transports.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindRateLimited
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// KindOf maps err onto the taxonomy. A nil error is KindInternal; unknown
// errors are KindInternal too so transports never report them as success.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrPasswordPolicy),
		errors.Is(err, ErrOTPMismatch), errors.Is(err, ErrPasswordReuse):
		return KindValidation
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrRefreshInvalid), errors.Is(err, ErrRefreshReuse):
		return KindUnauthenticated
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrAccountUnverified),
		errors.Is(err, ErrAccountBlocked), errors.Is(err, ErrAccountDeleted),
		errors.Is(err, ErrTokenStale), errors.Is(err, ErrForbidden),
		errors.Is(err, ErrSelfAction):
		return KindForbidden
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrOTPNotFound),
		errors.Is(err, ErrOTPExpired):
		return KindNotFound
	case errors.Is(err, ErrAccountExists), errors.Is(err, ErrStateConflict):
		return KindConflict
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrOTPAttemptsExceeded):
		return KindRateLimited
	case errors.Is(err, ErrStoreUnavailable):
		return KindUnavailable
	default:
		return KindInternal
	}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
