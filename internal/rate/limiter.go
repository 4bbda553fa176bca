package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Scope string

const (
	ScopeOTPIssue  Scope = "otp-issue"
	ScopeLogin     Scope = "login-attempt"
	ScopeLoginIP   Scope = "login-ip"
	ScopeOTPVerify Scope = "otp-verify-attempt"
	ScopeRefresh   Scope = "refresh"
)

// Policy is a fixed window. Limit 0 disables the scope.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Decision reports the outcome of Allow. RetryAfter is the time left in the
// current window when the call was rejected.
type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int
	RetryAfter time.Duration
}

// allowLua: KEYS[1] counter key, ARGV[1] window ms.
// Returns {count, pttl}.
var allowLua = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

// Limiter enforces fixed-window counters in Redis, one policy per scope.
type Limiter struct {
	redis    redis.UniversalClient
	prefix   string
	policies map[Scope]Policy
}

// New copies and checks policies. Allow rejects scopes absent from policies.
func New(client redis.UniversalClient, prefix string, policies map[Scope]Policy) (*Limiter, error) {
	if prefix == "" {
		prefix = "rl"
	}
	cp := make(map[Scope]Policy, len(policies))
	for scope, p := range policies {
		if p.Limit < 0 {
			return nil, fmt.Errorf("rate: %s limit must be >= 0", scope)
		}
		if p.Limit > 0 && p.Window <= 0 {
			return nil, fmt.Errorf("rate: %s window must be > 0", scope)
		}
		cp[scope] = p
	}
	return &Limiter{redis: client, prefix: prefix, policies: cp}, nil
}

func (l *Limiter) key(scope Scope, identity string) string {
	return l.prefix + ":" + string(scope) + ":" + identity
}

// Allow counts one attempt against (scope, identity). Store errors are
// returned as ErrRedisUnavailable and must be treated as a denial.
func (l *Limiter) Allow(ctx context.Context, scope Scope, identity string) (Decision, error) {
	p, ok := l.policies[scope]
	if !ok {
		return Decision{}, ErrUnknownScope
	}
	if p.Limit == 0 {
		return Decision{Allowed: true}, nil
	}

	res, err := allowLua.Run(ctx, l.redis, []string{l.key(scope, identity)}, p.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("%w: unexpected lua result", ErrRedisUnavailable)
	}

	d := Decision{Count: res[0], Limit: p.Limit, Allowed: res[0] <= int64(p.Limit)}
	if !d.Allowed {
		d.RetryAfter = time.Duration(res[1]) * time.Millisecond
	}
	return d, nil
}

// Reset clears the counter, e.g. after a successful login.
func (l *Limiter) Reset(ctx context.Context, scope Scope, identity string) error {
	if err := l.redis.Del(ctx, l.key(scope, identity)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Count returns the attempts recorded in the current window. Missing keys
// count as zero.
func (l *Limiter) Count(ctx context.Context, scope Scope, identity string) (int64, error) {
	n, err := l.redis.Get(ctx, l.key(scope, identity)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}
