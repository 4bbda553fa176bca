package authcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/permission"
)

func TestAuthorizeRequirements(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	_, userPair := env.login(t, "user@x.com", permission.RoleUser)
	_, adminPair := env.login(t, "admin@x.com", permission.RoleAdmin)
	_, managerPair := env.login(t, "manager@x.com", permission.RoleManager)

	adminOnly := permission.AtLeast(permission.RoleAdmin)
	managerSet := permission.OneOf(permission.RoleManager)
	blockPerm := permission.AtLeast(permission.RoleUser).WithPermissions(permission.PermAccountBlock)

	cases := []struct {
		name  string
		token string
		req   permission.Requirement
		allow bool
	}{
		{"user below admin", userPair.AccessToken, adminOnly, false},
		{"admin meets admin", adminPair.AccessToken, adminOnly, true},
		{"manager inherits admin", managerPair.AccessToken, adminOnly, true},
		{"admin outside manager set", adminPair.AccessToken, managerSet, false},
		{"manager in manager set", managerPair.AccessToken, managerSet, true},
		{"user lacks block bit", userPair.AccessToken, blockPerm, false},
		{"admin holds block bit", adminPair.AccessToken, blockPerm, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := env.engine.Authorize(ctx, tc.token, tc.req)
			if tc.allow {
				if err != nil {
					t.Fatalf("expected allow, got %v", err)
				}
				if p == nil || p.Permissions == 0 {
					t.Fatalf("expected populated principal, got %+v", p)
				}
				return
			}
			if !errors.Is(err, ErrForbidden) || KindOf(err) != KindForbidden {
				t.Fatalf("expected ErrForbidden, got %v", err)
			}
		})
	}
}

func TestAuthorizeTokenFailures(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	p, _ := env.login(t, "t@x.com", permission.RoleUser)

	for _, token := range []string{"", "   ", "a.b.c", "not-a-jwt"} {
		_, err := env.engine.VerifyAccessToken(ctx, token)
		if !errors.Is(err, ErrTokenInvalid) || KindOf(err) != KindUnauthenticated {
			t.Fatalf("token %q: expected ErrTokenInvalid, got %v", token, err)
		}
	}

	acct, err := env.accounts.GetByID(ctx, p.AccountID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	live := env.engine.tokens
	env.engine.tokens = live.WithClock(func() time.Time { return time.Now().Add(-time.Hour) })
	expired, _, err := env.engine.issueAccess(acct, "")
	env.engine.tokens = live
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := env.engine.VerifyAccessToken(ctx, expired); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	ghost := acct
	ghost.ID = "ghost"
	token, _, err := env.engine.issueAccess(ghost, "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := env.engine.VerifyAccessToken(ctx, token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for unknown subject, got %v", err)
	}
}

func TestVersionBumpInvalidatesAccessToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	p, pair := env.login(t, "v@x.com", permission.RoleUser)

	if _, err := env.engine.VerifyAccessToken(ctx, pair.AccessToken); err != nil {
		t.Fatalf("verify: %v", err)
	}
	acct, _ := env.accounts.GetByID(ctx, p.AccountID)
	if _, err := env.accounts.UpdatePassword(ctx, p.AccountID, []account.Status{account.StatusActive}, acct.PasswordHash); err != nil {
		t.Fatalf("bump: %v", err)
	}

	_, err := env.engine.VerifyAccessToken(ctx, pair.AccessToken)
	if !errors.Is(err, ErrTokenStale) || KindOf(err) != KindForbidden {
		t.Fatalf("expected ErrTokenStale, got %v", err)
	}
}

func TestAuthorizeRecordsLatency(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Metrics.EnableLatencyHistograms = true })
	_, pair := env.login(t, "lat@x.com", permission.RoleUser)

	if _, err := env.engine.VerifyAccessToken(context.Background(), pair.AccessToken); err != nil {
		t.Fatalf("verify: %v", err)
	}
	snap := env.engine.MetricsSnapshot()
	var total uint64
	for _, n := range snap.Histograms[MetricAuthorizeLatency] {
		total += n
	}
	// one call from the login helper and one here
	if total != 2 {
		t.Fatalf("expected 2 observations, got %d", total)
	}
	if snap.Counters[MetricAuthorizeSuccess] != 2 {
		t.Fatalf("expected 2 successes, got %d", snap.Counters[MetricAuthorizeSuccess])
	}
}
