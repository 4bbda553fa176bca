package authcore

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/permission"
)

func TestBlockAndUnblock(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	admin, _ := env.login(t, "admin@x.com", permission.RoleAdmin)
	user, userPair := env.login(t, "user@x.com", permission.RoleUser)

	view, err := env.engine.BlockAccount(ctx, admin, user.AccountID)
	if err != nil {
		t.Fatalf("block: %v", err)
	}
	if view.Status != account.StatusBlocked {
		t.Fatalf("expected blocked, got %s", view.Status)
	}

	_, err = env.engine.VerifyAccessToken(ctx, userPair.AccessToken)
	if !errors.Is(err, ErrAccountBlocked) || KindOf(err) != KindForbidden {
		t.Fatalf("expected ErrAccountBlocked, got %v", err)
	}
	if _, err := env.engine.Refresh(ctx, userPair.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected revoked family, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "user@x.com", testPassword, ""); !errors.Is(err, ErrAccountBlocked) {
		t.Fatalf("expected blocked login, got %v", err)
	}
	if _, err := env.engine.BlockAccount(ctx, admin, user.AccountID); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict on double block, got %v", err)
	}

	view, err = env.engine.UnblockAccount(ctx, admin, user.AccountID)
	if err != nil {
		t.Fatalf("unblock: %v", err)
	}
	if view.Status != account.StatusActive {
		t.Fatalf("expected active, got %s", view.Status)
	}
	if _, err := env.engine.VerifyAccessToken(ctx, userPair.AccessToken); !errors.Is(err, ErrTokenStale) {
		t.Fatalf("pre-block token must stay dead, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "user@x.com", testPassword, ""); err != nil {
		t.Fatalf("login after unblock: %v", err)
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricAccountBlocked] != 1 || snap.Counters[MetricAccountUnblocked] != 1 {
		t.Fatalf("unexpected counters %+v", snap.Counters)
	}
}

func TestManagementRules(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	manager, _ := env.login(t, "manager@x.com", permission.RoleManager)
	admin, _ := env.login(t, "admin@x.com", permission.RoleAdmin)
	other, _ := env.login(t, "admin2@x.com", permission.RoleAdmin)
	user, _ := env.login(t, "user@x.com", permission.RoleUser)
	peer, _ := env.login(t, "peer@x.com", permission.RoleUser)

	cases := []struct {
		name   string
		caller *Principal
		target string
		want   error
	}{
		{"user cannot block", user, peer.AccountID, ErrForbidden},
		{"admin cannot block admin", admin, other.AccountID, ErrForbidden},
		{"admin cannot block manager", admin, manager.AccountID, ErrForbidden},
		{"admin cannot block self", admin, admin.AccountID, ErrSelfAction},
		{"manager cannot block self", manager, manager.AccountID, ErrSelfAction},
		{"unknown target", admin, uuid.NewString(), ErrAccountNotFound},
		{"malformed target", admin, "not-a-uuid", ErrInvalidInput},
		{"empty target", admin, "", ErrInvalidInput},
		{"manager blocks admin", manager, other.AccountID, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.engine.BlockAccount(ctx, tc.caller, tc.target)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected success, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if got := env.engine.MetricsSnapshot().Counters[MetricAuthorizeDenied]; got < 3 {
		t.Fatalf("expected denials to be counted, got %d", got)
	}
}

func TestChangeRole(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	manager, _ := env.login(t, "manager@x.com", permission.RoleManager)
	admin, _ := env.login(t, "admin@x.com", permission.RoleAdmin)
	user, userPair := env.login(t, "user@x.com", permission.RoleUser)

	if _, err := env.engine.ChangeRole(ctx, admin, user.AccountID, permission.RoleAdmin); !errors.Is(err, ErrForbidden) {
		t.Fatalf("admin must not change roles, got %v", err)
	}
	if _, err := env.engine.ChangeRole(ctx, manager, manager.AccountID, permission.RoleUser); !errors.Is(err, ErrSelfAction) {
		t.Fatalf("expected ErrSelfAction, got %v", err)
	}
	if _, err := env.engine.ChangeRole(ctx, manager, "not-a-uuid", permission.RoleAdmin); KindOf(err) != KindValidation {
		t.Fatalf("expected validation error for malformed id, got %v", err)
	}
	if _, err := env.engine.ChangeRole(ctx, manager, user.AccountID, permission.Role("root")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	view, err := env.engine.ChangeRole(ctx, manager, user.AccountID, permission.RoleUser)
	if err != nil || view.Role != permission.RoleUser {
		t.Fatalf("same role should be a no-op: %+v %v", view, err)
	}
	if _, err := env.engine.VerifyAccessToken(ctx, userPair.AccessToken); err != nil {
		t.Fatalf("no-op role change must not invalidate tokens: %v", err)
	}

	view, err = env.engine.ChangeRole(ctx, manager, user.AccountID, permission.RoleAdmin)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if view.Role != permission.RoleAdmin {
		t.Fatalf("expected admin, got %s", view.Role)
	}
	if _, err := env.engine.VerifyAccessToken(ctx, userPair.AccessToken); !errors.Is(err, ErrTokenStale) {
		t.Fatalf("expected ErrTokenStale after role change, got %v", err)
	}

	pair, err := env.engine.Login(ctx, "user@x.com", testPassword, "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	p, err := env.engine.Authorize(ctx, pair.AccessToken, permission.AtLeast(permission.RoleAdmin))
	if err != nil {
		t.Fatalf("promoted account should pass admin check: %v", err)
	}
	if p.Role != permission.RoleAdmin {
		t.Fatalf("unexpected role %s", p.Role)
	}
}

func TestDeleteAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	manager, _ := env.login(t, "manager@x.com", permission.RoleManager)
	admin, _ := env.login(t, "admin@x.com", permission.RoleAdmin)
	self, selfPair := env.login(t, "self@x.com", permission.RoleUser)
	victim, _ := env.login(t, "victim@x.com", permission.RoleUser)

	if err := env.engine.DeleteAccount(ctx, admin, manager.AccountID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("admin must not delete a manager, got %v", err)
	}
	if err := env.engine.DeleteAccount(ctx, self, victim.AccountID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("user must not delete others, got %v", err)
	}

	if err := env.engine.DeleteAccount(ctx, self, self.AccountID); err != nil {
		t.Fatalf("self delete: %v", err)
	}
	if _, err := env.engine.VerifyAccessToken(ctx, selfPair.AccessToken); !errors.Is(err, ErrAccountDeleted) {
		t.Fatalf("expected ErrAccountDeleted, got %v", err)
	}
	if _, err := env.engine.Refresh(ctx, selfPair.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected revoked family, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "self@x.com", testPassword, ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("deleted account must look unknown, got %v", err)
	}
	if _, err := env.engine.Register(ctx, "self@x.com", testPassword); err != nil {
		t.Fatalf("email must be free after delete: %v", err)
	}

	if err := env.engine.DeleteAccount(ctx, admin, victim.AccountID); err != nil {
		t.Fatalf("admin deletes user: %v", err)
	}
	if err := env.engine.DeleteAccount(ctx, admin, victim.AccountID); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected deleted target to be gone, got %v", err)
	}
}

func TestAccountView(t *testing.T) {
	env := newTestEnv(t, nil)
	p, _ := env.login(t, "me@x.com", permission.RoleUser)

	view, err := env.engine.Account(context.Background(), p)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if view.ID != p.AccountID || view.Email != "me@x.com" || view.Status != account.StatusActive {
		t.Fatalf("unexpected view %+v", view)
	}
}
