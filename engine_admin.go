package authcore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/permission"
)

// Account returns the caller's own account record.
func (e *Engine) Account(ctx context.Context, caller *Principal) (AccountView, error) {
	if caller == nil {
		return AccountView{}, ErrTokenInvalid
	}
	acct, err := e.accountByID(ctx, caller.AccountID)
	if err != nil {
		return AccountView{}, err
	}
	return viewOf(acct), nil
}

// BlockAccount moves an active target to Blocked, bumps its token version and
// revokes every refresh family it owns.
func (e *Engine) BlockAccount(ctx context.Context, caller *Principal, targetID string) (AccountView, error) {
	target, err := e.manageTarget(ctx, caller, targetID, permission.PermAccountBlock)
	if err != nil {
		return AccountView{}, err
	}
	if caller.AccountID == target.ID {
		return AccountView{}, ErrSelfAction
	}

	blocked, err := e.transition(ctx, target.ID, []account.Status{account.StatusActive}, account.StatusBlocked)
	if err != nil {
		return AccountView{}, err
	}
	if err := e.revokeAccountSessions(ctx, blocked.ID); err != nil {
		e.securityEvent("account blocked but sessions not revoked", zap.String("account_id", blocked.ID), zap.Error(err))
		return AccountView{}, err
	}

	e.metricInc(MetricAccountBlocked)
	e.auditStatusChange(ctx, caller, target, blocked)
	return viewOf(blocked), nil
}

// UnblockAccount moves a blocked target back to Active. The version bump makes
// tokens minted before the block stay dead.
func (e *Engine) UnblockAccount(ctx context.Context, caller *Principal, targetID string) (AccountView, error) {
	target, err := e.manageTarget(ctx, caller, targetID, permission.PermAccountBlock)
	if err != nil {
		return AccountView{}, err
	}
	if caller.AccountID == target.ID {
		return AccountView{}, ErrSelfAction
	}

	active, err := e.transition(ctx, target.ID, []account.Status{account.StatusBlocked}, account.StatusActive)
	if err != nil {
		return AccountView{}, err
	}

	e.metricInc(MetricAccountUnblocked)
	e.auditStatusChange(ctx, caller, target, active)
	return viewOf(active), nil
}

// ChangeRole sets the target's role. Only a Manager may change roles and
// nobody may change their own. Setting the current role is a no-op.
func (e *Engine) ChangeRole(ctx context.Context, caller *Principal, targetID string, role permission.Role) (AccountView, error) {
	if caller == nil {
		return AccountView{}, ErrTokenInvalid
	}
	if !role.Valid() || !validAccountID(targetID) {
		return AccountView{}, ErrInvalidInput
	}
	if err := e.requireCaller(ctx, caller, permission.OneOf(permission.RoleManager).WithPermissions(permission.PermAccountRole)); err != nil {
		return AccountView{}, err
	}
	if caller.AccountID == targetID {
		return AccountView{}, ErrSelfAction
	}

	target, err := e.accountByID(ctx, targetID)
	if err != nil {
		return AccountView{}, err
	}
	if target.Status == account.StatusDeleted {
		return AccountView{}, ErrAccountNotFound
	}
	if target.Role == role {
		return viewOf(target), nil
	}

	opCtx, cancel := e.withTimeout(ctx)
	updated, err := e.accounts.UpdateRole(opCtx, target.ID, role)
	cancel()
	if err != nil {
		return AccountView{}, accountErr(err)
	}

	e.metricInc(MetricRoleChanged)
	e.emitAudit(ctx, auditEventAccountRoleChange, true, updated.ID, "", nil, func() map[string]string {
		return map[string]string{
			"actor_id": caller.AccountID,
			"from":     string(target.Role),
			"to":       string(updated.Role),
		}
	})
	return viewOf(updated), nil
}

// DeleteAccount soft-deletes targetID. A caller may always delete their own
// account; deleting someone else follows the block rules. The email becomes
// free for a new registration.
func (e *Engine) DeleteAccount(ctx context.Context, caller *Principal, targetID string) error {
	if caller == nil {
		return ErrTokenInvalid
	}

	var target account.Account
	var err error
	if caller.AccountID == targetID {
		if err := e.requireCaller(ctx, caller, permission.AtLeast(permission.RoleUser).WithPermissions(permission.PermAccountDelete)); err != nil {
			return err
		}
		target, err = e.accountByID(ctx, targetID)
	} else {
		target, err = e.manageTarget(ctx, caller, targetID, permission.PermAccountDeleteAny)
	}
	if err != nil {
		return err
	}

	deleted, err := e.transition(ctx, target.ID, account.LiveStatuses(), account.StatusDeleted)
	if err != nil {
		return err
	}
	if err := e.revokeAccountSessions(ctx, deleted.ID); err != nil {
		e.securityEvent("account deleted but sessions not revoked", zap.String("account_id", deleted.ID), zap.Error(err))
		return err
	}

	e.metricInc(MetricAccountDeleted)
	e.emitAudit(ctx, auditEventAccountDeleted, true, deleted.ID, "", nil, func() map[string]string {
		return map[string]string{
			"actor_id": caller.AccountID,
			"from":     string(target.Status),
		}
	})
	return nil
}

// manageTarget loads targetID and checks the caller may act on it. Users are
// managed by Admins and above; Admins and Managers only by a Manager.
func (e *Engine) manageTarget(ctx context.Context, caller *Principal, targetID, perm string) (account.Account, error) {
	if caller == nil {
		return account.Account{}, ErrTokenInvalid
	}
	if !validAccountID(targetID) {
		return account.Account{}, ErrInvalidInput
	}
	// Fail fast before touching the store: nobody below Admin manages anyone.
	if err := e.requireCaller(ctx, caller, permission.AtLeast(permission.RoleAdmin).WithPermissions(perm)); err != nil {
		return account.Account{}, err
	}

	target, err := e.accountByID(ctx, targetID)
	if err != nil {
		return account.Account{}, err
	}
	if target.Status == account.StatusDeleted {
		return account.Account{}, ErrAccountNotFound
	}

	if target.Role != permission.RoleUser && target.ID != caller.AccountID {
		req := permission.OneOf(permission.RoleManager).WithPermissions(perm, permission.PermAdminManage)
		if err := e.requireCaller(ctx, caller, req); err != nil {
			return account.Account{}, err
		}
	}
	return target, nil
}

// validAccountID rejects ids the store could never have issued, so a
// malformed path parameter never reaches the database.
func validAccountID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (e *Engine) requireCaller(ctx context.Context, caller *Principal, req permission.Requirement) error {
	if err := e.roles.Check(caller.Role, req); err != nil {
		e.metricInc(MetricAuthorizeDenied)
		e.emitAudit(ctx, auditEventAuthorizeDenied, false, caller.AccountID, caller.FamilyID, ErrForbidden, func() map[string]string {
			return map[string]string{"requirement": req.String(), "role": string(caller.Role)}
		})
		return fmt.Errorf("%w: %v", ErrForbidden, err)
	}
	return nil
}

func (e *Engine) transition(ctx context.Context, id string, from []account.Status, to account.Status) (account.Account, error) {
	opCtx, cancel := e.withTimeout(ctx)
	defer cancel()

	acct, err := e.accounts.Transition(opCtx, id, from, to, true)
	if err != nil {
		return account.Account{}, accountErr(err)
	}
	return acct, nil
}

func (e *Engine) auditStatusChange(ctx context.Context, caller *Principal, before, after account.Account) {
	e.emitAudit(ctx, auditEventAccountStatusChange, true, after.ID, "", nil, func() map[string]string {
		return map[string]string{
			"actor_id": caller.AccountID,
			"from":     string(before.Status),
			"to":       string(after.Status),
		}
	})
}
