package permission

import (
	"errors"
	"fmt"
	"sync"
)

// RoleTable holds the permission mask granted to each role.
type RoleTable struct {
	registry *Registry

	mu     sync.RWMutex
	masks  map[Role]Mask64
	frozen bool
}

func NewRoleTable(registry *Registry) *RoleTable {
	return &RoleTable{registry: registry, masks: make(map[Role]Mask64)}
}

// NewDefaultRoleTable wires the built-in permissions. Each role inherits the
// mask of the role below it except the admin-management bit, which only
// Manager holds.
func NewDefaultRoleTable() *RoleTable {
	reg := NewRegistry()
	for _, name := range []string{
		PermSessionSelf, PermPasswordSelf, PermAccountDelete,
		PermAccountBlock, PermAccountDeleteAny,
		PermAccountRole, PermAdminManage,
	} {
		if _, err := reg.Register(name); err != nil {
			panic(err)
		}
	}
	reg.Freeze()

	rm := NewRoleTable(reg)
	user := []string{PermSessionSelf, PermPasswordSelf, PermAccountDelete}
	admin := append(append([]string(nil), user...), PermAccountBlock, PermAccountDeleteAny)
	manager := append(append([]string(nil), admin...), PermAccountRole, PermAdminManage)

	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(rm.RegisterRole(RoleUser, user))
	must(rm.RegisterRole(RoleAdmin, admin))
	must(rm.RegisterRole(RoleManager, manager))
	rm.Freeze()
	return rm
}

func (rm *RoleTable) RegisterRole(role Role, permissions []string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return errors.New("permission: role table frozen")
	}
	if !role.Valid() {
		return ErrUnknownRole
	}
	if _, ok := rm.masks[role]; ok {
		return fmt.Errorf("permission: role %q already registered", role)
	}

	var mask Mask64
	for _, name := range permissions {
		bit, ok := rm.registry.Bit(name)
		if !ok {
			return fmt.Errorf("permission: %q not registered", name)
		}
		mask.Set(bit)
	}
	rm.masks[role] = mask
	return nil
}

func (rm *RoleTable) Mask(role Role) (Mask64, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	m, ok := rm.masks[role]
	return m, ok
}

func (rm *RoleTable) Freeze() {
	rm.mu.Lock()
	rm.frozen = true
	rm.mu.Unlock()
}

// Check evaluates the role part of q and then every permission it names.
func (rm *RoleTable) Check(role Role, q Requirement) error {
	if err := q.Admits(role); err != nil {
		return err
	}
	if len(q.perms) == 0 {
		return nil
	}

	mask, ok := rm.Mask(role)
	if !ok {
		return ErrUnknownRole
	}
	for _, name := range q.perms {
		bit, ok := rm.registry.Bit(name)
		if !ok || !mask.Has(bit) {
			return fmt.Errorf("%w: %s", ErrPermissionDenied, name)
		}
	}
	return nil
}
