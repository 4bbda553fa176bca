package permission

import (
	"errors"
	"testing"
)

func TestHierarchy(t *testing.T) {
	if !RoleManager.AtLeast(RoleAdmin) {
		t.Fatal("manager should be at least admin")
	}
	if RoleAdmin.AtLeast(RoleManager) {
		t.Fatal("admin should not be at least manager")
	}
	if Role("root").AtLeast(RoleUser) {
		t.Fatal("unknown role must not satisfy anything")
	}
}

func TestRequirementAdmits(t *testing.T) {
	cases := []struct {
		req  Requirement
		role Role
		ok   bool
	}{
		{AtLeast(RoleUser), RoleUser, true},
		{AtLeast(RoleUser), RoleManager, true},
		{AtLeast(RoleAdmin), RoleUser, false},
		{AtLeast(RoleAdmin), RoleManager, true},
		{OneOf(RoleManager), RoleAdmin, false},
		{OneOf(RoleManager), RoleManager, true},
		{OneOf(RoleUser, RoleAdmin), RoleManager, false},
		{OneOf(RoleUser, RoleAdmin), RoleUser, true},
	}
	for _, c := range cases {
		err := c.req.Admits(c.role)
		if c.ok && err != nil {
			t.Fatalf("%s should admit %s: %v", c.req, c.role, err)
		}
		if !c.ok && !errors.Is(err, ErrRoleInsufficient) {
			t.Fatalf("%s should reject %s with ErrRoleInsufficient, got %v", c.req, c.role, err)
		}
	}

	if err := (Requirement{}).Admits(RoleManager); !errors.Is(err, ErrEmptyRequirement) {
		t.Fatalf("empty requirement must deny, got %v", err)
	}
	if err := AtLeast(RoleUser).Admits("ghost"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("unknown role must deny, got %v", err)
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Admin ")
	if err != nil || r != RoleAdmin {
		t.Fatalf("ParseRole: %v %v", r, err)
	}
	if _, err := ParseRole("superuser"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestDefaultRoleTablePermissions(t *testing.T) {
	rm := NewDefaultRoleTable()

	if err := rm.Check(RoleAdmin, AtLeast(RoleAdmin).WithPermissions(PermAccountBlock)); err != nil {
		t.Fatalf("admin should block: %v", err)
	}
	if err := rm.Check(RoleAdmin, AtLeast(RoleAdmin).WithPermissions(PermAdminManage)); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("admin must not manage admins, got %v", err)
	}
	if err := rm.Check(RoleManager, OneOf(RoleManager).WithPermissions(PermAdminManage, PermAccountRole)); err != nil {
		t.Fatalf("manager should manage admins: %v", err)
	}
	if err := rm.Check(RoleUser, AtLeast(RoleUser).WithPermissions("unknown.perm")); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("unregistered permission must deny, got %v", err)
	}
	if err := rm.RegisterRole(RoleUser, nil); err == nil {
		t.Fatal("frozen role manager must reject registration")
	}
}

func TestMask64(t *testing.T) {
	var m Mask64
	m.Set(3)
	m.Set(63)
	m.Set(64)
	if !m.Has(3) || !m.Has(63) || m.Has(64) || m.Has(-1) {
		t.Fatalf("unexpected mask %b", m)
	}
	m.Clear(3)
	if m.Has(3) {
		t.Fatal("clear failed")
	}
	if !m.Covers(Mask64(1 << 63)) {
		t.Fatal("expected cover")
	}
}
