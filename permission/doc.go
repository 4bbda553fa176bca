// Package permission defines the account roles, the role hierarchy used by
// "at least" checks, the exclusive role sets used by Manager-only operations,
// and a 64-bit permission mask per role.
//
// # Hierarchy vs. membership
//
// AtLeast(Admin) admits Admin and Manager. OneOf(Manager) admits Manager only.
// Admin-management endpoints use OneOf because a higher role does not imply
// the right to manage peers of the lower role.
//
// This package is a pure in-memory data structure with no I/O.
package permission
