package permission

import (
	"errors"
	"strings"
)

// Role is stored lower-case in the account record and in access tokens.
type Role string

const (
	RoleUser    Role = "user"
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
)

var (
	ErrUnknownRole      = errors.New("permission: unknown role")
	ErrRoleInsufficient = errors.New("permission: role insufficient")
	ErrPermissionDenied = errors.New("permission: permission denied")
	ErrEmptyRequirement = errors.New("permission: empty requirement")
)

// Rank orders roles for hierarchical checks. Unknown roles rank 0 and never
// satisfy a requirement.
func (r Role) Rank() int {
	switch r {
	case RoleUser:
		return 1
	case RoleAdmin:
		return 2
	case RoleManager:
		return 3
	default:
		return 0
	}
}

func (r Role) Valid() bool { return r.Rank() > 0 }

func (r Role) String() string { return string(r) }

// AtLeast reports r >= min in the hierarchy.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && min.Valid() && r.Rank() >= min.Rank()
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", ErrUnknownRole
	}
	return r, nil
}

// Requirement describes who may perform an operation. Exactly one of the
// hierarchical minimum or the exclusive role set is set.
type Requirement struct {
	min   Role
	set   []Role
	perms []string
}

// AtLeast admits min and every role ranked above it.
func AtLeast(min Role) Requirement {
	return Requirement{min: min}
}

// OneOf admits exactly the listed roles.
func OneOf(roles ...Role) Requirement {
	return Requirement{set: append([]Role(nil), roles...)}
}

// WithPermissions additionally requires every named permission bit.
func (q Requirement) WithPermissions(names ...string) Requirement {
	q.perms = append(append([]string(nil), q.perms...), names...)
	return q
}

func (q Requirement) Permissions() []string { return q.perms }

// Admits checks the role part of the requirement only.
func (q Requirement) Admits(r Role) error {
	if !r.Valid() {
		return ErrUnknownRole
	}
	switch {
	case q.min != "":
		if !r.AtLeast(q.min) {
			return ErrRoleInsufficient
		}
		return nil
	case len(q.set) > 0:
		for _, allowed := range q.set {
			if allowed == r {
				return nil
			}
		}
		return ErrRoleInsufficient
	default:
		return ErrEmptyRequirement
	}
}

func (q Requirement) String() string {
	if q.min != "" {
		return ">=" + string(q.min)
	}
	parts := make([]string, len(q.set))
	for i, r := range q.set {
		parts[i] = string(r)
	}
	return "{" + strings.Join(parts, ",") + "}"
}
