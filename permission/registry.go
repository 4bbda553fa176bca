package permission

import (
	"errors"
	"sync"
)

// Built-in permission names registered by NewDefaultRoleTable.
const (
	PermSessionSelf      = "session.self"
	PermPasswordSelf     = "password.self"
	PermAccountDelete    = "account.delete.self"
	PermAccountBlock     = "account.block"
	PermAccountDeleteAny = "account.delete.any"
	PermAccountRole      = "account.role.change"
	PermAdminManage      = "admin.manage"
)

// Registry maps permission names to bit positions in a Mask64.
type Registry struct {
	mu        sync.RWMutex
	nameToBit map[string]int
	frozen    bool
}

func NewRegistry() *Registry {
	return &Registry{nameToBit: make(map[string]int)}
}

// Register assigns the next free bit to name.
func (r *Registry) Register(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return -1, errors.New("permission: registry frozen")
	}
	if name == "" {
		return -1, errors.New("permission: name cannot be empty")
	}
	if _, ok := r.nameToBit[name]; ok {
		return -1, errors.New("permission: already registered: " + name)
	}
	bit := len(r.nameToBit)
	if bit >= 64 {
		return -1, errors.New("permission: registry full")
	}
	r.nameToBit[name] = bit
	return bit, nil
}

func (r *Registry) Bit(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[name]
	return bit, ok
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}
