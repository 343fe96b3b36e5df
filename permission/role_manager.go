package permission

import (
	"errors"
	"sort"
	"sync"
)

// RoleManager holds the compiled mask of every role.
type RoleManager struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[string]Mask64
	frozen bool
}

func NewRoleManager(registry *Registry) *RoleManager {
	return &RoleManager{
		registry: registry,
		roles:    make(map[string]Mask64),
	}
}

// RegisterRole compiles permissionNames into the role's mask. Every name
// must already be registered.
func (rm *RoleManager) RegisterRole(roleName string, permissionNames ...string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return errors.New("role manager frozen")
	}
	if roleName == "" {
		return errors.New("role name empty")
	}
	if _, exists := rm.roles[roleName]; exists {
		return errors.New("role already registered")
	}

	var mask Mask64
	for _, perm := range permissionNames {
		bit, ok := rm.registry.Bit(perm)
		if !ok {
			return errors.New("permission not registered: " + perm)
		}
		mask.Set(bit)
	}

	rm.roles[roleName] = mask
	return nil
}

// Mask returns the compiled mask for roleName.
func (rm *RoleManager) Mask(roleName string) (Mask64, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	mask, ok := rm.roles[roleName]
	return mask, ok
}

// Allowed reports whether roleName holds permission. Unknown roles and
// unknown permissions are never allowed.
func (rm *RoleManager) Allowed(roleName, permission string) bool {
	bit, ok := rm.registry.Bit(permission)
	if !ok {
		return false
	}
	mask, ok := rm.Mask(roleName)
	return ok && mask.Has(bit)
}

// Permissions lists the permission names granted to roleName, sorted.
func (rm *RoleManager) Permissions(roleName string) []string {
	mask, ok := rm.Mask(roleName)
	if !ok {
		return nil
	}
	var out []string
	for bit := 0; bit < MaxPermissions; bit++ {
		if !mask.Has(bit) {
			continue
		}
		if name, ok := rm.registry.Name(bit); ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (rm *RoleManager) Freeze() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.frozen = true
}

func (rm *RoleManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.roles)
}
