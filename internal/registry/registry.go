package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/scopegrant/internal/models"
)

// PermissionRef identifies a permission definition held by the registry.
type PermissionRef struct {
	ID   string
	Name string
}

// RoleRef identifies a role definition held by the registry.
type RoleRef struct {
	ID   string
	Name string
}

// Registry is the read-only lookup surface the grant engine consumes. The
// definitions themselves (naming rules, global grants, lifecycle) are owned
// elsewhere; the engine only asks for references by name and for role
// membership of a permission.
//
// Lookups return (nil, nil) for unknown names. An error indicates the
// registry backend failed, never that a name is missing.
type Registry interface {
	LookupPermissionByName(ctx context.Context, name string) (*PermissionRef, error)
	LookupRoleByName(ctx context.Context, name string) (*RoleRef, error)
	RoleHasPermission(ctx context.Context, roleID, permissionID string) (bool, error)
}

// GormRegistry reads permission and role definitions from the shared database.
// Keeping the registry tables in the same database is what lets the grants
// table carry real cascade-delete foreign keys against them.
type GormRegistry struct {
	db *gorm.DB
}

// NewGormRegistry constructs a registry adapter over the provided database.
func NewGormRegistry(db *gorm.DB) (*GormRegistry, error) {
	if db == nil {
		return nil, errors.New("registry: db is required")
	}
	return &GormRegistry{db: db}, nil
}

// LookupPermissionByName resolves a permission name to its reference.
func (r *GormRegistry) LookupPermissionByName(ctx context.Context, name string) (*PermissionRef, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	var perm models.Permission
	err := r.db.WithContext(ctx).Select("id", "name").First(&perm, "name = ?", name).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("registry: lookup permission %q: %w", name, err)
	}

	return &PermissionRef{ID: perm.ID, Name: perm.Name}, nil
}

// LookupRoleByName resolves a role name to its reference.
func (r *GormRegistry) LookupRoleByName(ctx context.Context, name string) (*RoleRef, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	var role models.Role
	err := r.db.WithContext(ctx).Select("id", "name").First(&role, "name = ?", name).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("registry: lookup role %q: %w", name, err)
	}

	return &RoleRef{ID: role.ID, Name: role.Name}, nil
}

// RoleHasPermission reports whether the role's permission set contains the
// permission. Unknown role or permission identifiers simply answer false.
func (r *GormRegistry) RoleHasPermission(ctx context.Context, roleID, permissionID string) (bool, error) {
	roleID = strings.TrimSpace(roleID)
	permissionID = strings.TrimSpace(permissionID)
	if roleID == "" || permissionID == "" {
		return false, nil
	}

	var count int64
	err := r.db.WithContext(ctx).
		Table("role_permissions").
		Where("role_id = ? AND permission_id = ?", roleID, permissionID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("registry: role permission membership: %w", err)
	}

	return count > 0, nil
}
