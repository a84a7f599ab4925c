package models

import (
	"time"

	"gorm.io/datatypes"
)

// defaultGrantTableName follows the models-have-resource-and-permissions
// convention used by the persisted schema.
const defaultGrantTableName = "model_resource_grants"

var grantTableName = defaultGrantTableName

// SetGrantTableName overrides the grants table name. It must be called before
// the schema is migrated; the name is fixed thereafter.
func SetGrantTableName(name string) {
	if name == "" {
		grantTableName = defaultGrantTableName
		return
	}
	grantTableName = name
}

// GrantTableName reports the configured grants table name.
func GrantTableName() string {
	return grantTableName
}

// GrantRecord binds a principal to a resource together with either a permission
// or a role. Exactly one of PermissionID and RoleID is set per row; a principal
// may hold both a permission row and a role row for the same resource.
type GrantRecord struct {
	BaseModel

	PrincipalType string `gorm:"type:varchar(64);not null;index:idx_grant_principal,priority:1;uniqueIndex:uq_grant_permission,priority:1;uniqueIndex:uq_grant_role,priority:1" json:"principal_type"`
	PrincipalID   string `gorm:"type:varchar(64);not null;index:idx_grant_principal,priority:2;uniqueIndex:uq_grant_permission,priority:2;uniqueIndex:uq_grant_role,priority:2" json:"principal_id"`
	ResourceType  string `gorm:"type:varchar(64);not null;index:idx_grant_resource,priority:1;uniqueIndex:uq_grant_permission,priority:3;uniqueIndex:uq_grant_role,priority:3" json:"resource_type"`
	ResourceID    string `gorm:"type:varchar(64);not null;index:idx_grant_resource,priority:2;uniqueIndex:uq_grant_permission,priority:4;uniqueIndex:uq_grant_role,priority:4" json:"resource_id"`

	PermissionID *string `gorm:"type:uuid;index;uniqueIndex:uq_grant_permission,priority:5" json:"permission_id"`
	RoleID       *string `gorm:"type:uuid;index;uniqueIndex:uq_grant_role,priority:5" json:"role_id"`

	GrantedByID *string        `gorm:"type:uuid;index" json:"granted_by_id"`
	ExpiresAt   *time.Time     `json:"expires_at"`
	Metadata    datatypes.JSON `json:"metadata"`

	// Associations exist so the schema carries real foreign keys: deleting a
	// permission or role upstream removes dependent grant rows, deleting the
	// granting user nulls the attribution.
	Permission *Permission `gorm:"foreignKey:PermissionID;constraint:OnDelete:CASCADE" json:"-"`
	Role       *Role       `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE" json:"-"`
	GrantedBy  *User       `gorm:"foreignKey:GrantedByID;constraint:OnDelete:SET NULL" json:"-"`
}

// TableName overrides the default table name for GORM.
func (GrantRecord) TableName() string {
	return grantTableName
}

// IsPermissionGrant reports whether the row carries a direct permission.
func (g *GrantRecord) IsPermissionGrant() bool {
	return g.PermissionID != nil && *g.PermissionID != ""
}

// IsRoleGrant reports whether the row carries a role.
func (g *GrantRecord) IsRoleGrant() bool {
	return g.RoleID != nil && *g.RoleID != ""
}

// Expired reports whether the grant has lapsed relative to now.
func (g *GrantRecord) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !g.ExpiresAt.After(now)
}
