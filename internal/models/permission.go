package models

// Permission is a registry-owned permission definition. The grant engine only
// reads these rows; creation and naming rules belong to the registry.
type Permission struct {
	BaseModel

	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	Module      string `gorm:"index" json:"module"`
	Description string `json:"description"`

	Roles []Role `gorm:"many2many:role_permissions;" json:"roles,omitempty"`
}
