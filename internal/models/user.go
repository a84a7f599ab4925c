package models

// User is a minimal actor record. Identity management proper lives outside the
// engine; this table exists as the foreign-key target for grant attribution and
// as a stock principal type.
type User struct {
	BaseModel

	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	IsActive bool   `gorm:"default:true" json:"is_active"`
}

// PrincipalType identifies users in grant rows.
func (u *User) PrincipalType() string { return "user" }

// PrincipalID returns the user's identifier for grant rows.
func (u *User) PrincipalID() string { return u.ID }
