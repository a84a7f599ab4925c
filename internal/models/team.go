package models

// Team is a group principal able to hold grants.
type Team struct {
	BaseModel

	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	Description string `json:"description"`
}

// PrincipalType identifies teams in grant rows.
func (t *Team) PrincipalType() string { return "team" }

// PrincipalID returns the team's identifier for grant rows.
func (t *Team) PrincipalID() string { return t.ID }
