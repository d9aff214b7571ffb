package models

// Tier is the privilege level a request resolves to.
type Tier string

const (
	TierMaintenance    Tier = "maintenance"
	TierMaster         Tier = "master"
	TierReadOnlyMaster Tier = "read_only_master"
	TierUser           Tier = "user"
	TierAnonymous      Tier = "anonymous"
)

// User is the identity bound to a session token or a verified bearer token.
type User struct {
	ID           string `json:"id"`
	SessionToken string `json:"-"`
}

// AuthContext is the resolved caller. It is never mutated after construction.
type AuthContext struct {
	Tier           Tier   `json:"tier"`
	InstallationID string `json:"installation_id,omitempty"`
	User           *User  `json:"user,omitempty"`
	IsReadOnly     bool   `json:"is_read_only"`
}

// IsMaster reports whether the caller holds either master key.
func (a *AuthContext) IsMaster() bool {
	return a != nil && (a.Tier == TierMaster || a.Tier == TierReadOnlyMaster)
}

func (a *AuthContext) IsMaintenance() bool {
	return a != nil && a.Tier == TierMaintenance
}

// UserID returns the authenticated user id, or "" for non-user tiers.
func (a *AuthContext) UserID() string {
	if a == nil || a.User == nil {
		return ""
	}
	return a.User.ID
}
