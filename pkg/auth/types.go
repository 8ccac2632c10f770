package auth

import "time"

// Actor is the resolved identity of a caller: a stable identifier, the
// administrator flag, and the set of groups the actor durably belongs to.
// Ephemeral memberships are resolved separately at authorization time.
type Actor struct {
	ID              string    `json:"id"`
	Name            string    `json:"name,omitempty"`
	IsAdministrator bool      `json:"isAdministrator"`
	Groups          []string  `json:"groups,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// InGroup reports whether the actor durably belongs to the given group.
func (a *Actor) InGroup(groupID string) bool {
	for _, g := range a.Groups {
		if g == groupID {
			return true
		}
	}
	return false
}

// APIToken represents an API token record. The plaintext token is returned
// once at creation and only its SHA-256 hash is stored.
type APIToken struct {
	ID          int64      `json:"id"`
	ActorID     string     `json:"actorId"`
	TokenHash   string     `json:"-"` // Never expose hash
	TokenPrefix string     `json:"tokenPrefix"`
	Name        string     `json:"name"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	RevokedAt   *time.Time `json:"revokedAt,omitempty"`
}

// AuthContext holds the authenticated caller for the current request
type AuthContext struct {
	Actor *Actor
	Token *APIToken
}

// IsAdministrator reports whether the authenticated actor is an administrator.
// A nil context or nil actor is never an administrator.
func (ac *AuthContext) IsAdministrator() bool {
	return ac != nil && ac.Actor != nil && ac.Actor.IsAdministrator
}
