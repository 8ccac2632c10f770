package collaborative

import (
	"time"
)

// InvitationStatus is the invitation state machine. Pending is the only
// non-terminal state; accepted and rejected are final.
type InvitationStatus string

const (
	StatusPending  InvitationStatus = "pending"
	StatusAccepted InvitationStatus = "accepted"
	StatusRejected InvitationStatus = "rejected"
)

// ValidResponse reports whether s is a state an invitation can be moved to
func ValidResponse(s InvitationStatus) bool {
	return s == StatusAccepted || s == StatusRejected
}

// Collaborative is a funder that other funders can join. Its short code is
// a funder short code; grants held on it extend to member funders during
// resolution.
type Collaborative struct {
	ShortCode string    `json:"shortCode"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// Invitation asks a funder to join a collaborative. At most one pending
// invitation may exist per (collaborative, funder) pair; terminal
// invitations are kept as history.
type Invitation struct {
	ID                     string           `json:"id"`
	CollaborativeShortCode string           `json:"collaborativeShortCode"`
	FunderShortCode        string           `json:"funderShortCode"`
	Status                 InvitationStatus `json:"status"`
	CreatedBy              string           `json:"createdBy"`
	CreatedAt              time.Time        `json:"createdAt"`
	RespondedAt            *time.Time       `json:"respondedAt,omitempty"`
}

// Membership is an accepted funder's edge into a collaborative. It exists
// only as the atomic consequence of accepting an invitation.
type Membership struct {
	CollaborativeShortCode string    `json:"collaborativeShortCode"`
	FunderShortCode        string    `json:"funderShortCode"`
	JoinedAt               time.Time `json:"joinedAt"`
}
