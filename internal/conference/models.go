package conference

import "time"

// Participant is one leg joined to a session's conference bridge.
//
// The rep leg is the long-lived anchor, created at session start. Lead and
// guest legs are ephemeral and tracked from the same provider event feed as
// calls.
type Participant struct {
	ConferenceID string `json:"conference_id" db:"conference_id"`
	LegID        string `json:"leg_id" db:"leg_id"`

	Role Role `json:"role" db:"role"`

	// DisplayName is denormalized for dashboards; the directory stays the
	// source of truth.
	DisplayName string `json:"display_name,omitempty" db:"display_name"`

	JoinedAt time.Time  `json:"joined_at" db:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty" db:"left_at"`
}

type Role string

const (
	RoleRep   Role = "rep"
	RoleLead  Role = "lead"
	RoleGuest Role = "guest"
)
