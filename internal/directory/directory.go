package directory

import (
	"context"
	"errors"
)

// The dialer engine does not own contact data; these are read-only lookups
// against the CRM's lead and colleague collections.

var ErrNotFound = errors.New("directory: not found")

// Lead is the subset of a CRM lead the engine needs to place a call.
type Lead struct {
	ID          string `json:"id" db:"id"`
	Phone       string `json:"phone" db:"phone"`
	DisplayName string `json:"display_name" db:"display_name"`
}

// Colleague is an internal user reachable for ad-hoc conference invites.
type Colleague struct {
	ID          string `json:"id" db:"id"`
	DialTarget  string `json:"dial_target" db:"dial_target"`
	DisplayName string `json:"display_name" db:"display_name"`
}

type Leads interface {
	Lead(ctx context.Context, leadID string) (Lead, error)
}

type Colleagues interface {
	Colleague(ctx context.Context, colleagueID string) (Colleague, error)
}
