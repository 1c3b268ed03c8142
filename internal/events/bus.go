package events

import (
	"context"
	"time"
)

// The distributor is a signal, not a source of truth: delivery is
// at-least-once with no ordering guarantee across entities, only within a
// single record's own transition sequence. Subscribers reconcile by
// re-fetching authoritative state on receipt, so dropped or duplicated
// notifications are tolerated.

type Kind string

const (
	KindSessionUpdated     Kind = "session_updated"
	KindQueueUpdated       Kind = "queue_updated"
	KindCallUpdated        Kind = "call_updated"
	KindParticipantUpdated Kind = "participant_updated"
)

// Event carries identifiers only; no entity payloads.
type Event struct {
	Kind      Kind   `json:"kind"`
	RepID     string `json:"rep_id"`
	SessionID string `json:"session_id"`

	// EntityID is the mutated record (call id, queue item id, ...). Empty for
	// coarse signals like queue clears.
	EntityID string `json:"entity_id,omitempty"`

	// Status is the entity's status after the mutation, when meaningful.
	Status string `json:"status,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// Bus fans out state-change signals to per-rep subscribers.
type Bus interface {
	Publish(ctx context.Context, ev Event) error

	// Subscribe returns a channel of events for one rep plus a cancel func.
	// The channel is closed after cancel (or context cancellation).
	Subscribe(ctx context.Context, repID string) (<-chan Event, func(), error)
}
