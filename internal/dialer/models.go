package dialer

import "time"

// Session is one rep's continuous dialing activity window.
//
// Invariant: at most one non-ended session may exist per rep.
// The scheduler only acts while Status == SessionStatusActive.
type Session struct {
	ID    string `json:"id" db:"id"`
	RepID string `json:"rep_id" db:"rep_id"`

	Status SessionStatus `json:"status" db:"status"`

	// ConferenceID is the provider conference the rep leg is anchored to.
	ConferenceID string `json:"conference_id" db:"conference_id"`

	CallsMade      int `json:"calls_made" db:"calls_made"`
	CallsConnected int `json:"calls_connected" db:"calls_connected"`

	StartedAt time.Time  `json:"started_at" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`
}

type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusPaused SessionStatus = "paused"
	SessionStatusEnded  SessionStatus = "ended"
)

// QueueItem is a lead waiting to be dialed within a session.
//
// A lead may appear in at most one non-removed queue item per session.
// Ordering for dequeue is (priority desc, enqueued_at asc).
type QueueItem struct {
	ID        string `json:"id" db:"id"`
	SessionID string `json:"session_id" db:"session_id"`
	LeadID    string `json:"lead_id" db:"lead_id"`

	Priority int `json:"priority" db:"priority"`

	Status QueueItemStatus `json:"status" db:"status"`

	EnqueuedAt time.Time `json:"enqueued_at" db:"enqueued_at"`
}

type QueueItemStatus string

const (
	QueueItemStatusQueued  QueueItemStatus = "queued"
	QueueItemStatusDialing QueueItemStatus = "dialing"
	QueueItemStatusRemoved QueueItemStatus = "removed"
)

// CallRecord tracks the lifecycle of one outbound dial attempt.
//
// Records are created in CallStatusDialing by the scheduler, mutated only by
// validated provider events (or a rep-initiated hangup relayed through the
// provider), and immutable once terminal.
type CallRecord struct {
	ID        string `json:"id" db:"id"`
	SessionID string `json:"session_id" db:"session_id"`
	LeadID    string `json:"lead_id" db:"lead_id"`

	// ProviderCallID is the provider's identifier for this leg. Empty until
	// call placement returns.
	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	Status    CallStatus `json:"status" db:"status"`
	Direction string     `json:"direction" db:"direction"`

	DialedAt    time.Time  `json:"dialed_at" db:"dialed_at"`
	AnsweredAt  *time.Time `json:"answered_at,omitempty" db:"answered_at"`
	ConnectedAt *time.Time `json:"connected_at,omitempty" db:"connected_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	// Disposition carries a short outcome note (e.g. dial placement failure).
	Disposition string `json:"disposition,omitempty" db:"disposition"`
}

const DirectionOutbound = "outbound"

type CallStatus string

const (
	CallStatusDialing   CallStatus = "dialing"
	CallStatusRinging   CallStatus = "ringing"
	CallStatusAnswered  CallStatus = "answered"
	CallStatusConnected CallStatus = "connected"
	CallStatusCompleted CallStatus = "completed"
	CallStatusFailed    CallStatus = "failed"
	CallStatusNoAnswer  CallStatus = "no_answer"
	CallStatusBusy      CallStatus = "busy"
	CallStatusCanceled  CallStatus = "canceled"
)

// Terminal reports whether no further transition is accepted from s.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusNoAnswer, CallStatusBusy, CallStatusCanceled:
		return true
	default:
		return false
	}
}

// callTransitions is the allowed edge set of the call state machine.
//
// dialing -> answered is accepted because providers may never emit a ringing
// event for fast answers; all other skips are rejected as out-of-order.
var callTransitions = map[CallStatus]map[CallStatus]bool{
	CallStatusDialing: {
		CallStatusRinging:  true,
		CallStatusAnswered: true,
		CallStatusFailed:   true,
		CallStatusNoAnswer: true,
		CallStatusBusy:     true,
		CallStatusCanceled: true,
	},
	CallStatusRinging: {
		CallStatusAnswered: true,
		CallStatusNoAnswer: true,
		CallStatusBusy:     true,
		CallStatusFailed:   true,
	},
	CallStatusAnswered: {
		CallStatusConnected: true,
		CallStatusCompleted: true,
		CallStatusFailed:    true,
	},
	CallStatusConnected: {
		CallStatusCompleted: true,
	},
}

// CanTransition reports whether from -> to is a valid state machine edge.
func CanTransition(from, to CallStatus) bool {
	return callTransitions[from][to]
}

// IsValidCallStatus reports whether s is a known call status.
func IsValidCallStatus(s CallStatus) bool {
	switch s {
	case CallStatusDialing, CallStatusRinging, CallStatusAnswered, CallStatusConnected,
		CallStatusCompleted, CallStatusFailed, CallStatusNoAnswer, CallStatusBusy, CallStatusCanceled:
		return true
	default:
		return false
	}
}
