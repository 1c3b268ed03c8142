package dialer

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("dialer: not found")
	ErrInvalidArgument = errors.New("dialer: invalid argument")

	// ErrAlreadyActive is returned when starting a session for a rep that
	// already has one. Non-retryable; surfaced to the caller.
	ErrAlreadyActive = errors.New("dialer: rep already has an active session")

	// ErrDuplicateLead is returned by queue inserts when the lead already has
	// a live queue item for the session. Enqueue treats it as a silent skip.
	ErrDuplicateLead = errors.New("dialer: lead already queued for session")

	// ErrSessionEnded is returned for mutations against an ended session.
	ErrSessionEnded = errors.New("dialer: session has ended")
)

// SessionRepo is the persistence contract for dialing sessions.
//
// Create must enforce the one-active-session-per-rep invariant atomically
// (keyed lock in memory, partial unique index in Postgres) and return
// ErrAlreadyActive on violation.
type SessionRepo interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	FindActiveByRep(ctx context.Context, repID string) (Session, error)

	// UpdateStatus transitions the session's lifecycle state without touching
	// the counters; a concurrent counter bump is never reverted.
	UpdateStatus(ctx context.Context, id string, status SessionStatus, endedAt *time.Time) error

	// IncrementCallsMade and IncrementCallsConnected bump one counter in
	// place, so a stale session snapshot held by a caller cannot clobber a
	// status change written in between.
	IncrementCallsMade(ctx context.Context, id string) error
	IncrementCallsConnected(ctx context.Context, id string) error

	// ListNotEnded returns sessions still active or paused, for crash
	// recovery after a restart.
	ListNotEnded(ctx context.Context) ([]Session, error)
}

// QueueRepo is the persistence contract for per-session call queues.
type QueueRepo interface {
	// Insert adds a queued item; ErrDuplicateLead if the lead already has a
	// non-removed item in the session.
	Insert(ctx context.Context, item QueueItem) error

	// Claim atomically pops up to n queued items in (priority desc,
	// enqueued_at asc) order, transitioning them queued -> dialing. No two
	// concurrent claims may return the same item.
	Claim(ctx context.Context, sessionID string, n int) ([]QueueItem, error)

	// MarkRemoved removes a lead's queued item; no-op if none is queued.
	MarkRemoved(ctx context.Context, sessionID, leadID string) error

	// Consume retires a claimed item once its dial attempt has been made.
	// The lead may then re-enter the session through a normal enqueue.
	Consume(ctx context.Context, itemID string) error

	// Clear removes all queued items for the session.
	Clear(ctx context.Context, sessionID string) error

	CountQueued(ctx context.Context, sessionID string) (int, error)
	ListQueued(ctx context.Context, sessionID string) ([]QueueItem, error)
}

// CallRepo is the persistence contract for call records.
type CallRepo interface {
	Insert(ctx context.Context, rec CallRecord) error
	Get(ctx context.Context, id string) (CallRecord, error)
	FindByProviderID(ctx context.Context, providerCallID string) (CallRecord, error)
	Update(ctx context.Context, rec CallRecord) error
	ListBySession(ctx context.Context, sessionID string) ([]CallRecord, error)

	// CountNonTerminal counts in-flight records for the session; this is the
	// slot occupancy the scheduler compares against the ceiling.
	CountNonTerminal(ctx context.Context, sessionID string) (int, error)

	// ListStaleNonTerminal returns in-flight records dialed before cutoff,
	// for provider reconciliation after a restart.
	ListStaleNonTerminal(ctx context.Context, sessionID string, cutoff time.Time) ([]CallRecord, error)
}
