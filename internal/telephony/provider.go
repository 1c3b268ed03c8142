package telephony

import (
	"context"
	"time"
)

// DialerProvider defines the provider-agnostic outbound calling interface
// used by the dialer engine.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Keep request/response types provider-agnostic; store provider raw
//   payloads in metadata if needed.
// - Status transitions reach the engine only through StatusEvent values
//   produced by the webhook adapters, never through return values here.
type DialerProvider interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// CreateConference allocates the shared bridge for a dialing session and
	// returns a join target the rep leg dials into.
	CreateConference(ctx context.Context, req CreateConferenceRequest) (CreateConferenceResult, error)

	// PlaceCall starts an outbound leg that joins the named conference when
	// answered.
	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error)

	// AddConferenceParticipant dials an ad-hoc target (e.g. a colleague) into
	// an existing conference.
	AddConferenceParticipant(ctx context.Context, req AddParticipantRequest) (AddParticipantResult, error)

	// Hangup ends a single leg at the provider.
	Hangup(ctx context.Context, providerCallID string) error

	// CallStatus queries the provider's authoritative status for a leg. Used
	// for crash recovery when webhook delivery cannot be assumed.
	CallStatus(ctx context.Context, providerCallID string) (StatusEvent, error)
}

type CreateConferenceRequest struct {
	SessionID string `json:"session_id"`
	RepID     string `json:"rep_id"`
}

type CreateConferenceResult struct {
	// ConferenceID names the bridge at the provider.
	ConferenceID string `json:"conference_id"`

	// RepJoinTarget is what the rep dials (or is called at) to anchor the
	// conference. Provider-specific format, opaque to the engine.
	RepJoinTarget string `json:"rep_join_target"`
}

type PlaceCallRequest struct {
	SessionID string `json:"session_id"`
	CallID    string `json:"call_id"`

	// From and To are E.164 where possible.
	From string `json:"from"`
	To   string `json:"to"`

	// ConferenceID is the bridge the answered leg is sent into.
	ConferenceID string `json:"conference_id"`
}

type PlaceCallResult struct {
	ProviderCallID string `json:"provider_call_id"`
}

type AddParticipantRequest struct {
	ConferenceID string `json:"conference_id"`

	From string `json:"from"`
	// Target is the participant's dial target (number or SIP URI).
	Target string `json:"target"`
}

type AddParticipantResult struct {
	// LegID identifies the new participant leg at the provider.
	LegID string `json:"leg_id"`
}

// StatusEvent is a provider-agnostic call lifecycle event.
//
// Status values use the engine's vocabulary: ringing, answered, connected,
// completed, failed, no_answer, busy, canceled. Adapters translate provider
// strings before events reach the engine.
type StatusEvent struct {
	ProviderCallID string    `json:"provider_call_id"`
	Status         string    `json:"new_status"`
	OccurredAt     time.Time `json:"timestamp"`

	// RawPayload is optional for debugging/audit; store as JSON string.
	RawPayload string `json:"raw_payload,omitempty"`
}
