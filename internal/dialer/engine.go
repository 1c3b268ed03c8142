package dialer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dialer-platform/internal/conference"
	"dialer-platform/internal/directory"
	"dialer-platform/internal/events"
	"dialer-platform/internal/telephony"
)

// Engine applies provider-originated call lifecycle events to call records
// and drives the side effects of each transition: conference merges on
// connected, slot release and scheduler wake on terminal states.
//
// Events referencing unknown or already-terminal records are logged and
// dropped, never surfaced: provider webhooks are delivered at-least-once and
// out of order, and dropping is what makes application idempotent.
type Engine struct {
	sessions SessionRepo
	calls    CallRepo

	provider    telephony.DialerProvider
	coordinator *conference.Coordinator
	leads       directory.Leads
	bus         events.Bus
	slots       *SlotGuard
	waker       Waker

	log   *slog.Logger
	clock func() time.Time
}

type EngineOptions struct {
	Sessions SessionRepo
	Calls    CallRepo

	Provider    telephony.DialerProvider
	Coordinator *conference.Coordinator
	Leads       directory.Leads
	Bus         events.Bus
	Slots       *SlotGuard
	Waker       Waker

	Log *slog.Logger
}

func NewEngine(opts EngineOptions) *Engine {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		sessions:    opts.Sessions,
		calls:       opts.Calls,
		provider:    opts.Provider,
		coordinator: opts.Coordinator,
		leads:       opts.Leads,
		bus:         opts.Bus,
		slots:       opts.Slots,
		waker:       opts.Waker,
		log:         log,
		clock:       time.Now,
	}
}

// ApplyProviderEvent implements telephony.StatusSink.
//
// Returned errors are infrastructure failures only (storage unavailable);
// invalid, duplicate, or out-of-order events return nil after being logged.
func (e *Engine) ApplyProviderEvent(ctx context.Context, ev telephony.StatusEvent) error {
	log := e.log

	next := CallStatus(ev.Status)
	if !IsValidCallStatus(next) {
		log.Warn("provider event with unknown status dropped", "provider_call_id", ev.ProviderCallID, "status", ev.Status)
		return nil
	}

	rec, err := e.calls.FindByProviderID(ctx, ev.ProviderCallID)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidArgument) {
			log.Warn("provider event for unknown call dropped", "provider_call_id", ev.ProviderCallID, "status", ev.Status)
			return nil
		}
		return err
	}
	if rec.Status.Terminal() {
		log.Debug("provider event for terminal call dropped", "call_id", rec.ID, "status", ev.Status)
		return nil
	}
	if next == rec.Status {
		log.Debug("duplicate provider event dropped", "call_id", rec.ID, "status", ev.Status)
		return nil
	}
	if !CanTransition(rec.Status, next) {
		log.Warn("out-of-order provider event dropped", "call_id", rec.ID, "from", rec.Status, "to", next)
		return nil
	}

	now := e.clock().UTC()
	at := ev.OccurredAt
	if at.IsZero() {
		at = now
	}

	rec.Status = next
	switch next {
	case CallStatusAnswered:
		rec.AnsweredAt = &at
	case CallStatusConnected:
		rec.ConnectedAt = &at
	default:
		if next.Terminal() {
			rec.EndedAt = &at
		}
	}
	if err := e.calls.Update(ctx, rec); err != nil {
		return err
	}
	log.Info("call transition", "call_id", rec.ID, "session_id", rec.SessionID, "status", next)

	sess, err := e.sessions.Get(ctx, rec.SessionID)
	if err != nil {
		log.Error("session load failed during event apply", "session_id", rec.SessionID, "err", err)
		e.publishCall(ctx, "", rec)
		return nil
	}

	switch {
	case next == CallStatusConnected:
		e.onConnected(ctx, sess, rec)
	case next.Terminal():
		e.onTerminal(ctx, sess, rec)
	}

	e.publishCall(ctx, sess.RepID, rec)
	return nil
}

// ForceTerminal applies a provider-reported terminal status to a record
// without consulting the transition table. Crash recovery needs this: a call
// that answered and finished while the process was down reports only its
// final status, which may have no edge from the stored one. Records already
// terminal are left untouched.
func (e *Engine) ForceTerminal(ctx context.Context, ev telephony.StatusEvent) error {
	next := CallStatus(ev.Status)
	if !next.Terminal() {
		return ErrInvalidArgument
	}
	rec, err := e.calls.FindByProviderID(ctx, ev.ProviderCallID)
	if err != nil {
		return err
	}
	if rec.Status.Terminal() {
		return nil
	}

	at := ev.OccurredAt
	if at.IsZero() {
		at = e.clock().UTC()
	}
	rec.Status = next
	rec.EndedAt = &at
	if err := e.calls.Update(ctx, rec); err != nil {
		return err
	}
	e.log.Info("call transition forced", "call_id", rec.ID, "session_id", rec.SessionID, "status", next)

	sess, err := e.sessions.Get(ctx, rec.SessionID)
	if err != nil {
		e.log.Error("session load failed during forced terminal", "session_id", rec.SessionID, "err", err)
		e.publishCall(ctx, "", rec)
		return nil
	}
	e.onTerminal(ctx, sess, rec)
	e.publishCall(ctx, sess.RepID, rec)
	return nil
}

// Hangup ends a leg at the rep's request. The record still transitions via
// the provider's terminal callback, keeping state changes single-sourced.
func (e *Engine) Hangup(ctx context.Context, repID, sessionID, callID string) error {
	if repID == "" || sessionID == "" || callID == "" {
		return ErrInvalidArgument
	}
	rec, err := e.calls.Get(ctx, callID)
	if err != nil {
		return err
	}
	if rec.SessionID != sessionID {
		return ErrNotFound
	}
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.RepID != repID {
		return ErrNotFound
	}
	if rec.Status.Terminal() {
		return nil
	}
	if rec.ProviderCallID == "" {
		return ErrInvalidArgument
	}
	return e.provider.Hangup(ctx, rec.ProviderCallID)
}

// Calls lists a session's call records for the rep's dashboard.
func (e *Engine) Calls(ctx context.Context, repID, sessionID string) ([]CallRecord, error) {
	if repID == "" || sessionID == "" {
		return nil, ErrInvalidArgument
	}
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.RepID != repID {
		return nil, ErrNotFound
	}
	return e.calls.ListBySession(ctx, sessionID)
}

// onConnected merges the answered leg into the session conference. A merge
// failure is degraded state, not fatal: the lead call itself is unaffected.
func (e *Engine) onConnected(ctx context.Context, sess Session, rec CallRecord) {
	if err := e.sessions.IncrementCallsConnected(ctx, sess.ID); err != nil {
		e.log.Error("calls_connected increment failed", "session_id", sess.ID, "err", err)
	}

	if sess.Status == SessionStatusEnded {
		// Rep is gone; nothing to merge into. The leg ends on its own.
		e.log.Info("connected after session end, merge skipped", "call_id", rec.ID, "session_id", sess.ID)
		return
	}
	if e.coordinator == nil {
		return
	}

	displayName := rec.LeadID
	if e.leads != nil {
		if lead, err := e.leads.Lead(ctx, rec.LeadID); err == nil && lead.DisplayName != "" {
			displayName = lead.DisplayName
		}
	}
	if _, err := e.coordinator.MergeLeadLeg(ctx, sess.ConferenceID, rec.ProviderCallID, displayName); err != nil {
		e.log.Warn("conference merge degraded", "call_id", rec.ID, "conference_id", sess.ConferenceID, "err", err)
	}
	e.publish(ctx, events.Event{
		Kind:      events.KindParticipantUpdated,
		RepID:     sess.RepID,
		SessionID: sess.ID,
		EntityID:  rec.ProviderCallID,
	})
}

// onTerminal frees the occupied slot and wakes the scheduler so the freed
// capacity is refilled without waiting for the next tick.
func (e *Engine) onTerminal(ctx context.Context, sess Session, rec CallRecord) {
	if rec.ConnectedAt != nil && e.coordinator != nil {
		if err := e.coordinator.MarkLeft(ctx, sess.ConferenceID, rec.ProviderCallID); err != nil {
			e.log.Warn("participant close failed", "call_id", rec.ID, "err", err)
		}
	}
	if e.slots != nil && rec.ProviderCallID != "" {
		if err := e.slots.Release(ctx, sess.ID); err != nil {
			e.log.Warn("slot release failed", "session_id", sess.ID, "err", err)
		}
	}
	if e.waker != nil {
		e.waker.Wake(sess.ID)
	}
}

func (e *Engine) publishCall(ctx context.Context, repID string, rec CallRecord) {
	e.publish(ctx, events.Event{
		Kind:      events.KindCallUpdated,
		RepID:     repID,
		SessionID: rec.SessionID,
		EntityID:  rec.ID,
		Status:    string(rec.Status),
	})
}

func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if e.bus == nil {
		return
	}
	ev.OccurredAt = e.clock().UTC()
	if err := e.bus.Publish(ctx, ev); err != nil {
		e.log.Warn("event publish failed", "kind", ev.Kind, "session_id", ev.SessionID, "err", err)
	}
}
