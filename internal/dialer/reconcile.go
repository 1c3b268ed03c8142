package dialer

import (
	"context"
	"log/slog"
	"time"

	"dialer-platform/internal/telephony"
)

// Reconciler repairs state after a process restart. Webhook delivery cannot
// be assumed while the process was down, so any session left live with
// non-terminal call records older than the grace window is checked against
// the provider's authoritative status before scheduling resumes.
type Reconciler struct {
	sessions SessionRepo
	calls    CallRepo
	provider telephony.DialerProvider
	sink     TerminalApplier

	grace time.Duration
	log   *slog.Logger
	clock func() time.Time
}

// TerminalApplier forces a provider-reported terminal status onto a call
// record. The engine implements it: the regular transition table assumes
// events arrive in sequence, which does not hold for a call that lived its
// whole life while the process was down.
type TerminalApplier interface {
	ForceTerminal(ctx context.Context, ev telephony.StatusEvent) error
}

func NewReconciler(sessions SessionRepo, calls CallRepo, provider telephony.DialerProvider, sink TerminalApplier, grace time.Duration, log *slog.Logger) *Reconciler {
	if grace <= 0 {
		grace = 2 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		sessions: sessions,
		calls:    calls,
		provider: provider,
		sink:     sink,
		grace:    grace,
		log:      log,
		clock:    time.Now,
	}
}

// Run reconciles all live sessions. Errors on individual records are logged
// and the record is failed rather than left to occupy a slot forever.
func (r *Reconciler) Run(ctx context.Context) error {
	live, err := r.sessions.ListNotEnded(ctx)
	if err != nil {
		return err
	}

	cutoff := r.clock().UTC().Add(-r.grace)
	for _, sess := range live {
		stale, err := r.calls.ListStaleNonTerminal(ctx, sess.ID, cutoff)
		if err != nil {
			return err
		}
		for _, rec := range stale {
			r.reconcileCall(ctx, rec)
		}
	}
	return nil
}

func (r *Reconciler) reconcileCall(ctx context.Context, rec CallRecord) {
	if rec.ProviderCallID == "" {
		// Dial never completed placement before the crash; the provider has
		// nothing to ask about.
		r.fail(ctx, rec, "reconcile: no provider call id")
		return
	}

	ev, err := r.provider.CallStatus(ctx, rec.ProviderCallID)
	if err != nil {
		r.log.Warn("reconcile provider lookup failed", "call_id", rec.ID, "provider_call_id", rec.ProviderCallID, "err", err)
		r.fail(ctx, rec, "reconcile: provider status unavailable")
		return
	}

	next := CallStatus(ev.Status)
	if !next.Terminal() {
		// Still live at the provider; webhooks will finish the story.
		r.log.Info("reconcile: call still in flight", "call_id", rec.ID, "provider_status", ev.Status)
		return
	}

	if err := r.sink.ForceTerminal(ctx, ev); err != nil {
		r.log.Error("reconcile apply failed", "call_id", rec.ID, "err", err)
		// The record must not occupy a slot forever; fail it outright.
		r.fail(ctx, rec, "reconcile: terminal apply failed")
	}
}

func (r *Reconciler) fail(ctx context.Context, rec CallRecord, disposition string) {
	now := r.clock().UTC()
	rec.Status = CallStatusFailed
	rec.EndedAt = &now
	rec.Disposition = disposition
	if err := r.calls.Update(ctx, rec); err != nil {
		r.log.Error("reconcile record update failed", "call_id", rec.ID, "err", err)
		return
	}
	r.log.Info("stale call failed by reconcile", "call_id", rec.ID, "disposition", disposition)
}
