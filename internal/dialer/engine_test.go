package dialer

import (
	"context"
	"testing"
	"time"

	"dialer-platform/internal/conference"
	"dialer-platform/internal/directory"
	"dialer-platform/internal/events"
)

type engineFixture struct {
	sessions *MemorySessionRepo
	calls    *MemoryCallRepo
	provider *fakeProvider
	confRepo *conference.MemoryRepo
	dir      *directory.MemoryDirectory
	waker    *fakeWaker
	engine   *Engine
	sess     Session
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		sessions: NewMemorySessionRepo(),
		calls:    NewMemoryCallRepo(),
		provider: newFakeProvider(),
		confRepo: conference.NewMemoryRepo(),
		dir:      directory.NewMemoryDirectory(),
		waker:    &fakeWaker{},
	}
	f.engine = NewEngine(EngineOptions{
		Sessions:    f.sessions,
		Calls:       f.calls,
		Provider:    f.provider,
		Coordinator: conference.NewCoordinator(f.confRepo, f.provider, f.dir, nil),
		Leads:       f.dir,
		Bus:         events.NewMemoryBus(),
		Waker:       f.waker,
	})
	f.sess = mustCreateSession(t, f.sessions, "s1", "rep-1")
	return f
}

func (f *engineFixture) insertCall(t *testing.T, id, providerCallID string, status CallStatus) CallRecord {
	t.Helper()
	rec := CallRecord{
		ID:             id,
		SessionID:      f.sess.ID,
		LeadID:         "lead-" + id,
		ProviderCallID: providerCallID,
		Status:         status,
		Direction:      DirectionOutbound,
		DialedAt:       time.Now().UTC(),
	}
	if err := f.calls.Insert(context.Background(), rec); err != nil {
		t.Fatalf("insert call: %v", err)
	}
	return rec
}

func (f *engineFixture) apply(t *testing.T, providerCallID, status string) {
	t.Helper()
	if err := f.engine.ApplyProviderEvent(context.Background(), statusEvent(providerCallID, status)); err != nil {
		t.Fatalf("apply %s: %v", status, err)
	}
}

func TestApply_HappyPathLifecycle(t *testing.T) {
	f := newEngineFixture(t)
	rec := f.insertCall(t, "c1", "CA1", CallStatusDialing)

	f.apply(t, "CA1", "ringing")
	f.apply(t, "CA1", "answered")
	f.apply(t, "CA1", "connected")
	f.apply(t, "CA1", "completed")

	got, _ := f.calls.Get(context.Background(), rec.ID)
	if got.Status != CallStatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.AnsweredAt == nil || got.ConnectedAt == nil || got.EndedAt == nil {
		t.Fatalf("expected lifecycle timestamps, got %+v", got)
	}

	sess, _ := f.sessions.Get(context.Background(), f.sess.ID)
	if sess.CallsConnected != 1 {
		t.Fatalf("expected calls_connected 1, got %d", sess.CallsConnected)
	}
	if f.waker.count() == 0 {
		t.Fatalf("terminal event must wake the scheduler")
	}
}

func TestApply_UnknownCallDropped(t *testing.T) {
	f := newEngineFixture(t)

	// Must not error: webhooks for unknown legs are dropped.
	if err := f.engine.ApplyProviderEvent(context.Background(), statusEvent("CA-unknown", "ringing")); err != nil {
		t.Fatalf("expected drop, got %v", err)
	}
}

func TestApply_UnknownStatusDropped(t *testing.T) {
	f := newEngineFixture(t)
	rec := f.insertCall(t, "c1", "CA1", CallStatusDialing)

	if err := f.engine.ApplyProviderEvent(context.Background(), statusEvent("CA1", "queued")); err != nil {
		t.Fatalf("expected drop, got %v", err)
	}
	got, _ := f.calls.Get(context.Background(), rec.ID)
	if got.Status != CallStatusDialing {
		t.Fatalf("record mutated by unknown status: %s", got.Status)
	}
}

func TestApply_OutOfOrderAndDuplicateDropped(t *testing.T) {
	f := newEngineFixture(t)
	rec := f.insertCall(t, "c1", "CA1", CallStatusDialing)

	// connected before answered is out of order
	f.apply(t, "CA1", "ringing")
	f.apply(t, "CA1", "connected")
	got, _ := f.calls.Get(context.Background(), rec.ID)
	if got.Status != CallStatusRinging {
		t.Fatalf("out-of-order event must not apply, got %s", got.Status)
	}

	// duplicate of current status
	f.apply(t, "CA1", "ringing")
	got, _ = f.calls.Get(context.Background(), rec.ID)
	if got.Status != CallStatusRinging {
		t.Fatalf("duplicate event must not apply, got %s", got.Status)
	}
}

func TestApply_TerminalIsFinal(t *testing.T) {
	f := newEngineFixture(t)
	rec := f.insertCall(t, "c1", "CA1", CallStatusDialing)

	f.apply(t, "CA1", "no_answer")
	ended, _ := f.calls.Get(context.Background(), rec.ID)
	firstEndedAt := ended.EndedAt

	// Late events after a terminal state change nothing.
	f.apply(t, "CA1", "answered")
	f.apply(t, "CA1", "completed")
	got, _ := f.calls.Get(context.Background(), rec.ID)
	if got.Status != CallStatusNoAnswer {
		t.Fatalf("terminal record mutated: %s", got.Status)
	}
	if got.EndedAt == nil || !got.EndedAt.Equal(*firstEndedAt) {
		t.Fatalf("ended_at rewritten on terminal record")
	}
}

func TestApply_FastAnswerSkipsRinging(t *testing.T) {
	f := newEngineFixture(t)
	rec := f.insertCall(t, "c1", "CA1", CallStatusDialing)

	f.apply(t, "CA1", "answered")
	got, _ := f.calls.Get(context.Background(), rec.ID)
	if got.Status != CallStatusAnswered || got.AnsweredAt == nil {
		t.Fatalf("dialing -> answered must be accepted, got %+v", got)
	}
}

// Multiple legs answering near-simultaneously all land in the same bridge.
func TestApply_ConcurrentConnectsShareConference(t *testing.T) {
	f := newEngineFixture(t)
	f.insertCall(t, "c1", "CA1", CallStatusAnswered)
	f.insertCall(t, "c2", "CA2", CallStatusAnswered)

	f.apply(t, "CA1", "connected")
	f.apply(t, "CA2", "connected")

	parts, _ := f.confRepo.ListByConference(context.Background(), f.sess.ConferenceID)
	leads := 0
	for _, p := range parts {
		if p.Role == conference.RoleLead && p.LeftAt == nil {
			leads++
		}
	}
	if leads != 2 {
		t.Fatalf("expected both legs merged into one conference, got %d of %d", leads, len(parts))
	}

	sess, _ := f.sessions.Get(context.Background(), f.sess.ID)
	if sess.CallsConnected != 2 {
		t.Fatalf("expected calls_connected 2, got %d", sess.CallsConnected)
	}
}

func TestApply_ConnectedAfterSessionEndSkipsMerge(t *testing.T) {
	f := newEngineFixture(t)
	f.insertCall(t, "c1", "CA1", CallStatusAnswered)

	ended := time.Now().UTC()
	if err := f.sessions.UpdateStatus(context.Background(), f.sess.ID, SessionStatusEnded, &ended); err != nil {
		t.Fatalf("update: %v", err)
	}

	f.apply(t, "CA1", "connected")

	parts, _ := f.confRepo.ListByConference(context.Background(), f.sess.ConferenceID)
	if len(parts) != 0 {
		t.Fatalf("no merge after session end, got %+v", parts)
	}
}

func TestApply_TerminalClosesParticipant(t *testing.T) {
	f := newEngineFixture(t)
	f.insertCall(t, "c1", "CA1", CallStatusAnswered)

	f.apply(t, "CA1", "connected")
	f.apply(t, "CA1", "completed")

	parts, _ := f.confRepo.ListByConference(context.Background(), f.sess.ConferenceID)
	if len(parts) != 1 {
		t.Fatalf("expected one tracked participant, got %d", len(parts))
	}
	if parts[0].LeftAt == nil {
		t.Fatalf("participant must be closed out on terminal")
	}
}

func TestHangup_RelaysThroughProvider(t *testing.T) {
	f := newEngineFixture(t)
	rec := f.insertCall(t, "c1", "CA1", CallStatusAnswered)

	if err := f.engine.Hangup(context.Background(), "rep-1", f.sess.ID, rec.ID); err != nil {
		t.Fatalf("hangup: %v", err)
	}
	if len(f.provider.hangups) != 1 || f.provider.hangups[0] != "CA1" {
		t.Fatalf("expected provider hangup for CA1, got %v", f.provider.hangups)
	}

	// Status is unchanged until the provider's terminal callback arrives.
	got, _ := f.calls.Get(context.Background(), rec.ID)
	if got.Status != CallStatusAnswered {
		t.Fatalf("hangup must not mutate status directly, got %s", got.Status)
	}
}

func TestHangup_TerminalCallIsNoOp(t *testing.T) {
	f := newEngineFixture(t)
	rec := f.insertCall(t, "c1", "CA1", CallStatusCompleted)

	if err := f.engine.Hangup(context.Background(), "rep-1", f.sess.ID, rec.ID); err != nil {
		t.Fatalf("hangup on terminal: %v", err)
	}
	if len(f.provider.hangups) != 0 {
		t.Fatalf("no provider call expected for terminal record")
	}
}

func TestHangup_ForeignRepRejected(t *testing.T) {
	f := newEngineFixture(t)
	rec := f.insertCall(t, "c1", "CA1", CallStatusAnswered)

	if err := f.engine.Hangup(context.Background(), "rep-2", f.sess.ID, rec.ID); err == nil {
		t.Fatalf("expected ownership rejection")
	}
}
