package dialer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dialer-platform/internal/directory"
	"dialer-platform/internal/events"
	"dialer-platform/internal/telephony"
	"dialer-platform/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SchedulerConfig controls one session's dial loop.
type SchedulerConfig struct {
	// Ceiling is the maximum number of non-terminal call records allowed at
	// once for the session.
	Ceiling int

	// Tick is the periodic pass interval; event triggers run passes between
	// ticks.
	Tick time.Duration

	// DialTimeout bounds a single call placement at the provider.
	DialTimeout time.Duration

	// From is the caller id used for outbound legs.
	From string
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	out := c
	if out.Ceiling <= 0 {
		out.Ceiling = 3
	}
	if out.Tick <= 0 {
		out.Tick = 5 * time.Second
	}
	if out.DialTimeout <= 0 {
		out.DialTimeout = 15 * time.Second
	}
	return out
}

// SchedulerDeps are the collaborators a dial loop needs.
type SchedulerDeps struct {
	Sessions SessionRepo
	Queue    QueueRepo
	Calls    CallRepo
	Provider telephony.DialerProvider
	Leads    directory.Leads
	Bus      events.Bus

	// Slots is an optional cross-process guard on top of the in-process
	// serialization. Nil disables it.
	Slots *SlotGuard

	Log   *slog.Logger
	Clock func() time.Time
}

// Scheduler keeps one session's concurrency ceiling full while the queue is
// non-empty and the session is active.
//
// All scheduling for a session runs on a single goroutine, so the
// count-then-claim pass is serialized: two triggers can never both observe a
// free slot and jointly overshoot the ceiling. Trigger sources (tick,
// terminal call event, queue mutation) coalesce through a 1-slot channel
// into at most one pending pass.
type Scheduler struct {
	sessionID string
	repID     string

	cfg  SchedulerConfig
	deps SchedulerDeps

	trigger  chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

func NewScheduler(sessionID, repID string, cfg SchedulerConfig, deps SchedulerDeps) *Scheduler {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Scheduler{
		sessionID: sessionID,
		repID:     repID,
		cfg:       cfg.withDefaults(),
		deps:      deps,
		trigger:   make(chan struct{}, 1),
		stopped:   make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the dial loop. An immediate first pass runs before the
// ticker takes over.
func (s *Scheduler) Start(ctx context.Context) {
	go s.run(ctx)
}

// Wake requests a scheduling pass. Never blocks; concurrent wakes within the
// same pass coalesce.
func (s *Scheduler) Wake() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Stop cancels future scheduling and waits for the loop to exit. Calls
// already placed with the provider are not touched.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopped) })
	<-s.done
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	s.pass(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopped:
			return
		case <-ticker.C:
			s.pass(ctx)
		case <-s.trigger:
			s.pass(ctx)
		}
	}
}

// pass runs one scheduling round: count in-flight calls, claim queue items
// for the free slots, dial them.
func (s *Scheduler) pass(ctx context.Context) {
	log := s.deps.Log

	sess, err := s.deps.Sessions.Get(ctx, s.sessionID)
	if err != nil {
		log.Error("scheduler session load failed", "session_id", s.sessionID, "err", err)
		return
	}
	if sess.Status != SessionStatusActive {
		return
	}

	inFlight, err := s.deps.Calls.CountNonTerminal(ctx, s.sessionID)
	if err != nil {
		log.Error("scheduler call count failed", "session_id", s.sessionID, "err", err)
		return
	}
	free := s.cfg.Ceiling - inFlight
	if free <= 0 {
		return
	}

	items, err := s.deps.Queue.Claim(ctx, s.sessionID, free)
	if err != nil {
		log.Error("scheduler queue claim failed", "session_id", s.sessionID, "err", err)
		return
	}
	if len(items) == 0 {
		return
	}

	for _, item := range items {
		s.dial(ctx, sess, item)
	}

	s.publish(ctx, events.Event{
		Kind:      events.KindQueueUpdated,
		RepID:     s.repID,
		SessionID: s.sessionID,
	})
	// calls_made moved; subscribers re-fetch the session record.
	s.publish(ctx, events.Event{
		Kind:      events.KindSessionUpdated,
		RepID:     s.repID,
		SessionID: s.sessionID,
		EntityID:  s.sessionID,
	})
}

// dial attempts one claimed queue item. The item is consumed regardless of
// outcome: a placement failure produces a failed call record surfaced to the
// rep, never a silent re-enqueue (which could loop a bad number forever).
// The rep can still re-enter the lead through a normal enqueue afterwards.
func (s *Scheduler) dial(ctx context.Context, sess Session, item QueueItem) {
	log := s.deps.Log
	now := s.deps.Clock().UTC()

	if err := s.deps.Queue.Consume(ctx, item.ID); err != nil {
		log.Error("queue item consume failed", "session_id", item.SessionID, "lead_id", item.LeadID, "err", err)
	}

	rec := CallRecord{
		ID:        uuid.NewString(),
		SessionID: item.SessionID,
		LeadID:    item.LeadID,
		Status:    CallStatusDialing,
		Direction: DirectionOutbound,
		DialedAt:  now,
	}

	lead, err := s.deps.Leads.Lead(ctx, item.LeadID)
	if err != nil {
		rec.Status = CallStatusFailed
		rec.EndedAt = &now
		rec.Disposition = "lead lookup failed"
		if insErr := s.deps.Calls.Insert(ctx, rec); insErr != nil {
			log.Error("failed call record insert failed", "lead_id", item.LeadID, "err", insErr)
			return
		}
		log.Warn("dial skipped, lead lookup failed", "session_id", sess.ID, "lead_id", item.LeadID, "err", err)
		s.publishCall(ctx, rec)
		return
	}

	if s.deps.Slots != nil {
		ok, err := s.deps.Slots.Acquire(ctx, sess.ID)
		if err != nil {
			// Guard unavailable; in-process serialization still holds the
			// ceiling, so proceed.
			log.Warn("slot guard unavailable", "session_id", sess.ID, "err", err)
		} else if !ok {
			rec.Status = CallStatusFailed
			rec.EndedAt = &now
			rec.Disposition = "concurrency slot rejected"
			if insErr := s.deps.Calls.Insert(ctx, rec); insErr != nil {
				log.Error("failed call record insert failed", "lead_id", item.LeadID, "err", insErr)
				return
			}
			log.Warn("dial rejected by slot guard", "session_id", sess.ID, "lead_id", item.LeadID)
			s.publishCall(ctx, rec)
			return
		}
	}

	if err := s.deps.Calls.Insert(ctx, rec); err != nil {
		log.Error("call record insert failed", "session_id", sess.ID, "lead_id", item.LeadID, "err", err)
		s.releaseSlot(ctx, sess.ID)
		return
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	res, err := s.deps.Provider.PlaceCall(dialCtx, telephony.PlaceCallRequest{
		SessionID:    sess.ID,
		CallID:       rec.ID,
		From:         s.cfg.From,
		To:           lead.Phone,
		ConferenceID: sess.ConferenceID,
	})
	cancel()
	if err != nil {
		ended := s.deps.Clock().UTC()
		rec.Status = CallStatusFailed
		rec.EndedAt = &ended
		rec.Disposition = fmt.Sprintf("dial placement failed: %v", err)
		if upErr := s.deps.Calls.Update(ctx, rec); upErr != nil {
			log.Error("failed call record update failed", "call_id", rec.ID, "err", upErr)
		}
		s.releaseSlot(ctx, sess.ID)
		log.Warn("dial placement failed", "session_id", sess.ID, "lead_id", item.LeadID, "err", err)
		s.publishCall(ctx, rec)
		return
	}

	rec.ProviderCallID = res.ProviderCallID
	if err := s.deps.Calls.Update(ctx, rec); err != nil {
		log.Error("call record update failed", "call_id", rec.ID, "err", err)
	}
	// Targeted increment: a Stop or Pause landing during the dial must not be
	// overwritten by a stale session snapshot.
	if err := s.deps.Sessions.IncrementCallsMade(ctx, sess.ID); err != nil {
		log.Error("calls_made increment failed", "session_id", sess.ID, "err", err)
	}
	log.Info("dial placed", "session_id", sess.ID, "lead_id", item.LeadID, "call_id", rec.ID, "provider_call_id", rec.ProviderCallID)
	s.publishCall(ctx, rec)
}

func (s *Scheduler) releaseSlot(ctx context.Context, sessionID string) {
	if s.deps.Slots == nil {
		return
	}
	if err := s.deps.Slots.Release(ctx, sessionID); err != nil {
		s.deps.Log.Warn("slot release failed", "session_id", sessionID, "err", err)
	}
}

func (s *Scheduler) publishCall(ctx context.Context, rec CallRecord) {
	s.publish(ctx, events.Event{
		Kind:      events.KindCallUpdated,
		RepID:     s.repID,
		SessionID: rec.SessionID,
		EntityID:  rec.ID,
		Status:    string(rec.Status),
	})
}

func (s *Scheduler) publish(ctx context.Context, ev events.Event) {
	if s.deps.Bus == nil {
		return
	}
	ev.OccurredAt = s.deps.Clock().UTC()
	if err := s.deps.Bus.Publish(ctx, ev); err != nil {
		s.deps.Log.Warn("event publish failed", "kind", ev.Kind, "session_id", ev.SessionID, "err", err)
	}
}

// SlotGuard is a Redis-backed concurrency cap shared across processes. It
// backs up, not replaces, the per-session single-goroutine serialization: if
// two processes ever schedule the same session, the cap still holds.
type SlotGuard struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

func NewSlotGuard(rdb *redis.Client, limit int, ttl time.Duration) *SlotGuard {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SlotGuard{rdb: rdb, limit: limit, ttl: ttl}
}

func (g *SlotGuard) Acquire(ctx context.Context, sessionID string) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, g.rdb, g.key(sessionID), g.limit, g.ttl)
}

func (g *SlotGuard) Release(ctx context.Context, sessionID string) error {
	return utils.ReleaseConcurrencyCap(ctx, g.rdb, g.key(sessionID))
}

func (g *SlotGuard) key(sessionID string) string {
	return "dialer:slots:" + sessionID
}
