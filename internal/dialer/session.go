package dialer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"dialer-platform/internal/conference"
	"dialer-platform/internal/directory"
	"dialer-platform/internal/events"
	"dialer-platform/internal/telephony"

	"github.com/google/uuid"
)

// Manager owns session lifecycle: start, pause/resume, stop, and the dial
// scheduler attached to each live session.
type Manager struct {
	sessions SessionRepo
	queue    QueueRepo
	calls    CallRepo

	provider    telephony.DialerProvider
	coordinator *conference.Coordinator
	leads       directory.Leads
	bus         events.Bus
	slots       *SlotGuard

	schedCfg SchedulerConfig

	log   *slog.Logger
	clock func() time.Time

	mu    sync.Mutex
	loops map[string]*Scheduler
}

type ManagerOptions struct {
	Sessions SessionRepo
	Queue    QueueRepo
	Calls    CallRepo

	Provider    telephony.DialerProvider
	Coordinator *conference.Coordinator
	Leads       directory.Leads
	Bus         events.Bus
	Slots       *SlotGuard

	Scheduler SchedulerConfig

	Log *slog.Logger
}

func NewManager(opts ManagerOptions) *Manager {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		sessions:    opts.Sessions,
		queue:       opts.Queue,
		calls:       opts.Calls,
		provider:    opts.Provider,
		coordinator: opts.Coordinator,
		leads:       opts.Leads,
		bus:         opts.Bus,
		slots:       opts.Slots,
		schedCfg:    opts.Scheduler.withDefaults(),
		log:         log,
		clock:       time.Now,
		loops:       map[string]*Scheduler{},
	}
}

// StartResult carries the new session plus the join target the rep's phone
// or softphone dials to anchor the conference.
type StartResult struct {
	Session       Session `json:"session"`
	RepJoinTarget string  `json:"rep_join_target"`
}

// Start creates a dialing session for the rep, allocates its conference, and
// launches the dial scheduler. Fails with ErrAlreadyActive if the rep
// already has a live session.
func (m *Manager) Start(ctx context.Context, repID string) (StartResult, error) {
	if repID == "" {
		return StartResult{}, ErrInvalidArgument
	}

	sessionID := uuid.NewString()
	conf, err := m.provider.CreateConference(ctx, telephony.CreateConferenceRequest{
		SessionID: sessionID,
		RepID:     repID,
	})
	if err != nil {
		return StartResult{}, err
	}

	sess := Session{
		ID:           sessionID,
		RepID:        repID,
		Status:       SessionStatusActive,
		ConferenceID: conf.ConferenceID,
		StartedAt:    m.clock().UTC(),
	}
	if err := m.sessions.Create(ctx, sess); err != nil {
		return StartResult{}, err
	}

	if m.coordinator != nil {
		if _, err := m.coordinator.RegisterRepLeg(ctx, conf.ConferenceID, repLegID(sessionID), repID); err != nil {
			m.log.Warn("rep leg not recorded", "session_id", sessionID, "err", err)
		}
	}

	m.spawn(context.WithoutCancel(ctx), sess)
	m.publishSession(ctx, sess)

	m.log.Info("session started", "session_id", sessionID, "rep_id", repID, "conference_id", conf.ConferenceID)
	return StartResult{Session: sess, RepJoinTarget: conf.RepJoinTarget}, nil
}

// Stop ends the session: future scheduling is canceled immediately, the
// queue is drained, and the conference anchor is closed out. Calls already
// placed keep running to their natural end; their terminal events are still
// applied after Stop.
func (m *Manager) Stop(ctx context.Context, repID, sessionID string) (Session, error) {
	sess, err := m.owned(ctx, repID, sessionID)
	if err != nil {
		return Session{}, err
	}
	if sess.Status == SessionStatusEnded {
		return Session{}, ErrSessionEnded
	}

	ended := m.clock().UTC()
	sess.Status = SessionStatusEnded
	sess.EndedAt = &ended
	if err := m.sessions.UpdateStatus(ctx, sessionID, SessionStatusEnded, &ended); err != nil {
		return Session{}, err
	}

	m.despawn(sessionID)

	if err := m.queue.Clear(ctx, sessionID); err != nil {
		m.log.Warn("queue clear failed on stop", "session_id", sessionID, "err", err)
	}
	if m.coordinator != nil {
		if err := m.coordinator.MarkLeft(ctx, sess.ConferenceID, repLegID(sessionID)); err != nil {
			m.log.Warn("rep leg close failed", "session_id", sessionID, "err", err)
		}
	}

	m.publishSession(ctx, sess)
	m.log.Info("session stopped", "session_id", sessionID, "rep_id", repID)
	return sess, nil
}

// Pause keeps the session alive but stops the scheduler from dialing.
func (m *Manager) Pause(ctx context.Context, repID, sessionID string) (Session, error) {
	sess, err := m.owned(ctx, repID, sessionID)
	if err != nil {
		return Session{}, err
	}
	if sess.Status == SessionStatusEnded {
		return Session{}, ErrSessionEnded
	}
	if sess.Status == SessionStatusPaused {
		return sess, nil
	}
	sess.Status = SessionStatusPaused
	if err := m.sessions.UpdateStatus(ctx, sessionID, SessionStatusPaused, nil); err != nil {
		return Session{}, err
	}
	m.publishSession(ctx, sess)
	return sess, nil
}

// Resume re-enables dialing for a paused session.
func (m *Manager) Resume(ctx context.Context, repID, sessionID string) (Session, error) {
	sess, err := m.owned(ctx, repID, sessionID)
	if err != nil {
		return Session{}, err
	}
	if sess.Status == SessionStatusEnded {
		return Session{}, ErrSessionEnded
	}
	if sess.Status == SessionStatusActive {
		return sess, nil
	}
	sess.Status = SessionStatusActive
	if err := m.sessions.UpdateStatus(ctx, sessionID, SessionStatusActive, nil); err != nil {
		return Session{}, err
	}
	m.Wake(sessionID)
	m.publishSession(ctx, sess)
	return sess, nil
}

// Get returns a session owned by the rep.
func (m *Manager) Get(ctx context.Context, repID, sessionID string) (Session, error) {
	return m.owned(ctx, repID, sessionID)
}

// ActiveFor returns the rep's live session, if any.
func (m *Manager) ActiveFor(ctx context.Context, repID string) (Session, error) {
	if repID == "" {
		return Session{}, ErrInvalidArgument
	}
	return m.sessions.FindActiveByRep(ctx, repID)
}

// Wake implements Waker: pokes the session's scheduler for an immediate
// pass. No-op when no scheduler is running (e.g. session ended).
func (m *Manager) Wake(sessionID string) {
	m.mu.Lock()
	loop := m.loops[sessionID]
	m.mu.Unlock()
	if loop != nil {
		loop.Wake()
	}
}

// ResumeSchedulers relaunches dial loops for sessions that were live before
// a restart. Callers should reconcile stale call records first.
func (m *Manager) ResumeSchedulers(ctx context.Context) error {
	live, err := m.sessions.ListNotEnded(ctx)
	if err != nil {
		return err
	}
	for _, sess := range live {
		m.spawn(ctx, sess)
		m.log.Info("scheduler resumed", "session_id", sess.ID, "rep_id", sess.RepID)
	}
	return nil
}

// Shutdown stops all dial loops. Sessions stay live in storage and resume on
// the next start.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	loops := make([]*Scheduler, 0, len(m.loops))
	for _, l := range m.loops {
		loops = append(loops, l)
	}
	m.loops = map[string]*Scheduler{}
	m.mu.Unlock()

	for _, l := range loops {
		l.Stop()
	}
}

func (m *Manager) spawn(ctx context.Context, sess Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.loops[sess.ID]; ok {
		return
	}
	loop := NewScheduler(sess.ID, sess.RepID, m.schedCfg, SchedulerDeps{
		Sessions: m.sessions,
		Queue:    m.queue,
		Calls:    m.calls,
		Provider: m.provider,
		Leads:    m.leads,
		Bus:      m.bus,
		Slots:    m.slots,
		Log:      m.log,
		Clock:    m.clock,
	})
	m.loops[sess.ID] = loop
	loop.Start(ctx)
}

func (m *Manager) despawn(sessionID string) {
	m.mu.Lock()
	loop := m.loops[sessionID]
	delete(m.loops, sessionID)
	m.mu.Unlock()
	if loop != nil {
		loop.Stop()
	}
}

func (m *Manager) owned(ctx context.Context, repID, sessionID string) (Session, error) {
	if repID == "" || sessionID == "" {
		return Session{}, ErrInvalidArgument
	}
	sess, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if sess.RepID != repID {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

func (m *Manager) publishSession(ctx context.Context, sess Session) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(ctx, events.Event{
		Kind:       events.KindSessionUpdated,
		RepID:      sess.RepID,
		SessionID:  sess.ID,
		EntityID:   sess.ID,
		Status:     string(sess.Status),
		OccurredAt: m.clock().UTC(),
	}); err != nil {
		m.log.Warn("session event publish failed", "session_id", sess.ID, "err", err)
	}
}

func repLegID(sessionID string) string {
	return "rep-" + sessionID
}
