package dialer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dialer-platform/internal/events"

	"github.com/google/uuid"
)

// Waker pokes a session's scheduler so it runs a pass without waiting for
// the next tick. Implementations must never block.
type Waker interface {
	Wake(sessionID string)
}

// QueueService manages per-session call queues.
//
// Enqueue is idempotent per lead per session: duplicates are skipped
// silently so UI retries and double-clicks cannot double-dial a lead.
type QueueService struct {
	sessions SessionRepo
	queue    QueueRepo
	bus      events.Bus
	waker    Waker

	log   *slog.Logger
	clock func() time.Time
}

func NewQueueService(sessions SessionRepo, queue QueueRepo, bus events.Bus, waker Waker, log *slog.Logger) *QueueService {
	if log == nil {
		log = slog.Default()
	}
	return &QueueService{
		sessions: sessions,
		queue:    queue,
		bus:      bus,
		waker:    waker,
		log:      log,
		clock:    time.Now,
	}
}

// Enqueue adds a batch of leads to the session's queue and returns how many
// were actually added (duplicates excluded).
func (s *QueueService) Enqueue(ctx context.Context, sessionID string, leadIDs []string, priority int) (int, error) {
	if sessionID == "" || len(leadIDs) == 0 {
		return 0, ErrInvalidArgument
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if sess.Status == SessionStatusEnded {
		return 0, ErrSessionEnded
	}

	now := s.clock().UTC()
	added := 0
	for _, leadID := range leadIDs {
		if leadID == "" {
			continue
		}
		item := QueueItem{
			ID:         uuid.NewString(),
			SessionID:  sessionID,
			LeadID:     leadID,
			Priority:   priority,
			Status:     QueueItemStatusQueued,
			EnqueuedAt: now,
		}
		if err := s.queue.Insert(ctx, item); err != nil {
			if errors.Is(err, ErrDuplicateLead) {
				continue
			}
			return added, err
		}
		added++
		// Keep enqueue order stable within a batch at equal priority.
		now = now.Add(time.Microsecond)
	}

	if added > 0 {
		s.publish(ctx, sess)
		if s.waker != nil {
			s.waker.Wake(sessionID)
		}
	}
	return added, nil
}

// Remove drops a lead's queued item. Items already claimed for dialing are
// not affected.
func (s *QueueService) Remove(ctx context.Context, sessionID, leadID string) error {
	if sessionID == "" || leadID == "" {
		return ErrInvalidArgument
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.queue.MarkRemoved(ctx, sessionID, leadID); err != nil {
		return err
	}
	s.publish(ctx, sess)
	return nil
}

// Clear drops every queued item for the session.
func (s *QueueService) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidArgument
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.queue.Clear(ctx, sessionID); err != nil {
		return err
	}
	s.publish(ctx, sess)
	return nil
}

func (s *QueueService) Count(ctx context.Context, sessionID string) (int, error) {
	if sessionID == "" {
		return 0, ErrInvalidArgument
	}
	return s.queue.CountQueued(ctx, sessionID)
}

func (s *QueueService) List(ctx context.Context, sessionID string) ([]QueueItem, error) {
	if sessionID == "" {
		return nil, ErrInvalidArgument
	}
	return s.queue.ListQueued(ctx, sessionID)
}

func (s *QueueService) publish(ctx context.Context, sess Session) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, events.Event{
		Kind:       events.KindQueueUpdated,
		RepID:      sess.RepID,
		SessionID:  sess.ID,
		OccurredAt: s.clock().UTC(),
	}); err != nil {
		s.log.Warn("queue event publish failed", "session_id", sess.ID, "err", err)
	}
}
