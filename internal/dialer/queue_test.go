package dialer

import (
	"context"
	"errors"
	"testing"
	"time"

	"dialer-platform/internal/events"
)

func newQueueFixture(t *testing.T) (*QueueService, *MemorySessionRepo, *MemoryQueueRepo, *fakeWaker, Session) {
	t.Helper()
	sessions := NewMemorySessionRepo()
	queue := NewMemoryQueueRepo()
	waker := &fakeWaker{}
	svc := NewQueueService(sessions, queue, events.NewMemoryBus(), waker, nil)
	sess := mustCreateSession(t, sessions, "s1", "rep-1")
	return svc, sessions, queue, waker, sess
}

func TestEnqueue_AddsBatchAndWakes(t *testing.T) {
	svc, _, _, waker, sess := newQueueFixture(t)

	added, err := svc.Enqueue(context.Background(), sess.ID, []string{"l1", "l2", "l3"}, 0)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if added != 3 {
		t.Fatalf("expected 3 added, got %d", added)
	}
	if waker.count() != 1 {
		t.Fatalf("expected one wake, got %d", waker.count())
	}

	n, err := svc.Count(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 queued, got %d", n)
	}
}

func TestEnqueue_SkipsDuplicateLeadsSilently(t *testing.T) {
	svc, _, _, _, sess := newQueueFixture(t)

	if _, err := svc.Enqueue(context.Background(), sess.ID, []string{"l1", "l2"}, 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	added, err := svc.Enqueue(context.Background(), sess.ID, []string{"l2", "l3", "l2"}, 0)
	if err != nil {
		t.Fatalf("enqueue with duplicates: %v", err)
	}
	if added != 1 {
		t.Fatalf("expected only l3 added, got %d", added)
	}

	items, err := svc.List(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 queued items, got %d", len(items))
	}
}

func TestEnqueue_OrderIsPriorityThenFIFO(t *testing.T) {
	svc, _, queue, _, sess := newQueueFixture(t)

	if _, err := svc.Enqueue(context.Background(), sess.ID, []string{"low1", "low2"}, 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := svc.Enqueue(context.Background(), sess.ID, []string{"hot"}, 10); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	claimed, err := queue.Claim(context.Background(), sess.ID, 2)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 claimed, got %d", len(claimed))
	}
	if claimed[0].LeadID != "hot" {
		t.Fatalf("expected high priority first, got %s", claimed[0].LeadID)
	}
	if claimed[1].LeadID != "low1" {
		t.Fatalf("expected FIFO within priority, got %s", claimed[1].LeadID)
	}
}

func TestEnqueue_RejectsEndedSession(t *testing.T) {
	svc, sessions, _, _, sess := newQueueFixture(t)

	ended := time.Now().UTC()
	if err := sessions.UpdateStatus(context.Background(), sess.ID, SessionStatusEnded, &ended); err != nil {
		t.Fatalf("update: %v", err)
	}

	if _, err := svc.Enqueue(context.Background(), sess.ID, []string{"l1"}, 0); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}
}

func TestRemove_OnlyDropsQueuedItems(t *testing.T) {
	svc, _, queue, _, sess := newQueueFixture(t)

	if _, err := svc.Enqueue(context.Background(), sess.ID, []string{"l1", "l2"}, 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	// l1 gets claimed for dialing; remove should not touch it.
	claimed, err := queue.Claim(context.Background(), sess.ID, 1)
	if err != nil || len(claimed) != 1 || claimed[0].LeadID != "l1" {
		t.Fatalf("claim setup failed: %v %v", claimed, err)
	}

	if err := svc.Remove(context.Background(), sess.ID, "l1"); err != nil {
		t.Fatalf("remove claimed: %v", err)
	}
	if err := svc.Remove(context.Background(), sess.ID, "l2"); err != nil {
		t.Fatalf("remove queued: %v", err)
	}

	n, _ := svc.Count(context.Background(), sess.ID)
	if n != 0 {
		t.Fatalf("expected empty queue, got %d", n)
	}
	// The claimed item must still be dialing, not removed.
	for _, it := range queue.Items {
		if it.LeadID == "l1" && it.Status != QueueItemStatusDialing {
			t.Fatalf("claimed item mutated by remove: %+v", it)
		}
	}
}

func TestClear_EmptiesQueue(t *testing.T) {
	svc, _, _, _, sess := newQueueFixture(t)

	if _, err := svc.Enqueue(context.Background(), sess.ID, []string{"l1", "l2", "l3"}, 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := svc.Clear(context.Background(), sess.ID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	n, _ := svc.Count(context.Background(), sess.ID)
	if n != 0 {
		t.Fatalf("expected empty queue, got %d", n)
	}
}

func TestEnqueue_ReaddAfterRemoveAllowed(t *testing.T) {
	svc, _, _, _, sess := newQueueFixture(t)

	if _, err := svc.Enqueue(context.Background(), sess.ID, []string{"l1"}, 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := svc.Remove(context.Background(), sess.ID, "l1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	added, err := svc.Enqueue(context.Background(), sess.ID, []string{"l1"}, 0)
	if err != nil {
		t.Fatalf("re-enqueue: %v", err)
	}
	if added != 1 {
		t.Fatalf("expected re-add after remove, got %d", added)
	}
}
