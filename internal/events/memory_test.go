package events

import (
	"context"
	"testing"
	"time"
)

func TestMemoryBus_PublishReachesRepSubscribersOnly(t *testing.T) {
	b := NewMemoryBus()

	ch1, cancel1, err := b.Subscribe(context.Background(), "rep-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel1()
	ch2, cancel2, err := b.Subscribe(context.Background(), "rep-2")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel2()

	ev := Event{Kind: KindCallUpdated, RepID: "rep-1", SessionID: "s1", OccurredAt: time.Now().UTC()}
	if err := b.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-ch1:
		if got.Kind != KindCallUpdated || got.SessionID != "s1" {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("rep-1 subscriber never received event")
	}

	select {
	case got := <-ch2:
		t.Fatalf("rep-2 must not receive rep-1 events, got %+v", got)
	default:
	}
}

func TestMemoryBus_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewMemoryBus()
	b.buffer = 1

	_, cancel, err := b.Subscribe(context.Background(), "rep-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	// Nobody drains; the second publish must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = b.Publish(context.Background(), Event{Kind: KindQueueUpdated, RepID: "rep-1"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on slow subscriber")
	}
}

func TestMemoryBus_CancelClosesChannel(t *testing.T) {
	b := NewMemoryBus()

	ch, cancel, err := b.Subscribe(context.Background(), "rep-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()
	cancel() // idempotent

	select {
	case _, open := <-ch:
		if open {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after cancel")
	}

	// Publishing after cancel must not panic or error.
	if err := b.Publish(context.Background(), Event{Kind: KindSessionUpdated, RepID: "rep-1"}); err != nil {
		t.Fatalf("publish after cancel: %v", err)
	}
}

func TestMemoryBus_ContextCancellationUnsubscribes(t *testing.T) {
	b := NewMemoryBus()

	ctx, cancelCtx := context.WithCancel(context.Background())
	ch, cancel, err := b.Subscribe(ctx, "rep-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	cancelCtx()
	select {
	case _, open := <-ch:
		if open {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after context cancel")
	}
}
