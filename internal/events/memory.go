package events

import (
	"context"
	"sync"
)

// MemoryBus is an in-process bus for tests and single-node development.
// Slow subscribers lose events rather than block publishers; subscribers
// reconcile against authoritative state, so this is acceptable.
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[string]map[int]chan Event
	nextID int
	buffer int
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: map[string]map[int]chan Event{}, buffer: 64}
}

func (b *MemoryBus) Publish(ctx context.Context, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[ev.RepID] {
		select {
		case ch <- ev:
		default:
			// subscriber too slow; drop
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, repID string) (<-chan Event, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan Event, b.buffer)
	if b.subs[repID] == nil {
		b.subs[repID] = map[int]chan Event{}
	}
	b.subs[repID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[repID], id)
			if len(b.subs[repID]) == 0 {
				delete(b.subs, repID)
			}
			close(ch)
		})
	}

	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return ch, cancel, nil
}
