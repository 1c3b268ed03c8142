package dialer

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory repositories for tests and early development. A single mutex per
// repo doubles as the single-writer lock the queue claim contract requires.

type MemorySessionRepo struct {
	mu       sync.Mutex
	Sessions map[string]Session
}

func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{Sessions: map[string]Session{}}
}

func (r *MemorySessionRepo) Create(ctx context.Context, s Session) error {
	if s.ID == "" || s.RepID == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.Sessions {
		if existing.RepID == s.RepID && existing.Status != SessionStatusEnded {
			return ErrAlreadyActive
		}
	}
	r.Sessions[s.ID] = s
	return nil
}

func (r *MemorySessionRepo) Get(ctx context.Context, id string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.Sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (r *MemorySessionRepo) FindActiveByRep(ctx context.Context, repID string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.Sessions {
		if s.RepID == repID && s.Status != SessionStatusEnded {
			return s, nil
		}
	}
	return Session{}, ErrNotFound
}

func (r *MemorySessionRepo) UpdateStatus(ctx context.Context, id string, status SessionStatus, endedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.Sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Status = status
	s.EndedAt = endedAt
	r.Sessions[id] = s
	return nil
}

func (r *MemorySessionRepo) IncrementCallsMade(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.Sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.CallsMade++
	r.Sessions[id] = s
	return nil
}

func (r *MemorySessionRepo) IncrementCallsConnected(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.Sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.CallsConnected++
	r.Sessions[id] = s
	return nil
}

func (r *MemorySessionRepo) ListNotEnded(ctx context.Context) ([]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, 0)
	for _, s := range r.Sessions {
		if s.Status != SessionStatusEnded {
			out = append(out, s)
		}
	}
	return out, nil
}

type MemoryQueueRepo struct {
	mu    sync.Mutex
	Items []QueueItem
}

func NewMemoryQueueRepo() *MemoryQueueRepo { return &MemoryQueueRepo{} }

func (r *MemoryQueueRepo) Insert(ctx context.Context, item QueueItem) error {
	if item.ID == "" || item.SessionID == "" || item.LeadID == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.Items {
		if it.SessionID == item.SessionID && it.LeadID == item.LeadID && it.Status != QueueItemStatusRemoved {
			return ErrDuplicateLead
		}
	}
	r.Items = append(r.Items, item)
	return nil
}

func (r *MemoryQueueRepo) Claim(ctx context.Context, sessionID string, n int) ([]QueueItem, error) {
	if n <= 0 {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := make([]int, 0)
	for i, it := range r.Items {
		if it.SessionID == sessionID && it.Status == QueueItemStatusQueued {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ia, ib := r.Items[idx[a]], r.Items[idx[b]]
		if ia.Priority != ib.Priority {
			return ia.Priority > ib.Priority
		}
		return ia.EnqueuedAt.Before(ib.EnqueuedAt)
	})
	if len(idx) > n {
		idx = idx[:n]
	}

	out := make([]QueueItem, 0, len(idx))
	for _, i := range idx {
		r.Items[i].Status = QueueItemStatusDialing
		out = append(out, r.Items[i])
	}
	return out, nil
}

func (r *MemoryQueueRepo) MarkRemoved(ctx context.Context, sessionID, leadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.Items {
		it := &r.Items[i]
		if it.SessionID == sessionID && it.LeadID == leadID && it.Status == QueueItemStatusQueued {
			it.Status = QueueItemStatusRemoved
		}
	}
	return nil
}

func (r *MemoryQueueRepo) Consume(ctx context.Context, itemID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.Items {
		if r.Items[i].ID == itemID {
			r.Items[i].Status = QueueItemStatusRemoved
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryQueueRepo) Clear(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.Items {
		it := &r.Items[i]
		if it.SessionID == sessionID && it.Status == QueueItemStatusQueued {
			it.Status = QueueItemStatusRemoved
		}
	}
	return nil
}

func (r *MemoryQueueRepo) CountQueued(ctx context.Context, sessionID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, it := range r.Items {
		if it.SessionID == sessionID && it.Status == QueueItemStatusQueued {
			n++
		}
	}
	return n, nil
}

func (r *MemoryQueueRepo) ListQueued(ctx context.Context, sessionID string) ([]QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]QueueItem, 0)
	for _, it := range r.Items {
		if it.SessionID == sessionID && it.Status == QueueItemStatusQueued {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Priority != out[b].Priority {
			return out[a].Priority > out[b].Priority
		}
		return out[a].EnqueuedAt.Before(out[b].EnqueuedAt)
	})
	return out, nil
}

type MemoryCallRepo struct {
	mu    sync.Mutex
	Calls map[string]CallRecord
}

func NewMemoryCallRepo() *MemoryCallRepo {
	return &MemoryCallRepo{Calls: map[string]CallRecord{}}
}

func (r *MemoryCallRepo) Insert(ctx context.Context, rec CallRecord) error {
	if rec.ID == "" || rec.SessionID == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls[rec.ID] = rec
	return nil
}

func (r *MemoryCallRepo) Get(ctx context.Context, id string) (CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.Calls[id]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return rec, nil
}

func (r *MemoryCallRepo) FindByProviderID(ctx context.Context, providerCallID string) (CallRecord, error) {
	if providerCallID == "" {
		return CallRecord{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.Calls {
		if rec.ProviderCallID == providerCallID {
			return rec, nil
		}
	}
	return CallRecord{}, ErrNotFound
}

func (r *MemoryCallRepo) Update(ctx context.Context, rec CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.Calls[rec.ID]; !ok {
		return ErrNotFound
	}
	r.Calls[rec.ID] = rec
	return nil
}

func (r *MemoryCallRepo) ListBySession(ctx context.Context, sessionID string) ([]CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallRecord, 0)
	for _, rec := range r.Calls {
		if rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].DialedAt.Before(out[b].DialedAt)
	})
	return out, nil
}

func (r *MemoryCallRepo) CountNonTerminal(ctx context.Context, sessionID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.Calls {
		if rec.SessionID == sessionID && !rec.Status.Terminal() {
			n++
		}
	}
	return n, nil
}

func (r *MemoryCallRepo) ListStaleNonTerminal(ctx context.Context, sessionID string, cutoff time.Time) ([]CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallRecord, 0)
	for _, rec := range r.Calls {
		if rec.SessionID == sessionID && !rec.Status.Terminal() && rec.DialedAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out, nil
}
