package conference

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is a simple in-memory participant store for tests and early
// development.
type MemoryRepo struct {
	mu sync.Mutex

	Participants []Participant
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Add(ctx context.Context, p Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Participants = append(r.Participants, p)
	return nil
}

func (r *MemoryRepo) MarkLeft(ctx context.Context, conferenceID, legID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.Participants {
		p := &r.Participants[i]
		if p.ConferenceID == conferenceID && p.LegID == legID && p.LeftAt == nil {
			t := at
			p.LeftAt = &t
			return nil
		}
	}
	return nil
}

func (r *MemoryRepo) ListByConference(ctx context.Context, conferenceID string) ([]Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Participant, 0)
	for _, p := range r.Participants {
		if p.ConferenceID == conferenceID {
			out = append(out, p)
		}
	}
	return out, nil
}
