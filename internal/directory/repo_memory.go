package directory

import (
	"context"
	"sync"
)

// MemoryDirectory is a simple in-memory directory for tests and early
// development.
type MemoryDirectory struct {
	mu sync.Mutex

	LeadsByID      map[string]Lead
	ColleaguesByID map[string]Colleague
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		LeadsByID:      map[string]Lead{},
		ColleaguesByID: map[string]Colleague{},
	}
}

func (d *MemoryDirectory) AddLead(l Lead) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.LeadsByID[l.ID] = l
}

func (d *MemoryDirectory) AddColleague(c Colleague) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ColleaguesByID[c.ID] = c
}

func (d *MemoryDirectory) Lead(ctx context.Context, leadID string) (Lead, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.LeadsByID[leadID]
	if !ok {
		return Lead{}, ErrNotFound
	}
	return l, nil
}

func (d *MemoryDirectory) Colleague(ctx context.Context, colleagueID string) (Colleague, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.ColleaguesByID[colleagueID]
	if !ok {
		return Colleague{}, ErrNotFound
	}
	return c, nil
}
