package dialer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"dialer-platform/internal/telephony"
)

// fakeProvider is a scriptable in-memory stand-in for the Twilio adapter.
type fakeProvider struct {
	mu sync.Mutex

	placed   []telephony.PlaceCallRequest
	placeErr error
	nextSID  int

	// placeHook runs during PlaceCall, before the result is returned.
	placeHook func()

	hangups []string

	statusByID map[string]telephony.StatusEvent
	statusErr  error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{statusByID: map[string]telephony.StatusEvent{}}
}

func (p *fakeProvider) Name() string                        { return "fake" }
func (p *fakeProvider) HealthCheck(_ context.Context) error { return nil }

func (p *fakeProvider) CreateConference(_ context.Context, req telephony.CreateConferenceRequest) (telephony.CreateConferenceResult, error) {
	return telephony.CreateConferenceResult{
		ConferenceID:  "conf-" + req.SessionID,
		RepJoinTarget: "client:conf-" + req.SessionID,
	}, nil
}

func (p *fakeProvider) PlaceCall(_ context.Context, req telephony.PlaceCallRequest) (telephony.PlaceCallResult, error) {
	p.mu.Lock()
	if p.placeErr != nil {
		p.mu.Unlock()
		return telephony.PlaceCallResult{}, p.placeErr
	}
	p.nextSID++
	p.placed = append(p.placed, req)
	sid := fmt.Sprintf("CA%04d", p.nextSID)
	hook := p.placeHook
	p.mu.Unlock()

	if hook != nil {
		hook()
	}
	return telephony.PlaceCallResult{ProviderCallID: sid}, nil
}

func (p *fakeProvider) AddConferenceParticipant(_ context.Context, req telephony.AddParticipantRequest) (telephony.AddParticipantResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextSID++
	return telephony.AddParticipantResult{LegID: fmt.Sprintf("CAguest%04d", p.nextSID)}, nil
}

func (p *fakeProvider) Hangup(_ context.Context, providerCallID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hangups = append(p.hangups, providerCallID)
	return nil
}

func (p *fakeProvider) CallStatus(_ context.Context, providerCallID string) (telephony.StatusEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.statusErr != nil {
		return telephony.StatusEvent{}, p.statusErr
	}
	ev, ok := p.statusByID[providerCallID]
	if !ok {
		return telephony.StatusEvent{}, fmt.Errorf("fake: unknown call %s", providerCallID)
	}
	return ev, nil
}

func (p *fakeProvider) placedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.placed)
}

// fakeWaker records wake requests.
type fakeWaker struct {
	mu    sync.Mutex
	wakes []string
}

func (w *fakeWaker) Wake(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.wakes = append(w.wakes, sessionID)
}

func (w *fakeWaker) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.wakes)
}

func statusEvent(providerCallID, status string) telephony.StatusEvent {
	return telephony.StatusEvent{
		ProviderCallID: providerCallID,
		Status:         status,
		OccurredAt:     time.Now().UTC(),
	}
}

func mustCreateSession(t *testing.T, repo SessionRepo, id, repID string) Session {
	t.Helper()
	sess := Session{
		ID:           id,
		RepID:        repID,
		Status:       SessionStatusActive,
		ConferenceID: "conf-" + id,
		StartedAt:    time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), sess); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sess
}
