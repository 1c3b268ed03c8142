package conference

import (
	"context"
	"errors"
	"testing"

	"dialer-platform/internal/directory"
	"dialer-platform/internal/telephony"
)

type stubProvider struct {
	addErr   error
	addCalls []telephony.AddParticipantRequest
}

func (p *stubProvider) Name() string                        { return "stub" }
func (p *stubProvider) HealthCheck(_ context.Context) error { return nil }

func (p *stubProvider) CreateConference(_ context.Context, req telephony.CreateConferenceRequest) (telephony.CreateConferenceResult, error) {
	return telephony.CreateConferenceResult{ConferenceID: "conf-" + req.SessionID}, nil
}

func (p *stubProvider) PlaceCall(_ context.Context, _ telephony.PlaceCallRequest) (telephony.PlaceCallResult, error) {
	return telephony.PlaceCallResult{ProviderCallID: "CA1"}, nil
}

func (p *stubProvider) AddConferenceParticipant(_ context.Context, req telephony.AddParticipantRequest) (telephony.AddParticipantResult, error) {
	if p.addErr != nil {
		return telephony.AddParticipantResult{}, p.addErr
	}
	p.addCalls = append(p.addCalls, req)
	return telephony.AddParticipantResult{LegID: "CAguest1"}, nil
}

func (p *stubProvider) Hangup(_ context.Context, _ string) error { return nil }

func (p *stubProvider) CallStatus(_ context.Context, _ string) (telephony.StatusEvent, error) {
	return telephony.StatusEvent{}, errors.New("not implemented")
}

func newTestCoordinator(provider *stubProvider) (*Coordinator, *MemoryRepo, *directory.MemoryDirectory) {
	repo := NewMemoryRepo()
	dir := directory.NewMemoryDirectory()
	return NewCoordinator(repo, provider, dir, nil), repo, dir
}

func TestRegisterRepLegAndMergeLeadLeg(t *testing.T) {
	c, repo, _ := newTestCoordinator(&stubProvider{})

	if _, err := c.RegisterRepLeg(context.Background(), "conf-1", "rep-leg", "rep-1"); err != nil {
		t.Fatalf("register rep: %v", err)
	}
	if _, err := c.MergeLeadLeg(context.Background(), "conf-1", "CA1", "Ada Lovelace"); err != nil {
		t.Fatalf("merge lead: %v", err)
	}

	parts, err := repo.ListByConference(context.Background(), "conf-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("expected rep + lead, got %d", len(parts))
	}
	if parts[0].Role != RoleRep || parts[1].Role != RoleLead {
		t.Fatalf("unexpected roles: %+v", parts)
	}
	if parts[1].DisplayName != "Ada Lovelace" {
		t.Fatalf("display name lost: %+v", parts[1])
	}
}

func TestAddParticipant_DialsColleague(t *testing.T) {
	provider := &stubProvider{}
	c, repo, dir := newTestCoordinator(provider)
	dir.AddColleague(directory.Colleague{ID: "col-1", DialTarget: "+15550009999", DisplayName: "Grace"})

	p, err := c.AddParticipant(context.Background(), "conf-1", "col-1", "+15550000001")
	if err != nil {
		t.Fatalf("add participant: %v", err)
	}
	if p.Role != RoleGuest || p.LegID != "CAguest1" {
		t.Fatalf("unexpected participant %+v", p)
	}

	if len(provider.addCalls) != 1 || provider.addCalls[0].Target != "+15550009999" {
		t.Fatalf("provider not dialed correctly: %+v", provider.addCalls)
	}
	parts, _ := repo.ListByConference(context.Background(), "conf-1")
	if len(parts) != 1 {
		t.Fatalf("guest not tracked")
	}
}

func TestAddParticipant_UnknownColleague(t *testing.T) {
	c, _, _ := newTestCoordinator(&stubProvider{})
	if _, err := c.AddParticipant(context.Background(), "conf-1", "ghost", "+15550000001"); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected directory.ErrNotFound, got %v", err)
	}
}

func TestAddParticipant_ProviderFailure(t *testing.T) {
	provider := &stubProvider{addErr: errors.New("twilio 500")}
	c, repo, dir := newTestCoordinator(provider)
	dir.AddColleague(directory.Colleague{ID: "col-1", DialTarget: "+15550009999"})

	if _, err := c.AddParticipant(context.Background(), "conf-1", "col-1", "+15550000001"); !errors.Is(err, ErrJoinFailed) {
		t.Fatalf("expected ErrJoinFailed, got %v", err)
	}
	parts, _ := repo.ListByConference(context.Background(), "conf-1")
	if len(parts) != 0 {
		t.Fatalf("failed join must not be tracked")
	}
}

func TestMarkLeft(t *testing.T) {
	c, repo, _ := newTestCoordinator(&stubProvider{})

	if _, err := c.MergeLeadLeg(context.Background(), "conf-1", "CA1", ""); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := c.MarkLeft(context.Background(), "conf-1", "CA1"); err != nil {
		t.Fatalf("mark left: %v", err)
	}
	parts, _ := repo.ListByConference(context.Background(), "conf-1")
	if parts[0].LeftAt == nil {
		t.Fatalf("expected left_at set")
	}
}
