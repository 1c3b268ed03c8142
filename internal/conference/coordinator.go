package conference

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dialer-platform/internal/directory"
	"dialer-platform/internal/telephony"
)

// Repository is the persistence contract for conference participants.
type Repository interface {
	Add(ctx context.Context, p Participant) error
	MarkLeft(ctx context.Context, conferenceID, legID string, at time.Time) error
	ListByConference(ctx context.Context, conferenceID string) ([]Participant, error)
}

var (
	ErrInvalidArgument = errors.New("conference: invalid argument")

	// ErrJoinFailed signals a degraded state: the leg is live at the provider
	// but could not be merged or recorded. Callers surface a warning, not a
	// fatal error.
	ErrJoinFailed = errors.New("conference: join failed")
)

// Coordinator maintains the rep's conference as the one persistent bridge
// and merges connected legs into it.
//
// Policy: when several calls become connected concurrently, all of them are
// merged into the same conference. The engine deliberately does not pick one
// conversation; this is the "blast and join whoever answers" dialer pattern,
// and callers must not assume call isolation.
type Coordinator struct {
	repo      Repository
	provider  telephony.DialerProvider
	directory directory.Colleagues

	log   *slog.Logger
	clock func() time.Time
}

func NewCoordinator(repo Repository, provider telephony.DialerProvider, colleagues directory.Colleagues, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		repo:      repo,
		provider:  provider,
		directory: colleagues,
		log:       log,
		clock:     time.Now,
	}
}

// RegisterRepLeg records the anchor leg created at session start.
func (c *Coordinator) RegisterRepLeg(ctx context.Context, conferenceID, legID, displayName string) (Participant, error) {
	if conferenceID == "" || legID == "" {
		return Participant{}, ErrInvalidArgument
	}
	p := Participant{
		ConferenceID: conferenceID,
		LegID:        legID,
		Role:         RoleRep,
		DisplayName:  displayName,
		JoinedAt:     c.clock().UTC(),
	}
	if err := c.repo.Add(ctx, p); err != nil {
		return Participant{}, err
	}
	return p, nil
}

// MergeLeadLeg records a connected call leg as a conference participant. The
// provider has already bridged the audio (the leg's answer TwiML sent it
// into the conference); this tracks membership for dashboards and the
// add-participant surface.
func (c *Coordinator) MergeLeadLeg(ctx context.Context, conferenceID, legID, displayName string) (Participant, error) {
	if conferenceID == "" || legID == "" {
		return Participant{}, ErrInvalidArgument
	}
	p := Participant{
		ConferenceID: conferenceID,
		LegID:        legID,
		Role:         RoleLead,
		DisplayName:  displayName,
		JoinedAt:     c.clock().UTC(),
	}
	if err := c.repo.Add(ctx, p); err != nil {
		c.log.Warn("lead leg merge not recorded", "conference_id", conferenceID, "leg_id", legID, "err", err)
		return Participant{}, errors.Join(ErrJoinFailed, err)
	}
	return p, nil
}

// AddParticipant dials an ad-hoc colleague into the live conference.
func (c *Coordinator) AddParticipant(ctx context.Context, conferenceID, colleagueID, from string) (Participant, error) {
	if conferenceID == "" || colleagueID == "" {
		return Participant{}, ErrInvalidArgument
	}
	if c.provider == nil || c.directory == nil {
		return Participant{}, errors.New("conference: provider and directory required for add-participant")
	}

	col, err := c.directory.Colleague(ctx, colleagueID)
	if err != nil {
		return Participant{}, err
	}

	res, err := c.provider.AddConferenceParticipant(ctx, telephony.AddParticipantRequest{
		ConferenceID: conferenceID,
		From:         from,
		Target:       col.DialTarget,
	})
	if err != nil {
		return Participant{}, errors.Join(ErrJoinFailed, err)
	}

	p := Participant{
		ConferenceID: conferenceID,
		LegID:        res.LegID,
		Role:         RoleGuest,
		DisplayName:  col.DisplayName,
		JoinedAt:     c.clock().UTC(),
	}
	if err := c.repo.Add(ctx, p); err != nil {
		// The guest leg is live at the provider even if tracking failed.
		c.log.Warn("guest leg not recorded", "conference_id", conferenceID, "leg_id", res.LegID, "err", err)
		return p, errors.Join(ErrJoinFailed, err)
	}
	return p, nil
}

// MarkLeft closes out a participant row when its leg ends.
func (c *Coordinator) MarkLeft(ctx context.Context, conferenceID, legID string) error {
	if conferenceID == "" || legID == "" {
		return ErrInvalidArgument
	}
	return c.repo.MarkLeft(ctx, conferenceID, legID, c.clock().UTC())
}

// Participants lists the membership of a conference, rep anchor included.
func (c *Coordinator) Participants(ctx context.Context, conferenceID string) ([]Participant, error) {
	if conferenceID == "" {
		return nil, ErrInvalidArgument
	}
	return c.repo.ListByConference(ctx, conferenceID)
}
