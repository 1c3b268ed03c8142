package stats

import (
	"context"
	"errors"

	"dialer-platform/internal/dialer"
)

var ErrInvalidRequest = errors.New("stats: invalid request")

// Repository abstracts call record access for stats.
// dialer's call repositories satisfy this directly.
type Repository interface {
	ListBySession(ctx context.Context, sessionID string) ([]dialer.CallRecord, error)
}

// Service aggregates per-session call outcomes for the live dashboard.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

// SessionSummary is the outcome breakdown of one dialing session.
type SessionSummary struct {
	SessionID string `json:"session_id"`

	TotalCalls    int `json:"total_calls"`
	InFlightCalls int `json:"in_flight_calls"`

	CompletedCalls int `json:"completed_calls"`
	FailedCalls    int `json:"failed_calls"`
	NoAnswerCalls  int `json:"no_answer_calls"`
	BusyCalls      int `json:"busy_calls"`
	CanceledCalls  int `json:"canceled_calls"`

	ConnectedCalls int `json:"connected_calls"`

	TotalTalkSeconds int `json:"total_talk_seconds"`

	ConnectRate float64 `json:"connect_rate"`
}

func (s *Service) SessionSummary(ctx context.Context, sessionID string) (SessionSummary, error) {
	if sessionID == "" {
		return SessionSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return SessionSummary{}, errors.New("stats: repository not configured")
	}

	rows, err := s.repo.ListBySession(ctx, sessionID)
	if err != nil {
		return SessionSummary{}, err
	}

	out := SessionSummary{SessionID: sessionID}
	for _, rec := range rows {
		out.TotalCalls++
		if !rec.Status.Terminal() {
			out.InFlightCalls++
		}
		if rec.ConnectedAt != nil {
			out.ConnectedCalls++
			if rec.EndedAt != nil {
				out.TotalTalkSeconds += int(rec.EndedAt.Sub(*rec.ConnectedAt).Seconds())
			}
		}
		switch rec.Status {
		case dialer.CallStatusCompleted:
			out.CompletedCalls++
		case dialer.CallStatusFailed:
			out.FailedCalls++
		case dialer.CallStatusNoAnswer:
			out.NoAnswerCalls++
		case dialer.CallStatusBusy:
			out.BusyCalls++
		case dialer.CallStatusCanceled:
			out.CanceledCalls++
		case dialer.CallStatusDialing, dialer.CallStatusRinging, dialer.CallStatusAnswered, dialer.CallStatusConnected:
			// in flight; counted above
		}
	}
	if out.TotalCalls > 0 {
		out.ConnectRate = float64(out.ConnectedCalls) / float64(out.TotalCalls)
	}
	return out, nil
}
