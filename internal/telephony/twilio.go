package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TwilioProvider drives outbound calls through the Twilio REST API.
//
// It deliberately avoids the Twilio SDK: the adapter only needs a handful of
// form-encoded endpoints, and keeping it SDK-free keeps the boundary thin.
type TwilioProvider struct {
	accountSID string
	authToken  string

	// apiBase is overridable for tests; defaults to the public Twilio API.
	apiBase string

	// publicBaseURL is this service's externally reachable base URL, used to
	// build answer/status callback URLs.
	publicBaseURL string

	httpClient *http.Client
}

type TwilioOptions struct {
	AccountSID    string
	AuthToken     string
	PublicBaseURL string

	// APIBase overrides the Twilio endpoint (tests only).
	APIBase string

	HTTPClient *http.Client
}

func NewTwilioProvider(opts TwilioOptions) (*TwilioProvider, error) {
	if opts.AccountSID == "" || opts.AuthToken == "" {
		return nil, errors.New("telephony: twilio account sid and auth token are required")
	}
	if opts.PublicBaseURL == "" {
		return nil, errors.New("telephony: public base url is required for twilio callbacks")
	}
	p := &TwilioProvider{
		accountSID:    opts.AccountSID,
		authToken:     opts.AuthToken,
		apiBase:       opts.APIBase,
		publicBaseURL: strings.TrimRight(opts.PublicBaseURL, "/"),
		httpClient:    opts.HTTPClient,
	}
	if p.apiBase == "" {
		p.apiBase = "https://api.twilio.com/2010-04-01"
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return p, nil
}

func (p *TwilioProvider) Name() string { return "twilio" }

func (p *TwilioProvider) HealthCheck(ctx context.Context) error {
	// Fetch the account resource; cheap and requires valid credentials.
	_, err := p.get(ctx, fmt.Sprintf("/Accounts/%s.json", p.accountSID))
	return err
}

// CreateConference names a conference for the session. Twilio conferences are
// created lazily on first join, so no API call is needed here; the rep join
// target is the answer endpoint that renders the conference TwiML.
func (p *TwilioProvider) CreateConference(ctx context.Context, req CreateConferenceRequest) (CreateConferenceResult, error) {
	if req.SessionID == "" {
		return CreateConferenceResult{}, errors.New("telephony: session_id required")
	}
	confID := "dialer-" + req.SessionID
	return CreateConferenceResult{
		ConferenceID:  confID,
		RepJoinTarget: p.answerURL(confID),
	}, nil
}

func (p *TwilioProvider) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error) {
	if req.From == "" || req.To == "" || req.ConferenceID == "" {
		return PlaceCallResult{}, errors.New("telephony: from, to and conference_id are required")
	}

	form := url.Values{}
	form.Set("From", req.From)
	form.Set("To", req.To)
	form.Set("Url", p.answerURL(req.ConferenceID))
	form.Set("StatusCallback", p.publicBaseURL+"/webhooks/twilio/status")
	form.Set("StatusCallbackEvent", "initiated ringing answered completed")
	form.Set("Timeout", "30")

	body, err := p.post(ctx, fmt.Sprintf("/Accounts/%s/Calls.json", p.accountSID), form)
	if err != nil {
		return PlaceCallResult{}, err
	}

	var out struct {
		Sid string `json:"sid"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return PlaceCallResult{}, fmt.Errorf("telephony: twilio call response decode: %w", err)
	}
	if out.Sid == "" {
		return PlaceCallResult{}, errors.New("telephony: twilio returned no call sid")
	}
	return PlaceCallResult{ProviderCallID: out.Sid}, nil
}

func (p *TwilioProvider) AddConferenceParticipant(ctx context.Context, req AddParticipantRequest) (AddParticipantResult, error) {
	if req.ConferenceID == "" || req.Target == "" {
		return AddParticipantResult{}, errors.New("telephony: conference_id and target are required")
	}

	form := url.Values{}
	form.Set("From", req.From)
	form.Set("To", req.Target)

	body, err := p.post(ctx, fmt.Sprintf("/Accounts/%s/Conferences/%s/Participants.json", p.accountSID, url.PathEscape(req.ConferenceID)), form)
	if err != nil {
		return AddParticipantResult{}, err
	}

	var out struct {
		CallSid string `json:"call_sid"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return AddParticipantResult{}, fmt.Errorf("telephony: twilio participant response decode: %w", err)
	}
	if out.CallSid == "" {
		return AddParticipantResult{}, errors.New("telephony: twilio returned no participant call sid")
	}
	return AddParticipantResult{LegID: out.CallSid}, nil
}

func (p *TwilioProvider) Hangup(ctx context.Context, providerCallID string) error {
	if providerCallID == "" {
		return errors.New("telephony: provider_call_id required")
	}
	form := url.Values{}
	form.Set("Status", "completed")
	_, err := p.post(ctx, fmt.Sprintf("/Accounts/%s/Calls/%s.json", p.accountSID, url.PathEscape(providerCallID)), form)
	return err
}

func (p *TwilioProvider) CallStatus(ctx context.Context, providerCallID string) (StatusEvent, error) {
	if providerCallID == "" {
		return StatusEvent{}, errors.New("telephony: provider_call_id required")
	}
	body, err := p.get(ctx, fmt.Sprintf("/Accounts/%s/Calls/%s.json", p.accountSID, url.PathEscape(providerCallID)))
	if err != nil {
		return StatusEvent{}, err
	}

	var out struct {
		Sid    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return StatusEvent{}, fmt.Errorf("telephony: twilio call status decode: %w", err)
	}
	status, ok := MapTwilioCallStatus(out.Status)
	if !ok {
		return StatusEvent{}, fmt.Errorf("telephony: unmapped twilio status %q", out.Status)
	}
	return StatusEvent{ProviderCallID: out.Sid, Status: status, OccurredAt: time.Now().UTC()}, nil
}

func (p *TwilioProvider) answerURL(conferenceID string) string {
	return p.publicBaseURL + "/webhooks/twilio/answer?conference=" + url.QueryEscape(conferenceID)
}

func (p *TwilioProvider) post(ctx context.Context, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return p.do(req)
}

func (p *TwilioProvider) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+path, nil)
	if err != nil {
		return nil, err
	}
	return p.do(req)
}

func (p *TwilioProvider) do(req *http.Request) ([]byte, error) {
	req.SetBasicAuth(p.accountSID, p.authToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("telephony: twilio %s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return body, nil
}

// MapTwilioCallStatus translates a Twilio call status string into the
// engine's vocabulary. Returns false for statuses the engine ignores
// (e.g. "queued", "initiated", which precede the record's own dialing state).
func MapTwilioCallStatus(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ringing":
		return "ringing", true
	case "in-progress", "answered":
		return "answered", true
	case "completed":
		return "completed", true
	case "busy":
		return "busy", true
	case "no-answer":
		return "no_answer", true
	case "failed":
		return "failed", true
	case "canceled":
		return "canceled", true
	default:
		return "", false
	}
}
