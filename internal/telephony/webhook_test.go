package telephony

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func postForm(t *testing.T, values url.Values) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/status", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestParseTwilioStatusCallback(t *testing.T) {
	req := postForm(t, url.Values{
		"CallSid":    {"CA123"},
		"CallStatus": {"in-progress"},
		"From":       {" +15550001111 "},
		"To":         {"+15550002222"},
	})
	f, err := ParseTwilioStatusCallback(req)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.CallSid != "CA123" || f.CallStatus != "in-progress" {
		t.Fatalf("unexpected form %+v", f)
	}
	if f.From != "+15550001111" {
		t.Fatalf("expected trimmed from, got %q", f.From)
	}
}

func TestToStatusEvent_CallStatusMapping(t *testing.T) {
	now := time.Now().UTC()
	cases := []struct {
		twilio string
		want   string
	}{
		{"ringing", "ringing"},
		{"in-progress", "answered"},
		{"completed", "completed"},
		{"busy", "busy"},
		{"no-answer", "no_answer"},
		{"failed", "failed"},
		{"canceled", "canceled"},
	}
	for _, tc := range cases {
		f := TwilioStatusForm{CallSid: "CA1", CallStatus: tc.twilio}
		ev, ok := f.ToStatusEvent(now)
		if !ok {
			t.Errorf("%s: expected event", tc.twilio)
			continue
		}
		if ev.Status != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.twilio, tc.want, ev.Status)
		}
		if ev.ProviderCallID != "CA1" {
			t.Errorf("%s: lost call sid", tc.twilio)
		}
	}
}

func TestToStatusEvent_IgnoresPreDialStatuses(t *testing.T) {
	for _, s := range []string{"queued", "initiated", ""} {
		f := TwilioStatusForm{CallSid: "CA1", CallStatus: s}
		if _, ok := f.ToStatusEvent(time.Now()); ok {
			t.Errorf("%q must be ignored", s)
		}
	}
}

func TestToStatusEvent_ParticipantJoinMeansConnected(t *testing.T) {
	f := TwilioStatusForm{CallSid: "CA1", CallbackEvent: "participant-join", ConferenceSid: "CF1"}
	ev, ok := f.ToStatusEvent(time.Now().UTC())
	if !ok {
		t.Fatalf("expected event for participant-join")
	}
	if ev.Status != "connected" {
		t.Fatalf("expected connected, got %s", ev.Status)
	}
}

func TestToStatusEvent_ParticipantLeaveIgnored(t *testing.T) {
	f := TwilioStatusForm{CallSid: "CA1", CallbackEvent: "participant-leave"}
	if _, ok := f.ToStatusEvent(time.Now()); ok {
		t.Fatalf("participant-leave is covered by the leg's completed callback")
	}
}

func TestToStatusEvent_MissingCallSidIgnored(t *testing.T) {
	f := TwilioStatusForm{CallStatus: "completed"}
	if _, ok := f.ToStatusEvent(time.Now()); ok {
		t.Fatalf("events without a call sid cannot be correlated")
	}
}

func TestToStatusEvent_UsesTwilioTimestampWhenPresent(t *testing.T) {
	ts := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	f := TwilioStatusForm{
		CallSid:    "CA1",
		CallStatus: "completed",
		Timestamp:  ts.Format(time.RFC1123Z),
	}
	ev, ok := f.ToStatusEvent(time.Now().UTC())
	if !ok {
		t.Fatalf("expected event")
	}
	if !ev.OccurredAt.Equal(ts) {
		t.Fatalf("expected twilio timestamp %s, got %s", ts, ev.OccurredAt)
	}
}

func TestMapTwilioCallStatus_Unknown(t *testing.T) {
	if _, ok := MapTwilioCallStatus("definitely-not-a-status"); ok {
		t.Fatalf("unknown statuses must not map")
	}
}
