package telephony

import (
	"strings"
	"testing"
)

func TestRenderConferenceJoinTwiML_LeadLeg(t *testing.T) {
	out, err := RenderConferenceJoinTwiML(ConferenceJoin{
		ConferenceID:      "dialer-s1",
		StatusCallbackURL: "https://api.example.com/webhooks/twilio/status",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{
		"<Response>",
		"<Dial>",
		">dialer-s1</Conference>",
		`startConferenceOnEnter="false"`,
		`endConferenceOnExit="false"`,
		`statusCallback="https://api.example.com/webhooks/twilio/status"`,
		`statusCallbackEvent="join leave"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestRenderConferenceJoinTwiML_RepAnchorsConference(t *testing.T) {
	out, err := RenderConferenceJoinTwiML(ConferenceJoin{ConferenceID: "dialer-s1", RepLeg: true})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, `startConferenceOnEnter="true"`) {
		t.Errorf("rep leg must start the conference:\n%s", out)
	}
	if !strings.Contains(out, `endConferenceOnExit="true"`) {
		t.Errorf("rep leaving must end the conference:\n%s", out)
	}
}

func TestRenderConferenceJoinTwiML_RequiresConference(t *testing.T) {
	if _, err := RenderConferenceJoinTwiML(ConferenceJoin{}); err == nil {
		t.Fatalf("expected error without conference id")
	}
}

func TestRenderHangupTwiML(t *testing.T) {
	out, err := RenderHangupTwiML()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "<Hangup></Hangup>") && !strings.Contains(out, "<Hangup/>") {
		t.Fatalf("expected hangup verb:\n%s", out)
	}
}
