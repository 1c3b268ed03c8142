package telephony

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// TwilioStatusForm captures the subset of status-callback fields we care
// about. Twilio sends application/x-www-form-urlencoded by default.
//
// Two callback shapes land here:
// - call status callbacks (CallSid + CallStatus)
// - conference status callbacks (CallSid + StatusCallbackEvent participant-join/leave)
//
// Keep it minimal and provider-adapter-only. Business logic (state machine
// application) is not made here.
type TwilioStatusForm struct {
	CallSid       string
	AccountSid    string
	CallStatus    string
	From          string
	To            string
	Direction     string
	Timestamp     string
	ConferenceSid string
	FriendlyName  string
	CallbackEvent string
	SequenceNum   string
}

func ParseTwilioStatusCallback(r *http.Request) (TwilioStatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioStatusForm{}, err
	}
	f := TwilioStatusForm{
		CallSid:       r.PostFormValue("CallSid"),
		AccountSid:    r.PostFormValue("AccountSid"),
		CallStatus:    r.PostFormValue("CallStatus"),
		From:          strings.TrimSpace(r.PostFormValue("From")),
		To:            strings.TrimSpace(r.PostFormValue("To")),
		Direction:     r.PostFormValue("Direction"),
		Timestamp:     r.PostFormValue("Timestamp"),
		ConferenceSid: r.PostFormValue("ConferenceSid"),
		FriendlyName:  r.PostFormValue("FriendlyName"),
		CallbackEvent: r.PostFormValue("StatusCallbackEvent"),
		SequenceNum:   r.PostFormValue("SequenceNumber"),
	}
	return f, nil
}

// ToStatusEvent translates the webhook form into a provider-agnostic event.
// Returns false when the callback carries nothing the engine acts on.
func (f TwilioStatusForm) ToStatusEvent(occurredAt time.Time) (StatusEvent, bool) {
	if f.CallSid == "" {
		return StatusEvent{}, false
	}

	// Conference participant callbacks signal the merge: a join means the
	// leg is connected to the bridge.
	if f.CallbackEvent != "" {
		if strings.EqualFold(f.CallbackEvent, "participant-join") {
			return f.event("connected", occurredAt), true
		}
		// participant-leave is covered by the leg's own completed callback.
		return StatusEvent{}, false
	}

	status, ok := MapTwilioCallStatus(f.CallStatus)
	if !ok {
		return StatusEvent{}, false
	}
	return f.event(status, occurredAt), true
}

func (f TwilioStatusForm) event(status string, occurredAt time.Time) StatusEvent {
	if ts := strings.TrimSpace(f.Timestamp); ts != "" {
		if t, err := time.Parse(time.RFC1123Z, ts); err == nil {
			occurredAt = t.UTC()
		}
	}
	raw, _ := json.Marshal(f)
	return StatusEvent{
		ProviderCallID: f.CallSid,
		Status:         status,
		OccurredAt:     occurredAt,
		RawPayload:     string(raw),
	}
}
