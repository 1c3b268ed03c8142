package dialer

import "testing"

func TestCallStatusTerminal(t *testing.T) {
	terminal := []CallStatus{CallStatusCompleted, CallStatusFailed, CallStatusNoAnswer, CallStatusBusy, CallStatusCanceled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %s terminal", s)
		}
	}
	live := []CallStatus{CallStatusDialing, CallStatusRinging, CallStatusAnswered, CallStatusConnected}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("expected %s non-terminal", s)
		}
	}
}

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to CallStatus }{
		{CallStatusDialing, CallStatusRinging},
		{CallStatusDialing, CallStatusAnswered}, // fast answer, no ringing event
		{CallStatusDialing, CallStatusNoAnswer},
		{CallStatusDialing, CallStatusBusy},
		{CallStatusDialing, CallStatusCanceled},
		{CallStatusRinging, CallStatusAnswered},
		{CallStatusRinging, CallStatusNoAnswer},
		{CallStatusAnswered, CallStatusConnected},
		{CallStatusAnswered, CallStatusCompleted},
		{CallStatusConnected, CallStatusCompleted},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to CallStatus }{
		{CallStatusDialing, CallStatusConnected},
		{CallStatusRinging, CallStatusConnected},
		{CallStatusRinging, CallStatusDialing},
		{CallStatusConnected, CallStatusAnswered},
		{CallStatusConnected, CallStatusFailed},
		{CallStatusCompleted, CallStatusConnected},
		{CallStatusFailed, CallStatusRinging},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s denied", tc.from, tc.to)
		}
	}
}

func TestTerminalStatusesHaveNoOutgoingEdges(t *testing.T) {
	for from := range callTransitions {
		if from.Terminal() {
			t.Errorf("terminal status %s must not have outgoing edges", from)
		}
	}
}

func TestIsValidCallStatus(t *testing.T) {
	if !IsValidCallStatus(CallStatusRinging) {
		t.Fatalf("ringing should be valid")
	}
	if IsValidCallStatus(CallStatus("queued")) {
		t.Fatalf("provider-internal statuses are not part of the vocabulary")
	}
}
