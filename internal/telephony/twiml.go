package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// TwiML is a minimal Twilio Markup Language response builder.
// It intentionally avoids any provider SDK dependency.
//
// Only include primitives we need at the adapter boundary: joining an
// answered leg into the session conference.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlDial struct {
	XMLName    xml.Name         `xml:"Dial"`
	Conference *twimlConference `xml:"Conference,omitempty"`
}

type twimlConference struct {
	Name                  string `xml:",chardata"`
	StartOnEnter          string `xml:"startConferenceOnEnter,attr"`
	EndOnExit             string `xml:"endConferenceOnExit,attr"`
	StatusCallback        string `xml:"statusCallback,attr,omitempty"`
	StatusCallbackEvent   string `xml:"statusCallbackEvent,attr,omitempty"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// ConferenceJoin describes the TwiML needed to merge a leg into a conference.
type ConferenceJoin struct {
	ConferenceID string

	// RepLeg marks the anchor leg: the conference starts when the rep enters
	// and ends when the rep leaves.
	RepLeg bool

	// StatusCallbackURL receives conference participant join/leave events.
	StatusCallbackURL string
}

// RenderConferenceJoinTwiML produces the answer-webhook response that sends a
// leg into the session conference.
func RenderConferenceJoinTwiML(join ConferenceJoin) (string, error) {
	if strings.TrimSpace(join.ConferenceID) == "" {
		return "", errors.New("telephony: conference id required for join")
	}

	conf := &twimlConference{
		Name:         join.ConferenceID,
		StartOnEnter: boolAttr(join.RepLeg),
		EndOnExit:    boolAttr(join.RepLeg),
	}
	if join.StatusCallbackURL != "" {
		conf.StatusCallback = join.StatusCallbackURL
		conf.StatusCallbackEvent = "join leave"
	}

	var r twimlResponse
	r.Verbs = append(r.Verbs, twimlDial{Conference: conf})
	return encodeTwiML(r)
}

// RenderHangupTwiML produces a bare hangup response, used when the answer
// webhook cannot resolve a conference.
func RenderHangupTwiML() (string, error) {
	var r twimlResponse
	r.Verbs = append(r.Verbs, twimlHangup{})
	return encodeTwiML(r)
}

func encodeTwiML(r twimlResponse) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func boolAttr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
