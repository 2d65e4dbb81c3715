package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// Minimal TwiML builder for the dialer's provider responses.
// Only the verbs the lifecycle machine can ask for are modeled; no provider
// SDK dependency here.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlPause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type twimlRecord struct {
	XMLName   xml.Name `xml:"Record"`
	MaxLength int      `xml:"maxLength,attr,omitempty"`
	PlayBeep  bool     `xml:"playBeep,attr"`
}

type twimlDial struct {
	XMLName xml.Name     `xml:"Dial"`
	Action  string       `xml:"action,attr,omitempty"`
	Timeout int          `xml:"timeout,attr,omitempty"`
	Number  string       `xml:"Number,omitempty"`
	Client  string       `xml:"Client,omitempty"`
	Sip     *twimlSipURI `xml:"Sip,omitempty"`
}

type twimlSipURI struct {
	URI string `xml:",chardata"`
}

// RenderTwiML maps a Directive to the provider response body.
// bridgeAction is the callback URL that receives the <Dial> outcome; it may
// be empty for non-bridge directives.
func RenderTwiML(d Directive, bridgeAction string, bridgeTimeoutSeconds int) (string, error) {
	var r twimlResponse

	switch d.Action {
	case DirectiveNone:
		// Empty <Response/> acknowledges the event without changing the call.
	case DirectiveHangup:
		r.Verbs = append(r.Verbs, twimlHangup{})
	case DirectiveVoicemail:
		if d.Greeting != "" {
			r.Verbs = append(r.Verbs, twimlSay{Text: d.Greeting})
		}
		if d.Record {
			r.Verbs = append(r.Verbs, twimlRecord{MaxLength: 120, PlayBeep: true})
		} else {
			// Voicemail drop onto a machine: brief pause so the greeting
			// lands after the beep, then hang up.
			r.Verbs = append(r.Verbs, twimlPause{Length: 1})
		}
		r.Verbs = append(r.Verbs, twimlHangup{})
	case DirectiveBridge:
		ep := strings.TrimSpace(d.Endpoint)
		if ep == "" {
			return "", errors.New("telephony: endpoint required for bridge directive")
		}
		dial := twimlDial{Action: bridgeAction, Timeout: bridgeTimeoutSeconds}
		switch {
		case strings.HasPrefix(strings.ToLower(ep), "sip:"):
			dial.Sip = &twimlSipURI{URI: ep}
		case strings.HasPrefix(strings.ToLower(ep), "client:"):
			dial.Client = strings.TrimPrefix(ep, "client:")
		default:
			dial.Number = ep
		}
		r.Verbs = append(r.Verbs, dial)
	default:
		return "", errors.New("telephony: unknown directive action")
	}

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
