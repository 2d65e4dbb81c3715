package telephony

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// StatusCallbackForm captures the subset of Twilio status-callback fields the
// dialer cares about. Twilio posts application/x-www-form-urlencoded.
//
// Keep it minimal and provider-adapter-only. Business logic (bridge/voicemail
// decisions) is not made here.
type StatusCallbackForm struct {
	CallSid    string
	AccountSid string
	From       string
	To         string
	Direction  string
	CallStatus string

	// AnsweredBy is present when machine detection ran:
	// human, machine_start, machine_end_beep, machine_end_silence,
	// machine_end_other, fax, unknown.
	AnsweredBy string

	// DialCallStatus is present on <Dial> action callbacks and reports the
	// bridge leg's outcome.
	DialCallStatus string

	SequenceNumber string
	Timestamp      string
}

func ParseStatusCallback(r *http.Request) (StatusCallbackForm, error) {
	if err := r.ParseForm(); err != nil {
		return StatusCallbackForm{}, err
	}
	f := StatusCallbackForm{
		CallSid:        r.PostFormValue("CallSid"),
		AccountSid:     r.PostFormValue("AccountSid"),
		From:           strings.TrimSpace(r.PostFormValue("From")),
		To:             strings.TrimSpace(r.PostFormValue("To")),
		Direction:      r.PostFormValue("Direction"),
		CallStatus:     r.PostFormValue("CallStatus"),
		AnsweredBy:     r.PostFormValue("AnsweredBy"),
		DialCallStatus: r.PostFormValue("DialCallStatus"),
		SequenceNumber: r.PostFormValue("SequenceNumber"),
		Timestamp:      r.PostFormValue("Timestamp"),
	}
	if f.CallSid == "" {
		return StatusCallbackForm{}, fmt.Errorf("telephony: status callback missing CallSid")
	}
	return f, nil
}

// ToStatusEvent normalizes the raw form into the tagged variant. Unknown
// provider statuses are rejected here so nothing downstream ever sees them.
func (f StatusCallbackForm) ToStatusEvent(occurredAt time.Time) (StatusEvent, error) {
	raw, _ := json.Marshal(f)
	ev := StatusEvent{
		ProviderCallID: f.CallSid,
		OccurredAt:     occurredAt,
		RawPayload:     string(raw),
	}

	// A <Dial> action callback reports the bridge leg, not the customer leg.
	if f.DialCallStatus != "" {
		switch f.DialCallStatus {
		case "completed", "answered", "in-progress":
			ev.Kind = EventBridgeOK
		case "busy", "no-answer", "failed", "canceled":
			ev.Kind = EventBridgeFailed
		default:
			return StatusEvent{}, fmt.Errorf("telephony: unknown DialCallStatus %q", f.DialCallStatus)
		}
		return ev, nil
	}

	switch f.CallStatus {
	case "queued", "initiated":
		ev.Kind = EventInitiated
	case "ringing":
		ev.Kind = EventRinging
	case "in-progress", "answered":
		ev.Kind = EventAnswered
		ev.Machine = answeredByMachine(f.AnsweredBy)
	case "completed":
		ev.Kind = EventTerminal
		ev.TerminalStatus = "completed"
	case "busy":
		ev.Kind = EventTerminal
		ev.TerminalStatus = "busy"
	case "no-answer":
		ev.Kind = EventTerminal
		ev.TerminalStatus = "no_answer"
	case "failed":
		ev.Kind = EventTerminal
		ev.TerminalStatus = "failed"
	case "canceled":
		ev.Kind = EventTerminal
		ev.TerminalStatus = "canceled"
	default:
		return StatusEvent{}, fmt.Errorf("telephony: unknown CallStatus %q", f.CallStatus)
	}
	return ev, nil
}

func answeredByMachine(answeredBy string) bool {
	switch answeredBy {
	case "machine_start", "machine_end_beep", "machine_end_silence", "machine_end_other", "fax":
		return true
	default:
		// human, unknown, or AMD disabled: treat as human. Bridging a human
		// is recoverable; hanging up on one is not.
		return false
	}
}
