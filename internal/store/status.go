package store

// CallStatus is the normalized lifecycle status of an ActiveCall.
//
// Every status has a rank; AdvanceCall only ever moves a call to a strictly
// higher rank. Webhooks arrive duplicated and out of order, so the rank guard
// is the single place ordering is enforced.
type CallStatus string

const (
	CallStatusDialing   CallStatus = "dialing"
	CallStatusRinging   CallStatus = "ringing"
	CallStatusAnswered  CallStatus = "answered"
	CallStatusConnected CallStatus = "connected"
	CallStatusVoicemail CallStatus = "voicemail"

	CallStatusCompleted CallStatus = "completed"
	CallStatusNoAnswer  CallStatus = "no_answer"
	CallStatusBusy      CallStatus = "busy"
	CallStatusFailed    CallStatus = "failed"
	CallStatusCanceled  CallStatus = "canceled"
)

var callStatusRank = map[CallStatus]int{
	CallStatusDialing:   0,
	CallStatusRinging:   1,
	CallStatusAnswered:  2,
	CallStatusConnected: 3,
	CallStatusVoicemail: 3,
	CallStatusCompleted: 4,
	CallStatusNoAnswer:  4,
	CallStatusBusy:      4,
	CallStatusFailed:    4,
	CallStatusCanceled:  4,
}

// Rank returns the monotonic order of a status, or -1 if unknown.
func (s CallStatus) Rank() int {
	r, ok := callStatusRank[s]
	if !ok {
		return -1
	}
	return r
}

// Valid reports whether s is a known status.
func (s CallStatus) Valid() bool { return s.Rank() >= 0 }

// Terminal reports whether s ends the call's lifecycle.
func (s CallStatus) Terminal() bool { return s.Rank() == 4 }

// InFlight reports whether the call still occupies provider/agent capacity.
func (s CallStatus) InFlight() bool { return s.Valid() && !s.Terminal() }
