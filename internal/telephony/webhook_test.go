package telephony

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func postForm(t *testing.T, body string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/webhooks/telephony/status", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestParseStatusCallback(t *testing.T) {
	form, err := ParseStatusCallback(postForm(t, "CallSid=CA123&CallStatus=ringing&From=%2B15551234567&To=%2B15557654321"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if form.CallSid != "CA123" || form.CallStatus != "ringing" {
		t.Fatalf("unexpected form: %+v", form)
	}
}

func TestParseStatusCallback_MissingCallSid(t *testing.T) {
	if _, err := ParseStatusCallback(postForm(t, "CallStatus=ringing")); err == nil {
		t.Fatal("expected error for missing CallSid")
	}
}

func TestToStatusEvent_Mapping(t *testing.T) {
	at := time.Unix(1700000000, 0).UTC()
	cases := []struct {
		name     string
		form     StatusCallbackForm
		kind     EventKind
		machine  bool
		terminal string
	}{
		{"initiated", StatusCallbackForm{CallSid: "CA1", CallStatus: "initiated"}, EventInitiated, false, ""},
		{"ringing", StatusCallbackForm{CallSid: "CA1", CallStatus: "ringing"}, EventRinging, false, ""},
		{"answered human", StatusCallbackForm{CallSid: "CA1", CallStatus: "in-progress", AnsweredBy: "human"}, EventAnswered, false, ""},
		{"answered machine", StatusCallbackForm{CallSid: "CA1", CallStatus: "in-progress", AnsweredBy: "machine_start"}, EventAnswered, true, ""},
		{"answered unknown amd", StatusCallbackForm{CallSid: "CA1", CallStatus: "in-progress", AnsweredBy: "unknown"}, EventAnswered, false, ""},
		{"completed", StatusCallbackForm{CallSid: "CA1", CallStatus: "completed"}, EventTerminal, false, "completed"},
		{"busy", StatusCallbackForm{CallSid: "CA1", CallStatus: "busy"}, EventTerminal, false, "busy"},
		{"no answer", StatusCallbackForm{CallSid: "CA1", CallStatus: "no-answer"}, EventTerminal, false, "no_answer"},
		{"bridge failed", StatusCallbackForm{CallSid: "CA1", DialCallStatus: "no-answer"}, EventBridgeFailed, false, ""},
		{"bridge ok", StatusCallbackForm{CallSid: "CA1", DialCallStatus: "completed"}, EventBridgeOK, false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := tc.form.ToStatusEvent(at)
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if ev.Kind != tc.kind {
				t.Fatalf("kind = %q, want %q", ev.Kind, tc.kind)
			}
			if ev.Machine != tc.machine {
				t.Fatalf("machine = %v, want %v", ev.Machine, tc.machine)
			}
			if ev.TerminalStatus != tc.terminal {
				t.Fatalf("terminal = %q, want %q", ev.TerminalStatus, tc.terminal)
			}
			if ev.ProviderCallID != "CA1" {
				t.Fatalf("provider call id lost: %q", ev.ProviderCallID)
			}
		})
	}
}

func TestToStatusEvent_UnknownStatusRejected(t *testing.T) {
	f := StatusCallbackForm{CallSid: "CA1", CallStatus: "transmogrified"}
	if _, err := f.ToStatusEvent(time.Now()); err == nil {
		t.Fatal("expected error for unknown provider status")
	}
}

func TestRenderTwiML_Bridge(t *testing.T) {
	out, err := RenderTwiML(Directive{Action: DirectiveBridge, Endpoint: "client:agent-7"}, "https://d.example.com/bridge", 20)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "<Client>agent-7</Client>") {
		t.Fatalf("expected client dial, got %s", out)
	}
	if !strings.Contains(out, `timeout="20"`) {
		t.Fatalf("expected dial timeout, got %s", out)
	}
}

func TestRenderTwiML_BridgeSipAndNumber(t *testing.T) {
	out, err := RenderTwiML(Directive{Action: DirectiveBridge, Endpoint: "sip:rep@pbx.example.com"}, "", 0)
	if err != nil {
		t.Fatalf("render sip: %v", err)
	}
	if !strings.Contains(out, "sip:rep@pbx.example.com") {
		t.Fatalf("expected sip uri, got %s", out)
	}

	out, err = RenderTwiML(Directive{Action: DirectiveBridge, Endpoint: "+15550001111"}, "", 0)
	if err != nil {
		t.Fatalf("render number: %v", err)
	}
	if !strings.Contains(out, "<Number>+15550001111</Number>") {
		t.Fatalf("expected number dial, got %s", out)
	}
}

func TestRenderTwiML_VoicemailWithRecording(t *testing.T) {
	out, err := RenderTwiML(Directive{Action: DirectiveVoicemail, Greeting: "All reps are busy.", Record: true}, "", 0)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "All reps are busy.") || !strings.Contains(out, "<Record") {
		t.Fatalf("expected say+record, got %s", out)
	}
}

func TestRenderTwiML_BridgeRequiresEndpoint(t *testing.T) {
	if _, err := RenderTwiML(Directive{Action: DirectiveBridge}, "", 0); err == nil {
		t.Fatal("expected error for bridge without endpoint")
	}
}
