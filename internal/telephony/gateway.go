package telephony

import (
	"context"
	"time"
)

// Gateway is the provider-agnostic interface for placing outbound calls.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - All requests must be workspace-scoped (workspace_id required).
// - Callers never see provider wire formats; webhooks are normalized to
//   StatusEvent before leaving this package.
type Gateway interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// PlaceCall asks the provider to originate one outbound call. The
	// provider reports progress asynchronously to req.StatusCallbackURL.
	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error)
}

// PlaceCallRequest describes one outbound call attempt.
type PlaceCallRequest struct {
	WorkspaceID string `json:"workspace_id"`

	// To and From are E.164.
	To   string `json:"to"`
	From string `json:"from"`

	// StatusCallbackURL receives progress webhooks for this call.
	StatusCallbackURL string `json:"status_callback_url"`

	// RingTimeout bounds how long the call may ring before no_answer.
	RingTimeout time.Duration `json:"ring_timeout"`

	// MachineDetection enables provider-side answering machine detection.
	MachineDetection        bool          `json:"machine_detection"`
	MachineDetectionTimeout time.Duration `json:"machine_detection_timeout"`
}

type PlaceCallResult struct {
	// ProviderCallID is the provider's unique identifier for this call.
	ProviderCallID string `json:"provider_call_id"`
}

// EventKind tags the normalized webhook variant.
type EventKind string

const (
	EventInitiated    EventKind = "initiated"
	EventRinging      EventKind = "ringing"
	EventAnswered     EventKind = "answered"
	EventTerminal     EventKind = "terminal"
	EventBridgeOK     EventKind = "bridge_ok"
	EventBridgeFailed EventKind = "bridge_failed"
)

// StatusEvent is the normalized provider callback. The webhook parser is the
// only code that builds these; everything downstream switches on Kind and
// never inspects provider fields.
type StatusEvent struct {
	ProviderCallID string    `json:"provider_call_id"`
	WorkspaceID    string    `json:"workspace_id,omitempty"`
	Kind           EventKind `json:"kind"`

	// Machine is meaningful for EventAnswered: the provider's machine
	// detection flagged a non-human pickup.
	Machine bool `json:"machine,omitempty"`

	// TerminalStatus is set for EventTerminal: completed, busy, no_answer,
	// failed or canceled (normalized enum values from the store).
	TerminalStatus string `json:"terminal_status,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`

	// RawPayload is kept for debugging/audit.
	RawPayload string `json:"raw_payload,omitempty"`
}

// Directive tells the provider what to do next with a live call. The
// lifecycle machine produces these; RenderTwiML turns them into the wire
// format.
type Directive struct {
	Action DirectiveAction `json:"action"`

	// Endpoint is the bridge target when Action == bridge:
	// client:<agent>, sip:..., or an E.164 number.
	Endpoint string `json:"endpoint,omitempty"`

	// Greeting is spoken before recording when Action == voicemail.
	Greeting string `json:"greeting,omitempty"`

	// Record captures a message after the greeting.
	Record bool `json:"record,omitempty"`
}

type DirectiveAction string

const (
	DirectiveNone      DirectiveAction = "none"
	DirectiveBridge    DirectiveAction = "bridge"
	DirectiveVoicemail DirectiveAction = "voicemail"
	DirectiveHangup    DirectiveAction = "hangup"
)

// CallRouter consumes normalized status events and decides the next provider
// action. Implemented by the lifecycle machine; provider adapters depend only
// on this abstraction so webhook code stays free of business logic.
type CallRouter interface {
	HandleStatusEvent(ctx context.Context, ev StatusEvent) (Directive, error)
}
