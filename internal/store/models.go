package store

import "time"

// Domain models for the dialer core.
//
// Multi-pool invariant: WorkspaceID is required on every row. A workspace is
// one independent agent pool; nothing here crosses workspaces.
//
// NOTE: These are domain models only. Provider-specific fields (like the
// Twilio CallSid) live in ProviderCallID; raw provider payloads never reach
// this package.

// QueueItem is one call target awaiting a dial attempt.
//
// Invariant: a target has at most one non-terminal QueueItem at a time
// (enforced by EnqueueTargets).
type QueueItem struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`

	TargetID    string `json:"target_id" db:"target_id"`
	PhoneNumber string `json:"phone_number" db:"phone_number"`

	// Priority: higher dials first.
	Priority int `json:"priority" db:"priority"`

	Status  QueueStatus `json:"status" db:"status"`
	Outcome string      `json:"outcome,omitempty" db:"outcome"`

	Attempts int `json:"attempts" db:"attempts"`

	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty" db:"last_attempt_at"`
	LastOutcomeAt *time.Time `json:"last_outcome_at,omitempty" db:"last_outcome_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type QueueStatus string

const (
	QueueStatusQueued    QueueStatus = "queued"
	QueueStatusDialing   QueueStatus = "dialing"
	QueueStatusCompleted QueueStatus = "completed"
)

// Queue outcomes recorded when an item reaches completed.
const (
	QueueOutcomeConnected = "connected"
	QueueOutcomeVoicemail = "voicemail"
	QueueOutcomeExhausted = "exhausted"
	QueueOutcomeCanceled  = "canceled"
)

// AgentSession is an agent's participation window in dialing mode.
//
// Invariant: at most one active AgentSession per (workspace, agent).
type AgentSession struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`
	AgentID     string `json:"agent_id" db:"agent_id"`

	// Endpoint is where answered calls get bridged (client:<id>, sip:, or E.164).
	Endpoint string `json:"endpoint" db:"endpoint"`

	Status SessionStatus `json:"status" db:"status"`

	// CurrentCallID is empty when idle, ClaimSentinel between claim and bridge,
	// and the ActiveCall id while bridged.
	CurrentCallID string `json:"current_call_id,omitempty" db:"current_call_id"`

	Dialed    int `json:"dialed" db:"dialed"`
	Connected int `json:"connected" db:"connected"`

	LastCallStartedAt *time.Time `json:"last_call_started_at,omitempty" db:"last_call_started_at"`

	StartedAt time.Time  `json:"started_at" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`
}

type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusEnded  SessionStatus = "ended"
)

// ClaimSentinel marks an agent claimed by a dial/bridge decision before the
// real call id is attached. It keeps the agent out of the idle set.
const ClaimSentinel = "claimed"

// IsIdle reports whether the session can accept a claim.
func (s AgentSession) IsIdle() bool {
	return s.Status == SessionStatusActive && s.CurrentCallID == ""
}

// ActiveCall is one outbound call attempt in flight.
//
// Invariants: status moves only forward along the rank in status.go; at most
// one assigned agent; terminal rows are retained for audit.
type ActiveCall struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`

	ProviderCallID string `json:"provider_call_id" db:"provider_call_id"`

	QueueItemID string `json:"queue_item_id" db:"queue_item_id"`
	TargetID    string `json:"target_id" db:"target_id"`
	BatchID     string `json:"batch_id" db:"batch_id"`

	From string `json:"from" db:"from_number"`
	To   string `json:"to" db:"to_number"`

	Status CallStatus `json:"status" db:"status"`

	// AgentID is empty until the call is bridged.
	AgentID string `json:"agent_id,omitempty" db:"agent_id"`

	// Machine is set when the provider's answering machine detection fired.
	Machine bool `json:"machine" db:"machine"`

	// BridgeAttempts counts failed bridges retried so far. The fallback path
	// re-claims at most once, so this never exceeds 1.
	BridgeAttempts int `json:"bridge_attempts" db:"bridge_attempts"`

	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
	AnsweredAt   *time.Time `json:"answered_at,omitempty" db:"answered_at"`
	ConnectedAt  *time.Time `json:"connected_at,omitempty" db:"connected_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// DialBatch groups ActiveCalls issued by one dial cycle. Correlation and
// metrics only; never mutated after creation.
type DialBatch struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`

	IdleAgents int `json:"idle_agents" db:"idle_agents"`
	Fanout     int `json:"fanout" db:"fanout"`
	Size       int `json:"size" db:"size"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
