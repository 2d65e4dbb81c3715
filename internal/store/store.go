package store

import (
	"context"
	"errors"
	"time"
)

// Store is the single source of truth for dialer state.
//
// Every other component mutates state exclusively through these narrow
// operations so the invariants in models.go stay centrally enforced no
// matter which component is acting concurrently.
//
// Rules for implementations:
// - Claim operations are linearizable: two concurrent claims never return
//   the same row.
// - No operation holds an exclusive lock across network I/O; critical
//   sections are in-memory or single transactions.
// - Release operations are idempotent.

var (
	ErrNotFound        = errors.New("store: not found")
	ErrInvalidArgument = errors.New("store: invalid argument")
	ErrConflict        = errors.New("store: conflict")
)

// NewTarget is the input to EnqueueTargets.
type NewTarget struct {
	TargetID    string
	PhoneNumber string
	Priority    int
}

type Store interface {
	QueueStore
	SessionStore
	CallStore
}

type QueueStore interface {
	// EnqueueTargets inserts queued items, skipping targets that already have
	// a non-terminal item. Returns the items actually created.
	EnqueueTargets(ctx context.Context, workspaceID string, targets []NewTarget) ([]QueueItem, error)

	// ClaimQueuedItems atomically moves up to limit queued items to dialing,
	// ordered by priority descending then oldest last-attempt first.
	// Claiming is exclusive across concurrent cycles.
	ClaimQueuedItems(ctx context.Context, workspaceID string, limit int) ([]QueueItem, error)

	// RequeueItem returns a dialing item to queued. incrementAttempt records
	// a consumed attempt (provider rejection, terminal without connect).
	RequeueItem(ctx context.Context, workspaceID, itemID string, incrementAttempt bool) (QueueItem, error)

	// CompleteItem marks an item terminal with the given outcome.
	CompleteItem(ctx context.Context, workspaceID, itemID, outcome string) (QueueItem, error)

	// DequeueTargets cancels the queued items for the given targets. Items
	// already dialing or completed are left alone. Returns the number
	// canceled.
	DequeueTargets(ctx context.Context, workspaceID string, targetIDs []string) (int, error)

	GetQueueItem(ctx context.Context, workspaceID, itemID string) (QueueItem, error)
	QueueDepth(ctx context.Context, workspaceID string) (int, error)
}

type SessionStore interface {
	// StartSession opens a dialing-mode session. Returns ErrConflict if the
	// agent already has an active one.
	StartSession(ctx context.Context, workspaceID, agentID, endpoint string) (AgentSession, error)

	// EndSession closes the agent's active session. Ending an absent session
	// is a no-op.
	EndSession(ctx context.Context, workspaceID, agentID string) error

	CountIdleAgents(ctx context.Context, workspaceID string) (int, error)

	// ClaimIdleAgent atomically selects one idle agent and attaches the claim
	// sentinel, stamping LastCallStartedAt with the claim time. ok=false when
	// no idle agent exists; that is not an error.
	ClaimIdleAgent(ctx context.Context, workspaceID string) (AgentSession, bool, error)

	// AssignCall replaces the claim sentinel (or empty reference) with callID,
	// stamps LastCallStartedAt, and bumps the connected counter.
	AssignCall(ctx context.Context, workspaceID, agentID, callID string) (AgentSession, error)

	// ReleaseAgent clears the current call reference. Idempotent.
	ReleaseAgent(ctx context.Context, workspaceID, agentID string) error

	// IncrementDialed adds n to the session's dialed counter.
	IncrementDialed(ctx context.Context, workspaceID, agentID string, n int) error

	ListActiveSessions(ctx context.Context, workspaceID string) ([]AgentSession, error)

	// ListStaleSessions returns active sessions holding a call reference whose
	// LastCallStartedAt (or StartedAt when never stamped) is older than cutoff.
	ListStaleSessions(ctx context.Context, workspaceID string, cutoff time.Time) ([]AgentSession, error)

	// ListDialingWorkspaces returns workspaces with at least one active session.
	ListDialingWorkspaces(ctx context.Context) ([]string, error)
}

type CallStore interface {
	CreateBatch(ctx context.Context, b DialBatch) (DialBatch, error)
	// CreateCall records a newly placed call. Returns ErrConflict on a
	// duplicate provider call ID or when the queue item already has a call
	// in flight.
	CreateCall(ctx context.Context, call ActiveCall) (ActiveCall, error)

	GetCall(ctx context.Context, workspaceID, callID string) (ActiveCall, error)
	GetCallByProviderID(ctx context.Context, providerCallID string) (ActiveCall, error)

	// AdvanceCall moves the call identified by providerCallID to status, only
	// if that is a strictly forward transition. advanced=false with a nil
	// error means the call already reached (or passed) that status; the
	// caller treats it as a duplicate or out-of-order delivery.
	//
	// One lateral move is permitted: connected -> voicemail, for calls whose
	// bridge failed and whose retry could not find an agent.
	AdvanceCall(ctx context.Context, providerCallID string, status CallStatus) (ActiveCall, bool, error)

	// IncrementBridgeAttempts records one failed bridge on the call and
	// returns the updated row.
	IncrementBridgeAttempts(ctx context.Context, workspaceID, callID string) (ActiveCall, error)

	// SetCallAgent records the bridged agent. A call with a different agent
	// already assigned returns ErrConflict.
	SetCallAgent(ctx context.Context, workspaceID, callID, agentID string) (ActiveCall, error)

	// ClearCallAgent detaches the agent after a failed bridge so the fallback
	// path can attach another.
	ClearCallAgent(ctx context.Context, workspaceID, callID string) (ActiveCall, error)

	// SetCallMachine flags the call as machine-answered.
	SetCallMachine(ctx context.Context, providerCallID string) error

	ListInFlightCalls(ctx context.Context, workspaceID string) ([]ActiveCall, error)
	CountCallsByStatus(ctx context.Context, workspaceID string) (map[CallStatus]int, error)
}
