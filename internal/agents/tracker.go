package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"dialer-platform/internal/events"
	"dialer-platform/internal/store"
)

// Tracker is the availability tracker: the single synchronization point that
// prevents two calls from being bridged to one agent.
//
// All state lives in the store; the tracker adds validation, logging, and the
// force-release audit trail. Claim linearizability comes from the store's
// atomic conditional update, never from a read-then-write here.
type Tracker struct {
	store store.SessionStore
	evts  *events.Service
	log   *slog.Logger
}

func NewTracker(s store.SessionStore, evts *events.Service, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{store: s, evts: evts, log: log}
}

var ErrNoActiveSession = errors.New("agents: no active session")

// CountIdle returns the number of agents able to take a call right now.
func (t *Tracker) CountIdle(ctx context.Context, workspaceID string) (int, error) {
	if workspaceID == "" {
		return 0, store.ErrInvalidArgument
	}
	return t.store.CountIdleAgents(ctx, workspaceID)
}

// Claim atomically takes one idle agent out of the pool. ok=false means the
// pool is empty, which is the expected steady state, not an error.
func (t *Tracker) Claim(ctx context.Context, workspaceID string) (store.AgentSession, bool, error) {
	s, ok, err := t.store.ClaimIdleAgent(ctx, workspaceID)
	if err != nil {
		return store.AgentSession{}, false, fmt.Errorf("agents: claim: %w", err)
	}
	if ok {
		t.log.Debug("agent claimed", "workspace_id", workspaceID, "agent_id", s.AgentID)
	}
	return s, ok, nil
}

// Bind attaches the real call id to a claimed agent and counts the connect.
func (t *Tracker) Bind(ctx context.Context, workspaceID, agentID, callID string) (store.AgentSession, error) {
	s, err := t.store.AssignCall(ctx, workspaceID, agentID, callID)
	if err != nil {
		return store.AgentSession{}, fmt.Errorf("agents: bind %s: %w", agentID, err)
	}
	return s, nil
}

// Release returns an agent to the idle pool. Idempotent: releasing an idle
// agent (or one whose session already ended) is a no-op.
func (t *Tracker) Release(ctx context.Context, workspaceID, agentID string) error {
	if err := t.store.ReleaseAgent(ctx, workspaceID, agentID); err != nil {
		return fmt.Errorf("agents: release %s: %w", agentID, err)
	}
	return nil
}

// ForceRelease is the reconciler's recovery path. Same store effect as
// Release, but logged and recorded distinctly so operators can audit every
// correction.
func (t *Tracker) ForceRelease(ctx context.Context, workspaceID, agentID, callID, reason string) error {
	if err := t.store.ReleaseAgent(ctx, workspaceID, agentID); err != nil {
		return fmt.Errorf("agents: force release %s: %w", agentID, err)
	}
	t.log.Warn("agent force released",
		"workspace_id", workspaceID,
		"agent_id", agentID,
		"call_id", callID,
		"reason", reason,
		"forced", true,
	)
	if t.evts != nil {
		if err := t.evts.LogForcedRelease(ctx, workspaceID, agentID, callID, reason); err != nil {
			t.log.Error("forced-release event append failed", "agent_id", agentID, "err", err)
		}
	}
	return nil
}

// OptIn opens a dialing-mode session for an agent.
func (t *Tracker) OptIn(ctx context.Context, workspaceID, agentID, endpoint string) (store.AgentSession, error) {
	if endpoint == "" {
		// Default to a client endpoint named after the agent.
		endpoint = "client:" + agentID
	}
	s, err := t.store.StartSession(ctx, workspaceID, agentID, endpoint)
	if err != nil {
		return store.AgentSession{}, fmt.Errorf("agents: opt in %s: %w", agentID, err)
	}
	t.log.Info("agent opted in", "workspace_id", workspaceID, "agent_id", agentID)
	return s, nil
}

// OptOut ends the agent's session. An agent on a live call keeps the call;
// only the session ends, so no new calls are routed to them.
func (t *Tracker) OptOut(ctx context.Context, workspaceID, agentID string) error {
	if err := t.store.EndSession(ctx, workspaceID, agentID); err != nil {
		return fmt.Errorf("agents: opt out %s: %w", agentID, err)
	}
	t.log.Info("agent opted out", "workspace_id", workspaceID, "agent_id", agentID)
	return nil
}

// CountDial records dials attributed to an agent's session.
func (t *Tracker) CountDial(ctx context.Context, workspaceID, agentID string, n int) error {
	err := t.store.IncrementDialed(ctx, workspaceID, agentID, n)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNoActiveSession
	}
	return err
}
