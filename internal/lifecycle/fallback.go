package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"dialer-platform/internal/agents"
	"dialer-platform/internal/store"
	"dialer-platform/internal/telephony"
)

// Action is the outcome of a bridge-failure recovery attempt.
type Action string

const (
	ActionRetrySucceeded   Action = "retry_succeeded"
	ActionRouteToVoicemail Action = "route_to_voicemail"
)

// Fallback handles failed agent bridges: one re-claim of a different idle
// agent, then voicemail. Never more than one retry per call, so a burst of
// bridge failures under agent scarcity cannot starve the scheduler's idle
// count.
type Fallback struct {
	store   store.Store
	tracker *agents.Tracker
	log     *slog.Logger

	// BusyGreeting is spoken when the retry also fails to find an agent.
	BusyGreeting string
}

func NewFallback(st store.Store, tracker *agents.Tracker, log *slog.Logger) *Fallback {
	if log == nil {
		log = slog.Default()
	}
	return &Fallback{
		store:        st,
		tracker:      tracker,
		log:          log,
		BusyGreeting: defaultBusyGreeting,
	}
}

// OnBridgeFailure decides what to do with a call whose bridge to call.AgentID
// failed. The replacement agent is claimed before the failed one is released
// so the re-claim can never hand back the agent that just failed.
func (f *Fallback) OnBridgeFailure(ctx context.Context, call store.ActiveCall) (Action, telephony.Directive, error) {
	failed := call.AgentID

	updated, err := f.store.IncrementBridgeAttempts(ctx, call.WorkspaceID, call.ID)
	if err != nil {
		return "", telephony.Directive{}, fmt.Errorf("lifecycle: record bridge failure: %w", err)
	}
	if updated.BridgeAttempts > 1 {
		// The retry bridge failed too. No further cascade.
		f.log.Warn("second bridge failed, routing to voicemail",
			"workspace_id", call.WorkspaceID, "call_id", call.ID, "agent_id", failed)
		return f.giveUp(ctx, call, failed)
	}

	next, ok, err := f.tracker.Claim(ctx, call.WorkspaceID)
	if err != nil {
		return "", telephony.Directive{}, err
	}
	if !ok {
		return f.giveUp(ctx, call, failed)
	}

	if _, err := f.store.ClearCallAgent(ctx, call.WorkspaceID, call.ID); err != nil {
		f.releaseQuietly(ctx, call.WorkspaceID, next.AgentID)
		return "", telephony.Directive{}, fmt.Errorf("lifecycle: detach failed agent: %w", err)
	}
	if _, err := f.store.SetCallAgent(ctx, call.WorkspaceID, call.ID, next.AgentID); err != nil {
		f.releaseQuietly(ctx, call.WorkspaceID, next.AgentID)
		return "", telephony.Directive{}, fmt.Errorf("lifecycle: attach retry agent: %w", err)
	}
	if _, err := f.tracker.Bind(ctx, call.WorkspaceID, next.AgentID, call.ID); err != nil {
		f.releaseQuietly(ctx, call.WorkspaceID, next.AgentID)
		return "", telephony.Directive{}, err
	}
	f.releaseQuietly(ctx, call.WorkspaceID, failed)

	f.log.Info("bridge retried with fallback agent",
		"workspace_id", call.WorkspaceID,
		"call_id", call.ID,
		"failed_agent", failed,
		"retry_agent", next.AgentID,
	)
	return ActionRetrySucceeded, telephony.Directive{
		Action:   telephony.DirectiveBridge,
		Endpoint: next.Endpoint,
	}, nil
}

// giveUp releases the failed agent and routes the caller to voicemail.
func (f *Fallback) giveUp(ctx context.Context, call store.ActiveCall, failedAgent string) (Action, telephony.Directive, error) {
	f.releaseQuietly(ctx, call.WorkspaceID, failedAgent)
	if _, err := f.store.ClearCallAgent(ctx, call.WorkspaceID, call.ID); err != nil {
		f.log.Error("clear agent after failed bridge", "call_id", call.ID, "err", err)
	}
	if _, _, err := f.store.AdvanceCall(ctx, call.ProviderCallID, store.CallStatusVoicemail); err != nil {
		f.log.Error("mark voicemail after failed bridge", "call_id", call.ID, "err", err)
	}
	return ActionRouteToVoicemail, telephony.Directive{
		Action:   telephony.DirectiveVoicemail,
		Greeting: f.BusyGreeting,
		Record:   true,
	}, nil
}

func (f *Fallback) releaseQuietly(ctx context.Context, workspaceID, agentID string) {
	if agentID == "" {
		return
	}
	if err := f.tracker.Release(ctx, workspaceID, agentID); err != nil {
		f.log.Error("release agent", "workspace_id", workspaceID, "agent_id", agentID, "err", err)
	}
}
