package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"dialer-platform/internal/agents"
	"dialer-platform/internal/events"
	"dialer-platform/internal/leads"
	"dialer-platform/internal/metrics"
	"dialer-platform/internal/store"
	"dialer-platform/internal/telephony"
)

const (
	defaultMachineGreeting = "Sorry we missed you. We'll try you again soon. Goodbye."
	defaultBusyGreeting    = "All of our representatives are busy right now. Please leave a message after the beep."
	defaultMaxAttempts     = 3
)

// SlotReleaser frees one unit of per-workspace dial capacity when a call
// leaves flight. Backed by the Redis slot counter in production; nil in
// tests that don't care.
type SlotReleaser func(ctx context.Context, workspaceID string) error

// Machine is the authoritative per-call state machine. It consumes normalized
// provider events and owns every transition decision: bridge, voicemail,
// release, requeue, exhaust.
//
// Ordering and idempotence are delegated to the store's AdvanceCall rank
// guard: a duplicate or out-of-order event fails to advance and is dropped
// here without side effects, so a replayed terminal webhook can never
// double-release an agent and a replayed answered webhook can never claim a
// second one.
type Machine struct {
	store   store.Store
	tracker *agents.Tracker
	leads   leads.Directory
	evts    *events.Service
	fb      *Fallback
	met     *metrics.Metrics
	log     *slog.Logger

	releaseSlot SlotReleaser
	maxAttempts int

	machineGreeting string
	busyGreeting    string
}

// MachineConfig carries the optional knobs; zero values get defaults.
type MachineConfig struct {
	MaxAttempts     int
	MachineGreeting string
	BusyGreeting    string
	ReleaseSlot     SlotReleaser
	Metrics         *metrics.Metrics
}

func NewMachine(st store.Store, tracker *agents.Tracker, dir leads.Directory, evts *events.Service, fb *Fallback, cfg MachineConfig, log *slog.Logger) *Machine {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.MachineGreeting == "" {
		cfg.MachineGreeting = defaultMachineGreeting
	}
	if cfg.BusyGreeting == "" {
		cfg.BusyGreeting = defaultBusyGreeting
	}
	if fb != nil {
		fb.BusyGreeting = cfg.BusyGreeting
	}
	return &Machine{
		store:           st,
		tracker:         tracker,
		leads:           dir,
		evts:            evts,
		fb:              fb,
		met:             cfg.Metrics,
		log:             log,
		releaseSlot:     cfg.ReleaseSlot,
		maxAttempts:     cfg.MaxAttempts,
		machineGreeting: cfg.MachineGreeting,
		busyGreeting:    cfg.BusyGreeting,
	}
}

var none = telephony.Directive{Action: telephony.DirectiveNone}

// HandleStatusEvent implements telephony.CallRouter.
func (m *Machine) HandleStatusEvent(ctx context.Context, ev telephony.StatusEvent) (telephony.Directive, error) {
	switch ev.Kind {
	case telephony.EventInitiated:
		// The call row is created at dialing before the provider reports
		// initiated; nothing to do.
		return none, nil
	case telephony.EventRinging:
		return m.advanceInformational(ctx, ev, store.CallStatusRinging)
	case telephony.EventAnswered:
		return m.handleAnswered(ctx, ev)
	case telephony.EventBridgeOK:
		return none, nil
	case telephony.EventBridgeFailed:
		return m.handleBridgeFailed(ctx, ev)
	case telephony.EventTerminal:
		return m.handleTerminal(ctx, ev)
	default:
		return none, fmt.Errorf("lifecycle: unknown event kind %q", ev.Kind)
	}
}

func (m *Machine) advanceInformational(ctx context.Context, ev telephony.StatusEvent, status store.CallStatus) (telephony.Directive, error) {
	call, advanced, err := m.store.AdvanceCall(ctx, ev.ProviderCallID, status)
	if errors.Is(err, store.ErrNotFound) {
		m.dropUnknown(ev)
		return none, nil
	}
	if err != nil {
		return none, err
	}
	if !advanced {
		m.dropStale(call, ev)
	}
	return none, nil
}

func (m *Machine) handleAnswered(ctx context.Context, ev telephony.StatusEvent) (telephony.Directive, error) {
	call, advanced, err := m.store.AdvanceCall(ctx, ev.ProviderCallID, store.CallStatusAnswered)
	if errors.Is(err, store.ErrNotFound) {
		m.dropUnknown(ev)
		return none, nil
	}
	if err != nil {
		return none, err
	}
	if !advanced {
		// Duplicate or late answered. The first delivery already decided the
		// route; claiming again here would double-bridge.
		m.dropStale(call, ev)
		return none, nil
	}

	if ev.Machine {
		return m.routeMachine(ctx, call)
	}
	return m.routeHuman(ctx, call)
}

// routeMachine short-circuits machine pickups straight to the voicemail path.
// No agent is ever claimed for a machine.
func (m *Machine) routeMachine(ctx context.Context, call store.ActiveCall) (telephony.Directive, error) {
	if err := m.store.SetCallMachine(ctx, call.ProviderCallID); err != nil {
		m.log.Error("flag machine answer", "call_id", call.ID, "err", err)
	}
	if _, _, err := m.store.AdvanceCall(ctx, call.ProviderCallID, store.CallStatusVoicemail); err != nil {
		return none, err
	}
	m.met.Voicemail(call.WorkspaceID, "machine")
	m.log.Info("machine answered, dropping message",
		"workspace_id", call.WorkspaceID, "call_id", call.ID, "target_id", call.TargetID)
	return telephony.Directive{
		Action:   telephony.DirectiveVoicemail,
		Greeting: m.machineGreeting,
	}, nil
}

func (m *Machine) routeHuman(ctx context.Context, call store.ActiveCall) (telephony.Directive, error) {
	agent, ok, err := m.tracker.Claim(ctx, call.WorkspaceID)
	if err != nil {
		return none, err
	}
	if !ok {
		// Over-dial loss: a human answered and every agent is busy. Normal
		// steady state, not an error.
		if _, _, err := m.store.AdvanceCall(ctx, call.ProviderCallID, store.CallStatusVoicemail); err != nil {
			return none, err
		}
		m.met.Voicemail(call.WorkspaceID, "no_agent")
		m.log.Info("answered with no idle agent, routing to voicemail",
			"workspace_id", call.WorkspaceID, "call_id", call.ID, "target_id", call.TargetID)
		return telephony.Directive{
			Action:   telephony.DirectiveVoicemail,
			Greeting: m.busyGreeting,
			Record:   true,
		}, nil
	}

	if err := m.bindAgent(ctx, call, agent); err != nil {
		// Could not attach the claimed agent; give them back and take the
		// voicemail path rather than leaving the caller in limbo.
		m.log.Error("bind claimed agent", "call_id", call.ID, "agent_id", agent.AgentID, "err", err)
		if rerr := m.tracker.Release(ctx, call.WorkspaceID, agent.AgentID); rerr != nil {
			m.log.Error("release after failed bind", "agent_id", agent.AgentID, "err", rerr)
		}
		if _, _, aerr := m.store.AdvanceCall(ctx, call.ProviderCallID, store.CallStatusVoicemail); aerr != nil {
			return none, aerr
		}
		m.met.Voicemail(call.WorkspaceID, "bind_failed")
		return telephony.Directive{
			Action:   telephony.DirectiveVoicemail,
			Greeting: m.busyGreeting,
			Record:   true,
		}, nil
	}

	if _, _, err := m.store.AdvanceCall(ctx, call.ProviderCallID, store.CallStatusConnected); err != nil {
		m.log.Error("advance to connected", "call_id", call.ID, "err", err)
	}
	// First-touch attribution: best effort, never blocks the bridge.
	if err := m.leads.AssignOwner(ctx, call.WorkspaceID, call.TargetID, agent.AgentID); err != nil {
		m.log.Error("assign lead owner", "target_id", call.TargetID, "agent_id", agent.AgentID, "err", err)
	}
	m.met.Connect(call.WorkspaceID)
	m.log.Info("call connected",
		"workspace_id", call.WorkspaceID,
		"call_id", call.ID,
		"target_id", call.TargetID,
		"agent_id", agent.AgentID,
	)
	return telephony.Directive{
		Action:   telephony.DirectiveBridge,
		Endpoint: agent.Endpoint,
	}, nil
}

func (m *Machine) bindAgent(ctx context.Context, call store.ActiveCall, agent store.AgentSession) error {
	if _, err := m.store.SetCallAgent(ctx, call.WorkspaceID, call.ID, agent.AgentID); err != nil {
		return err
	}
	_, err := m.tracker.Bind(ctx, call.WorkspaceID, agent.AgentID, call.ID)
	return err
}

func (m *Machine) handleBridgeFailed(ctx context.Context, ev telephony.StatusEvent) (telephony.Directive, error) {
	call, err := m.store.GetCallByProviderID(ctx, ev.ProviderCallID)
	if errors.Is(err, store.ErrNotFound) {
		m.dropUnknown(ev)
		return none, nil
	}
	if err != nil {
		return none, err
	}
	if call.Status.Terminal() {
		m.dropStale(call, ev)
		return none, nil
	}
	action, d, err := m.fb.OnBridgeFailure(ctx, call)
	if err != nil {
		return none, err
	}
	if action == ActionRouteToVoicemail {
		m.met.Voicemail(call.WorkspaceID, "bridge_failed")
	}
	return d, nil
}

func (m *Machine) handleTerminal(ctx context.Context, ev telephony.StatusEvent) (telephony.Directive, error) {
	status := store.CallStatus(ev.TerminalStatus)
	if !status.Terminal() {
		return none, fmt.Errorf("lifecycle: %q is not a terminal status", ev.TerminalStatus)
	}
	call, advanced, err := m.store.AdvanceCall(ctx, ev.ProviderCallID, status)
	if errors.Is(err, store.ErrNotFound) {
		m.dropUnknown(ev)
		return none, nil
	}
	if err != nil {
		return none, err
	}
	if !advanced {
		// Already terminal: a replayed webhook. Releasing again here would be
		// the double-release the rank guard exists to prevent.
		m.dropStale(call, ev)
		return none, nil
	}

	if call.AgentID != "" {
		if err := m.tracker.Release(ctx, call.WorkspaceID, call.AgentID); err != nil {
			m.log.Error("release agent at terminal", "agent_id", call.AgentID, "err", err)
		}
	}
	if m.releaseSlot != nil {
		if err := m.releaseSlot(ctx, call.WorkspaceID); err != nil {
			m.log.Error("release dial slot", "workspace_id", call.WorkspaceID, "err", err)
		}
	}
	if err := m.settleQueueItem(ctx, call); err != nil {
		m.log.Error("settle queue item", "queue_item_id", call.QueueItemID, "err", err)
	}
	m.log.Info("call finished",
		"workspace_id", call.WorkspaceID,
		"call_id", call.ID,
		"status", call.Status,
		"agent_id", call.AgentID,
	)
	return none, nil
}

// settleQueueItem re-evaluates the queue item once its call ends:
// - connected to an agent: done, outcome connected
// - human answered but never bridged: a message was left, outcome voicemail
// - everything else (machine, no answer, busy, failed): one attempt consumed,
//   requeue until the attempt cap, then exhaust.
func (m *Machine) settleQueueItem(ctx context.Context, call store.ActiveCall) error {
	if call.QueueItemID == "" {
		return nil
	}
	if call.ConnectedAt != nil && call.AgentID != "" {
		_, err := m.store.CompleteItem(ctx, call.WorkspaceID, call.QueueItemID, store.QueueOutcomeConnected)
		return err
	}
	if call.AnsweredAt != nil && !call.Machine && call.AgentID == "" {
		_, err := m.store.CompleteItem(ctx, call.WorkspaceID, call.QueueItemID, store.QueueOutcomeVoicemail)
		return err
	}

	item, err := m.store.GetQueueItem(ctx, call.WorkspaceID, call.QueueItemID)
	if err != nil {
		return err
	}
	if item.Status == store.QueueStatusCompleted {
		return nil
	}
	if item.Attempts+1 >= m.maxAttempts {
		return m.exhaust(ctx, item)
	}
	_, err = m.store.RequeueItem(ctx, call.WorkspaceID, call.QueueItemID, true)
	return err
}

func (m *Machine) exhaust(ctx context.Context, item store.QueueItem) error {
	done, err := m.store.CompleteItem(ctx, item.WorkspaceID, item.ID, store.QueueOutcomeExhausted)
	if err != nil {
		return err
	}
	if m.leads != nil {
		if err := m.leads.MarkExhausted(ctx, item.WorkspaceID, item.TargetID); err != nil {
			m.log.Error("mark target exhausted", "target_id", item.TargetID, "err", err)
		}
	}
	if m.evts != nil {
		if err := m.evts.LogTargetExhausted(ctx, item.WorkspaceID, item.TargetID, item.ID, done.Attempts); err != nil {
			m.log.Error("exhaustion event append", "target_id", item.TargetID, "err", err)
		}
	}
	m.met.TargetExhausted(item.WorkspaceID)
	m.log.Warn("target exhausted",
		"workspace_id", item.WorkspaceID,
		"target_id", item.TargetID,
		"queue_item_id", item.ID,
		"attempts", done.Attempts,
	)
	return nil
}

func (m *Machine) dropUnknown(ev telephony.StatusEvent) {
	m.log.Warn("event for unknown call dropped",
		"provider_call_id", ev.ProviderCallID, "kind", ev.Kind)
}

func (m *Machine) dropStale(call store.ActiveCall, ev telephony.StatusEvent) {
	m.met.StaleWebhook(call.WorkspaceID)
	m.log.Debug("stale or duplicate event dropped",
		"provider_call_id", ev.ProviderCallID,
		"kind", ev.Kind,
		"current_status", call.Status,
	)
}

var _ telephony.CallRouter = (*Machine)(nil)
