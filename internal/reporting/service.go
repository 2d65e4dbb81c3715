package reporting

import (
	"context"
	"fmt"

	"dialer-platform/internal/store"
)

// Service assembles the operator dashboard view: queue depth, live calls,
// and per-agent counters. Read-only over the store; it never mutates dialer
// state.
type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// AgentStats is one agent's session counters.
type AgentStats struct {
	AgentID   string `json:"agent_id"`
	Endpoint  string `json:"endpoint"`
	OnCall    bool   `json:"on_call"`
	Dialed    int    `json:"dialed"`
	Connected int    `json:"connected"`
}

// Summary is the workspace-level dashboard payload.
type Summary struct {
	WorkspaceID string `json:"workspace_id"`

	QueueDepth    int `json:"queue_depth"`
	ActiveAgents  int `json:"active_agents"`
	IdleAgents    int `json:"idle_agents"`
	InFlightCalls int `json:"in_flight_calls"`

	CallsByStatus map[store.CallStatus]int `json:"calls_by_status"`
	Agents        []AgentStats             `json:"agents"`
}

func (s *Service) Summary(ctx context.Context, workspaceID string) (Summary, error) {
	if workspaceID == "" {
		return Summary{}, store.ErrInvalidArgument
	}
	out := Summary{WorkspaceID: workspaceID}

	depth, err := s.store.QueueDepth(ctx, workspaceID)
	if err != nil {
		return Summary{}, fmt.Errorf("reporting: queue depth: %w", err)
	}
	out.QueueDepth = depth

	sessions, err := s.store.ListActiveSessions(ctx, workspaceID)
	if err != nil {
		return Summary{}, fmt.Errorf("reporting: sessions: %w", err)
	}
	out.ActiveAgents = len(sessions)
	for _, sess := range sessions {
		if sess.IsIdle() {
			out.IdleAgents++
		}
		out.Agents = append(out.Agents, AgentStats{
			AgentID:   sess.AgentID,
			Endpoint:  sess.Endpoint,
			OnCall:    !sess.IsIdle(),
			Dialed:    sess.Dialed,
			Connected: sess.Connected,
		})
	}

	inFlight, err := s.store.ListInFlightCalls(ctx, workspaceID)
	if err != nil {
		return Summary{}, fmt.Errorf("reporting: in-flight calls: %w", err)
	}
	out.InFlightCalls = len(inFlight)

	byStatus, err := s.store.CountCallsByStatus(ctx, workspaceID)
	if err != nil {
		return Summary{}, fmt.Errorf("reporting: calls by status: %w", err)
	}
	out.CallsByStatus = byStatus

	return out, nil
}

// LiveCalls lists the in-flight calls for the live call board.
func (s *Service) LiveCalls(ctx context.Context, workspaceID string) ([]store.ActiveCall, error) {
	if workspaceID == "" {
		return nil, store.ErrInvalidArgument
	}
	return s.store.ListInFlightCalls(ctx, workspaceID)
}
