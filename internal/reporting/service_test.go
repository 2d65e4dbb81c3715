package reporting

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"dialer-platform/internal/agents"
	"dialer-platform/internal/events"
	"dialer-platform/internal/store"
)

func TestSummary(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemory()
	tracker := agents.NewTracker(st, events.NewService(events.NewMemoryRepo()), log)
	svc := NewService(st)

	const ws = "ws-1"
	if _, err := st.EnqueueTargets(ctx, ws, []store.NewTarget{
		{TargetID: "l1", PhoneNumber: "+15550100"},
		{TargetID: "l2", PhoneNumber: "+15550101"},
		{TargetID: "l3", PhoneNumber: "+15550102"},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := tracker.OptIn(ctx, ws, "agent-a", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := tracker.OptIn(ctx, ws, "agent-b", ""); err != nil {
		t.Fatal(err)
	}
	call, err := st.CreateCall(ctx, store.ActiveCall{
		WorkspaceID: ws, ProviderCallID: "CA1", TargetID: "l1",
		From: "+15550001", To: "+15550100", Status: store.CallStatusConnected,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tracker.Bind(ctx, ws, "agent-a", call.ID); err != nil {
		t.Fatal(err)
	}

	sum, err := svc.Summary(ctx, ws)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.QueueDepth != 3 {
		t.Errorf("queue depth = %d", sum.QueueDepth)
	}
	if sum.ActiveAgents != 2 || sum.IdleAgents != 1 {
		t.Errorf("agents = %d active / %d idle", sum.ActiveAgents, sum.IdleAgents)
	}
	if sum.InFlightCalls != 1 {
		t.Errorf("in-flight = %d", sum.InFlightCalls)
	}
	if sum.CallsByStatus[store.CallStatusConnected] != 1 {
		t.Errorf("by status = %v", sum.CallsByStatus)
	}

	var onCall *AgentStats
	for i := range sum.Agents {
		if sum.Agents[i].AgentID == "agent-a" {
			onCall = &sum.Agents[i]
		}
	}
	if onCall == nil || !onCall.OnCall || onCall.Connected != 1 {
		t.Errorf("agent-a stats = %+v", onCall)
	}

	// Other workspaces see nothing.
	other, err := svc.Summary(ctx, "ws-2")
	if err != nil {
		t.Fatal(err)
	}
	if other.QueueDepth != 0 || other.ActiveAgents != 0 || other.InFlightCalls != 0 {
		t.Errorf("workspace leak: %+v", other)
	}
}
