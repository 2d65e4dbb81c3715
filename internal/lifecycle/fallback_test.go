package lifecycle

import (
	"context"
	"testing"

	"dialer-platform/internal/store"
	"dialer-platform/internal/telephony"
)

// bridgeTo runs a call through answered so an agent is attached.
func bridgeTo(t *testing.T, f *fixture, providerID, targetID string) store.ActiveCall {
	t.Helper()
	call := f.dial(t, providerID, targetID)
	d, err := f.machine.HandleStatusEvent(context.Background(), answered(providerID, false))
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != telephony.DirectiveBridge {
		t.Fatalf("setup: action = %s", d.Action)
	}
	got, err := f.store.GetCall(context.Background(), ws, call.ID)
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func bridgeFailed(providerID string) telephony.StatusEvent {
	return telephony.StatusEvent{ProviderCallID: providerID, Kind: telephony.EventBridgeFailed}
}

func TestBridgeFailure_RetriesWithDifferentAgent(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	f.optIn(t, "agent-a")
	f.optIn(t, "agent-b")
	call := bridgeTo(t, f, "CA900", "lead-9")
	first := call.AgentID

	d, err := f.machine.HandleStatusEvent(ctx, bridgeFailed("CA900"))
	if err != nil {
		t.Fatalf("bridge failure: %v", err)
	}
	if d.Action != telephony.DirectiveBridge {
		t.Fatalf("action = %s, want bridge retry", d.Action)
	}

	got, _ := f.store.GetCall(ctx, ws, call.ID)
	if got.AgentID == first || got.AgentID == "" {
		t.Fatalf("retry agent = %q, first = %q", got.AgentID, first)
	}
	if got.BridgeAttempts != 1 {
		t.Fatalf("bridge attempts = %d", got.BridgeAttempts)
	}
	// The failed agent went back to the pool; the retry agent holds the call.
	if n, _ := f.tracker.CountIdle(ctx, ws); n != 1 {
		t.Fatalf("idle = %d, want 1", n)
	}
}

func TestBridgeFailure_NoOtherAgentRoutesToVoicemail(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	f.optIn(t, "agent-a")
	call := bridgeTo(t, f, "CA910", "lead-10")

	d, err := f.machine.HandleStatusEvent(ctx, bridgeFailed("CA910"))
	if err != nil {
		t.Fatalf("bridge failure: %v", err)
	}
	if d.Action != telephony.DirectiveVoicemail || !d.Record {
		t.Fatalf("directive = %+v, want recording voicemail", d)
	}

	got, _ := f.store.GetCall(ctx, ws, call.ID)
	if got.Status != store.CallStatusVoicemail {
		t.Fatalf("status = %s, want voicemail", got.Status)
	}
	if got.AgentID != "" {
		t.Fatalf("agent still attached: %q", got.AgentID)
	}
	// agent-a is released rather than stuck on a dead bridge.
	if n, _ := f.tracker.CountIdle(ctx, ws); n != 1 {
		t.Fatalf("idle = %d, want 1", n)
	}
}

func TestBridgeFailure_SecondFailureNeverLoops(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	f.optIn(t, "agent-a")
	f.optIn(t, "agent-b")
	f.optIn(t, "agent-c")
	call := bridgeTo(t, f, "CA920", "lead-11")

	d, err := f.machine.HandleStatusEvent(ctx, bridgeFailed("CA920"))
	if err != nil || d.Action != telephony.DirectiveBridge {
		t.Fatalf("first failure: %v action=%s", err, d.Action)
	}
	d, err = f.machine.HandleStatusEvent(ctx, bridgeFailed("CA920"))
	if err != nil {
		t.Fatalf("second failure: %v", err)
	}
	if d.Action != telephony.DirectiveVoicemail {
		t.Fatalf("second failure action = %s, want voicemail", d.Action)
	}

	got, _ := f.store.GetCall(ctx, ws, call.ID)
	if got.BridgeAttempts != 2 {
		t.Fatalf("bridge attempts = %d", got.BridgeAttempts)
	}
	// agent-c was never claimed for a third bridge.
	if n, _ := f.tracker.CountIdle(ctx, ws); n != 3 {
		t.Fatalf("idle = %d, want all 3 released", n)
	}
}

func TestBridgeFailureAfterTerminal_IsDropped(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	f.dial(t, "CA930", "lead-12")
	if _, err := f.machine.HandleStatusEvent(ctx, terminal("CA930", "failed")); err != nil {
		t.Fatal(err)
	}
	d, err := f.machine.HandleStatusEvent(ctx, bridgeFailed("CA930"))
	if err != nil {
		t.Fatalf("late bridge failure: %v", err)
	}
	if d.Action != telephony.DirectiveNone {
		t.Fatalf("action = %s, want none", d.Action)
	}
}
