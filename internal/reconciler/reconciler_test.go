package reconciler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"dialer-platform/internal/agents"
	"dialer-platform/internal/events"
	"dialer-platform/internal/store"
)

const ws = "ws-1"

type fixture struct {
	store      *store.Memory
	tracker    *agents.Tracker
	evts       *events.Service
	reconciler *Reconciler
	now        time.Time
}

func newFixture(t *testing.T, threshold time.Duration) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemory()
	evts := events.NewService(events.NewMemoryRepo())
	tracker := agents.NewTracker(st, evts, log)
	r := New(st, tracker, nil, threshold, time.Minute, log)

	f := &fixture{store: st, tracker: tracker, evts: evts, reconciler: r, now: time.Now()}
	st.SetClock(func() time.Time { return f.now })
	r.SetClock(func() time.Time { return f.now })
	return f
}

// onCall opts an agent in and binds them to a call with the given status.
func (f *fixture) onCall(t *testing.T, agentID string, status store.CallStatus) store.ActiveCall {
	t.Helper()
	ctx := context.Background()
	if _, err := f.tracker.OptIn(ctx, ws, agentID, ""); err != nil {
		t.Fatal(err)
	}
	call, err := f.store.CreateCall(ctx, store.ActiveCall{
		WorkspaceID:    ws,
		ProviderCallID: "CA-" + agentID,
		TargetID:       "lead-" + agentID,
		From:           "+15550001",
		To:             "+15550100",
		Status:         status,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.tracker.Bind(ctx, ws, agentID, call.ID); err != nil {
		t.Fatal(err)
	}
	return call
}

func TestSweep_ReleasesAgentOnTerminalCall(t *testing.T) {
	f := newFixture(t, 10*time.Minute)
	f.onCall(t, "agent-a", store.CallStatusCompleted)
	f.now = f.now.Add(15 * time.Minute)

	res, err := f.reconciler.Sweep(context.Background(), ws)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Released != 1 || res.Verified != 0 {
		t.Fatalf("result = %+v", res)
	}
	if n, _ := f.tracker.CountIdle(context.Background(), ws); n != 1 {
		t.Fatalf("idle = %d, want 1", n)
	}
	// Forced release is audited, not silent.
	evs, _ := f.evts.Recent(context.Background(), ws, 10)
	if len(evs) != 1 || evs[0].Type != events.EventTypeForcedRelease {
		t.Fatalf("events = %+v", evs)
	}
}

func TestSweep_NeverReleasesVerifiedLiveCall(t *testing.T) {
	f := newFixture(t, 10*time.Minute)
	f.onCall(t, "agent-a", store.CallStatusConnected)
	f.now = f.now.Add(2 * time.Hour)

	res, err := f.reconciler.Sweep(context.Background(), ws)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Released != 0 || res.Verified != 1 {
		t.Fatalf("marathon call was released: %+v", res)
	}
	if n, _ := f.tracker.CountIdle(context.Background(), ws); n != 0 {
		t.Fatalf("idle = %d, want 0", n)
	}
}

func TestSweep_ReleasesStuckClaimSentinel(t *testing.T) {
	f := newFixture(t, 10*time.Minute)
	ctx := context.Background()
	if _, err := f.tracker.OptIn(ctx, ws, "agent-a", ""); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := f.store.ClaimIdleAgent(ctx, ws); err != nil || !ok {
		t.Fatalf("claim: %v %v", err, ok)
	}
	f.now = f.now.Add(15 * time.Minute)

	res, err := f.reconciler.Sweep(ctx, ws)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Released != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestSweep_SparesFreshClaimOnLongIdleAgent(t *testing.T) {
	f := newFixture(t, 10*time.Minute)
	ctx := context.Background()

	// Agent finishes a call, then sits idle well past the threshold.
	call := f.onCall(t, "agent-a", store.CallStatusConnected)
	if _, _, err := f.store.AdvanceCall(ctx, call.ProviderCallID, store.CallStatusCompleted); err != nil {
		t.Fatal(err)
	}
	if err := f.tracker.Release(ctx, ws, "agent-a"); err != nil {
		t.Fatal(err)
	}
	f.now = f.now.Add(15 * time.Minute)

	// A brand-new claim must be judged by its own age, not by when the
	// previous call started.
	if _, ok, err := f.store.ClaimIdleAgent(ctx, ws); err != nil || !ok {
		t.Fatalf("claim: %v %v", err, ok)
	}
	res, err := f.reconciler.Sweep(ctx, ws)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Released != 0 {
		t.Fatalf("fresh claim force-released: %+v", res)
	}
	if n, _ := f.tracker.CountIdle(ctx, ws); n != 0 {
		t.Fatalf("idle = %d, claim was stripped", n)
	}
}

func TestSweep_ReleasesDanglingCallReference(t *testing.T) {
	f := newFixture(t, 10*time.Minute)
	ctx := context.Background()
	if _, err := f.tracker.OptIn(ctx, ws, "agent-a", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.tracker.Bind(ctx, ws, "agent-a", "no-such-call"); err != nil {
		t.Fatal(err)
	}
	f.now = f.now.Add(15 * time.Minute)

	res, err := f.reconciler.Sweep(ctx, ws)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Released != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestSweep_FreshSessionsNotExamined(t *testing.T) {
	f := newFixture(t, 10*time.Minute)
	f.onCall(t, "agent-a", store.CallStatusCompleted)
	f.now = f.now.Add(5 * time.Minute)

	res, err := f.reconciler.Sweep(context.Background(), ws)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Examined != 0 {
		t.Fatalf("examined = %d, threshold not honored", res.Examined)
	}
}
