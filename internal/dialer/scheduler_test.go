package dialer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"dialer-platform/internal/agents"
	"dialer-platform/internal/events"
	"dialer-platform/internal/leads"
	"dialer-platform/internal/store"
	"dialer-platform/internal/telephony"
)

const ws = "ws-1"

type fixture struct {
	store     *store.Memory
	tracker   *agents.Tracker
	gateway   *telephony.MockGateway
	leads     *leads.MemoryDirectory
	evts      *events.Service
	scheduler *Scheduler
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemory()
	evts := events.NewService(events.NewMemoryRepo())
	tracker := agents.NewTracker(st, evts, log)
	gw := telephony.NewMockGateway()
	dir := leads.NewMemoryDirectory()
	sched := NewScheduler(st, tracker, gw, dir, evts, nil, cfg, log)
	return &fixture{store: st, tracker: tracker, gateway: gw, leads: dir, evts: evts, scheduler: sched}
}

func (f *fixture) optIn(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := f.tracker.OptIn(context.Background(), ws, fmt.Sprintf("agent-%d", i), ""); err != nil {
			t.Fatal(err)
		}
	}
}

func (f *fixture) enqueue(t *testing.T, n int) {
	t.Helper()
	targets := make([]store.NewTarget, n)
	for i := range targets {
		targets[i] = store.NewTarget{
			TargetID:    fmt.Sprintf("lead-%d", i),
			PhoneNumber: fmt.Sprintf("+1555010%04d", i),
		}
	}
	if _, err := f.store.EnqueueTargets(context.Background(), ws, targets); err != nil {
		t.Fatal(err)
	}
}

func TestRunDialCycle_ClaimsIdleTimesFanout(t *testing.T) {
	f := newFixture(t, Config{Fanout: 2})
	f.optIn(t, 5)
	f.enqueue(t, 40)

	res, err := f.scheduler.RunDialCycle(context.Background(), ws)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if res.IdleAgents != 5 || res.Claimed != 10 || res.Placed != 10 {
		t.Fatalf("result = %+v, want 5 idle / 10 claimed / 10 placed", res)
	}
	if got := len(f.gateway.Placed()); got != 10 {
		t.Fatalf("gateway saw %d placements", got)
	}
	calls, _ := f.store.ListInFlightCalls(context.Background(), ws)
	if len(calls) != 10 {
		t.Fatalf("in-flight = %d", len(calls))
	}
	for _, c := range calls {
		if c.BatchID != res.BatchID {
			t.Fatalf("call %s batch = %q, want %q", c.ID, c.BatchID, res.BatchID)
		}
		if c.Status != store.CallStatusDialing {
			t.Fatalf("call status = %s", c.Status)
		}
	}
	depth, _ := f.store.QueueDepth(context.Background(), ws)
	if depth != 30 {
		t.Fatalf("queue depth = %d, want 30", depth)
	}
}

func TestRunDialCycle_AttributesDialsAcrossIdleAgents(t *testing.T) {
	f := newFixture(t, Config{Fanout: 2})
	f.optIn(t, 2)
	f.enqueue(t, 4)

	res, err := f.scheduler.RunDialCycle(context.Background(), ws)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if res.Placed != 4 {
		t.Fatalf("placed = %d, want 4", res.Placed)
	}
	sessions, err := f.store.ListActiveSessions(context.Background(), ws)
	if err != nil {
		t.Fatal(err)
	}
	total := 0
	for _, s := range sessions {
		if s.Dialed != 2 {
			t.Fatalf("agent %s dialed = %d, want even split of 2", s.AgentID, s.Dialed)
		}
		total += s.Dialed
	}
	if total != res.Placed {
		t.Fatalf("dialed total = %d, placed = %d", total, res.Placed)
	}
}

func TestRunDialCycle_ZeroIdleAgentsClaimsNothing(t *testing.T) {
	f := newFixture(t, Config{Fanout: 2})
	f.enqueue(t, 10)

	res, err := f.scheduler.RunDialCycle(context.Background(), ws)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if res.Claimed != 0 || res.Placed != 0 {
		t.Fatalf("result = %+v, want no claims", res)
	}
	depth, _ := f.store.QueueDepth(context.Background(), ws)
	if depth != 10 {
		t.Fatalf("queue depth = %d, items were parked in dialing", depth)
	}
}

func TestRunDialCycle_RejectionIsolatedAndAttemptConsumed(t *testing.T) {
	f := newFixture(t, Config{Fanout: 1, MaxAttempts: 3})
	f.optIn(t, 4)
	f.enqueue(t, 4)
	f.gateway.Reject = func(req telephony.PlaceCallRequest) error {
		if strings.HasSuffix(req.To, "0002") {
			return errors.New("carrier rejected")
		}
		return nil
	}

	res, err := f.scheduler.RunDialCycle(context.Background(), ws)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if res.Placed != 3 || res.Requeued != 1 {
		t.Fatalf("result = %+v, want 3 placed / 1 requeued", res)
	}
	// The rejected item is back in the queue with one attempt burned.
	depth, _ := f.store.QueueDepth(context.Background(), ws)
	if depth != 1 {
		t.Fatalf("queue depth = %d", depth)
	}
}

func TestRejection_ExhaustsAtAttemptCap(t *testing.T) {
	f := newFixture(t, Config{Fanout: 1, MaxAttempts: 2})
	f.optIn(t, 1)
	f.gateway.Reject = func(telephony.PlaceCallRequest) error {
		return errors.New("always rejected")
	}
	items, err := f.store.EnqueueTargets(context.Background(), ws, []store.NewTarget{
		{TargetID: "lead-x", PhoneNumber: "+15550109999"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if res, err := f.scheduler.RunDialCycle(context.Background(), ws); err != nil || res.Requeued != 1 {
		t.Fatalf("first cycle: %v %+v", err, res)
	}
	res, err := f.scheduler.RunDialCycle(context.Background(), ws)
	if err != nil || res.Exhausted != 1 {
		t.Fatalf("second cycle: %v %+v", err, res)
	}

	item, _ := f.store.GetQueueItem(context.Background(), ws, items[0].ID)
	if item.Status != store.QueueStatusCompleted || item.Outcome != store.QueueOutcomeExhausted {
		t.Fatalf("item = %s/%s", item.Status, item.Outcome)
	}
	if !f.leads.Exhausted(ws, "lead-x") {
		t.Fatal("lead collaborator not told")
	}
	evs, _ := f.evts.Recent(context.Background(), ws, 10)
	if len(evs) != 1 || evs[0].Type != events.EventTypeTargetExhausted {
		t.Fatalf("events = %+v", evs)
	}
}

func TestSlotCap_RequeuesWithoutBurningAttempt(t *testing.T) {
	f := newFixture(t, Config{Fanout: 2})
	f.optIn(t, 2)
	f.enqueue(t, 4)

	slots := 2
	f.scheduler.SetSlotLimiter(
		func(ctx context.Context, workspaceID string) (bool, error) {
			if slots == 0 {
				return false, nil
			}
			slots--
			return true, nil
		},
		func(ctx context.Context, workspaceID string) error { return nil },
	)

	res, err := f.scheduler.RunDialCycle(context.Background(), ws)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if res.Placed != 2 || res.Requeued != 2 {
		t.Fatalf("result = %+v, want 2 placed / 2 requeued", res)
	}
	depth, _ := f.store.QueueDepth(context.Background(), ws)
	if depth != 2 {
		t.Fatalf("queue depth = %d", depth)
	}
}

func TestPickCallerID_AreaCodeMatchThenRotation(t *testing.T) {
	f := newFixture(t, Config{
		CallerIDs:     []string{"+12125550001", "+14155550002"},
		AreaCodeMatch: true,
	})
	if got := f.scheduler.pickCallerID("+12125559999"); got != "+12125550001" {
		t.Fatalf("area match = %q", got)
	}
	if got := f.scheduler.pickCallerID("+14155559999"); got != "+14155550002" {
		t.Fatalf("area match = %q", got)
	}
	// No match falls back to rotation over the pool.
	first := f.scheduler.pickCallerID("+13055550000")
	second := f.scheduler.pickCallerID("+13055550000")
	if first == second {
		t.Fatalf("rotation stuck on %q", first)
	}
}

func TestNanpAreaCode(t *testing.T) {
	cases := map[string]string{
		"+12125550001": "212",
		"+442071234":   "",
		"212555":       "",
		"":             "",
	}
	for in, want := range cases {
		if got := nanpAreaCode(in); got != want {
			t.Errorf("nanpAreaCode(%q) = %q, want %q", in, got, want)
		}
	}
}
