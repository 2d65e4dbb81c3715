package agents

import (
	"context"
	"testing"

	"dialer-platform/internal/events"
	"dialer-platform/internal/store"
)

func newTracker(t *testing.T) (*Tracker, *store.Memory, *events.MemoryRepo) {
	t.Helper()
	m := store.NewMemory()
	repo := events.NewMemoryRepo()
	return NewTracker(m, events.NewService(repo), nil), m, repo
}

func TestTracker_ClaimEmptyPool(t *testing.T) {
	tr, _, _ := newTracker(t)
	_, ok, err := tr.Claim(context.Background(), "w")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ok {
		t.Fatal("claim from empty pool must report ok=false")
	}
}

func TestTracker_OptInClaimReleaseRoundTrip(t *testing.T) {
	tr, _, _ := newTracker(t)
	ctx := context.Background()

	if _, err := tr.OptIn(ctx, "w", "a1", ""); err != nil {
		t.Fatalf("opt in: %v", err)
	}
	s, ok, err := tr.Claim(ctx, "w")
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if s.AgentID != "a1" {
		t.Fatalf("claimed wrong agent %q", s.AgentID)
	}
	if n, _ := tr.CountIdle(ctx, "w"); n != 0 {
		t.Fatalf("expected 0 idle after claim, got %d", n)
	}
	if err := tr.Release(ctx, "w", "a1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if n, _ := tr.CountIdle(ctx, "w"); n != 1 {
		t.Fatalf("expected 1 idle after release, got %d", n)
	}
}

func TestTracker_OptInDefaultsEndpoint(t *testing.T) {
	tr, _, _ := newTracker(t)
	s, err := tr.OptIn(context.Background(), "w", "a1", "")
	if err != nil {
		t.Fatalf("opt in: %v", err)
	}
	if s.Endpoint != "client:a1" {
		t.Fatalf("expected default client endpoint, got %q", s.Endpoint)
	}
}

func TestTracker_ForceReleaseEmitsEvent(t *testing.T) {
	tr, _, repo := newTracker(t)
	ctx := context.Background()

	if _, err := tr.OptIn(ctx, "w", "a1", ""); err != nil {
		t.Fatalf("opt in: %v", err)
	}
	if _, ok, _ := tr.Claim(ctx, "w"); !ok {
		t.Fatal("expected claim")
	}
	if err := tr.ForceRelease(ctx, "w", "a1", "call-9", "stale session"); err != nil {
		t.Fatalf("force release: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 forced-release event, got %d", len(evs))
	}
	if evs[0].Type != events.EventTypeForcedRelease || evs[0].AgentID != "a1" {
		t.Fatalf("unexpected event: %+v", evs[0])
	}
	if n, _ := tr.CountIdle(ctx, "w"); n != 1 {
		t.Fatalf("agent not idle after force release")
	}
}

func TestTracker_CountDialWithoutSession(t *testing.T) {
	tr, _, _ := newTracker(t)
	if err := tr.CountDial(context.Background(), "w", "ghost", 1); err != ErrNoActiveSession {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}
