package events

import (
	"context"
	"testing"
)

func TestService_AppendRequiresWorkspaceAndType(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Append(context.Background(), Event{Type: EventTypeForcedRelease}); err == nil {
		t.Fatalf("expected error for missing workspace")
	}
	if err := svc.Append(context.Background(), Event{WorkspaceID: "w"}); err == nil {
		t.Fatalf("expected error for missing type")
	}
}

func TestService_LogTargetExhausted(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogTargetExhausted(context.Background(), "w", "t1", "q1", 3); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	if evs[0].Type != EventTypeTargetExhausted || evs[0].TargetID != "t1" {
		t.Fatalf("unexpected event: %+v", evs[0])
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp assigned")
	}
}

func TestService_RecentIsNewestFirstAndScoped(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	_ = svc.LogForcedRelease(context.Background(), "w1", "a1", "c1", "stale claim")
	_ = svc.LogForcedRelease(context.Background(), "w2", "a2", "c2", "stale claim")
	_ = svc.LogForcedRelease(context.Background(), "w1", "a3", "c3", "stale claim")

	got, err := svc.Recent(context.Background(), "w1", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events for w1, got %d", len(got))
	}
	if got[0].AgentID != "a3" {
		t.Fatalf("expected newest first, got %+v", got[0])
	}
}
