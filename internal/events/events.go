package events

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Event is an immutable, append-only operational event record.
//
// Only two classes of dialer incidents are worth surfacing to operators as
// events rather than aggregate metrics: targets exhausting their attempt cap
// and forced releases of stuck agents. Everything transient stays in logs.
//
// Invariants:
// - Events are never updated or deleted.
// - workspace_id is required for pool isolation.
// - Callers treat event logging as best-effort; it never blocks call flow.
type Event struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`

	Type EventType `json:"type" db:"type"`

	// Subject identifiers, depending on the event type.
	AgentID     string `json:"agent_id,omitempty" db:"agent_id"`
	TargetID    string `json:"target_id,omitempty" db:"target_id"`
	QueueItemID string `json:"queue_item_id,omitempty" db:"queue_item_id"`
	CallID      string `json:"call_id,omitempty" db:"call_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeTargetExhausted EventType = "target_exhausted"
	EventTypeForcedRelease   EventType = "forced_release"
)

// Repository is the persistence contract for operational events.
//
// It MUST be append-only. No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, workspaceID string, limit int) ([]Event, error)
}

var ErrInvalidEvent = errors.New("events: invalid event")

// Service records operational events.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("events: repository not configured")
	}
	if e.WorkspaceID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogTargetExhausted records a queue item hitting its attempt cap.
func (s *Service) LogTargetExhausted(ctx context.Context, workspaceID, targetID, queueItemID string, attempts int) error {
	return s.Append(ctx, Event{
		WorkspaceID: workspaceID,
		Type:        EventTypeTargetExhausted,
		TargetID:    targetID,
		QueueItemID: queueItemID,
		Message:     "target exhausted after " + strconv.Itoa(attempts) + " attempts",
	})
}

// LogForcedRelease records the reconciler freeing a stuck agent.
func (s *Service) LogForcedRelease(ctx context.Context, workspaceID, agentID, callID, reason string) error {
	return s.Append(ctx, Event{
		WorkspaceID: workspaceID,
		Type:        EventTypeForcedRelease,
		AgentID:     agentID,
		CallID:      callID,
		Message:     reason,
	})
}

func (s *Service) Recent(ctx context.Context, workspaceID string, limit int) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("events: repository not configured")
	}
	if workspaceID == "" {
		return nil, ErrInvalidEvent
	}
	if limit <= 0 {
		limit = 50
	}
	return s.repo.List(ctx, workspaceID, limit)
}

