package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-memory Store guarded by a single mutex.
//
// Every operation is one critical section, so claims are trivially
// linearizable. Used by tests and local development; production uses the
// Postgres implementation.
type Memory struct {
	mu sync.Mutex

	items    map[string]*QueueItem
	sessions map[string]*AgentSession
	calls    map[string]*ActiveCall
	batches  map[string]*DialBatch

	// callsByProvider indexes calls by provider call id.
	callsByProvider map[string]string

	clock func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		items:           make(map[string]*QueueItem),
		sessions:        make(map[string]*AgentSession),
		calls:           make(map[string]*ActiveCall),
		batches:         make(map[string]*DialBatch),
		callsByProvider: make(map[string]string),
		clock:           time.Now,
	}
}

// SetClock injects a deterministic clock for tests.
func (m *Memory) SetClock(clock func() time.Time) { m.clock = clock }

func (m *Memory) now() time.Time { return m.clock().UTC() }

/* ===================== QUEUE ===================== */

func (m *Memory) EnqueueTargets(ctx context.Context, workspaceID string, targets []NewTarget) ([]QueueItem, error) {
	if workspaceID == "" {
		return nil, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var out []QueueItem
	for _, t := range targets {
		if t.TargetID == "" || t.PhoneNumber == "" {
			return nil, ErrInvalidArgument
		}
		if m.hasOpenItemLocked(workspaceID, t.TargetID) {
			continue
		}
		item := QueueItem{
			ID:          uuid.NewString(),
			WorkspaceID: workspaceID,
			TargetID:    t.TargetID,
			PhoneNumber: t.PhoneNumber,
			Priority:    t.Priority,
			Status:      QueueStatusQueued,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		m.items[item.ID] = &item
		out = append(out, item)
	}
	return out, nil
}

func (m *Memory) hasOpenItemLocked(workspaceID, targetID string) bool {
	for _, it := range m.items {
		if it.WorkspaceID == workspaceID && it.TargetID == targetID && it.Status != QueueStatusCompleted {
			return true
		}
	}
	return false
}

func (m *Memory) ClaimQueuedItems(ctx context.Context, workspaceID string, limit int) ([]QueueItem, error) {
	if workspaceID == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var eligible []*QueueItem
	for _, it := range m.items {
		if it.WorkspaceID == workspaceID && it.Status == QueueStatusQueued {
			eligible = append(eligible, it)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		at, bt := queueWaitKey(a), queueWaitKey(b)
		if !at.Equal(bt) {
			return at.Before(bt)
		}
		return a.ID < b.ID
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	now := m.now()
	out := make([]QueueItem, 0, len(eligible))
	for _, it := range eligible {
		it.Status = QueueStatusDialing
		t := now
		it.LastAttemptAt = &t
		it.UpdatedAt = now
		out = append(out, *it)
	}
	return out, nil
}

// queueWaitKey orders the oldest-waiting item first: items never attempted
// sort by creation time.
func queueWaitKey(it *QueueItem) time.Time {
	if it.LastAttemptAt != nil {
		return *it.LastAttemptAt
	}
	return it.CreatedAt
}

func (m *Memory) RequeueItem(ctx context.Context, workspaceID, itemID string, incrementAttempt bool) (QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, err := m.getItemLocked(workspaceID, itemID)
	if err != nil {
		return QueueItem{}, err
	}
	if it.Status == QueueStatusCompleted {
		return QueueItem{}, ErrConflict
	}
	now := m.now()
	it.Status = QueueStatusQueued
	if incrementAttempt {
		it.Attempts++
		t := now
		it.LastOutcomeAt = &t
	}
	it.UpdatedAt = now
	return *it, nil
}

func (m *Memory) CompleteItem(ctx context.Context, workspaceID, itemID, outcome string) (QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, err := m.getItemLocked(workspaceID, itemID)
	if err != nil {
		return QueueItem{}, err
	}
	now := m.now()
	if it.Status != QueueStatusCompleted {
		it.Status = QueueStatusCompleted
		it.Outcome = outcome
		it.Attempts++
		t := now
		it.LastOutcomeAt = &t
		it.UpdatedAt = now
	}
	return *it, nil
}

func (m *Memory) DequeueTargets(ctx context.Context, workspaceID string, targetIDs []string) (int, error) {
	if workspaceID == "" {
		return 0, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[string]bool, len(targetIDs))
	for _, id := range targetIDs {
		wanted[id] = true
	}
	now := m.now()
	n := 0
	for _, it := range m.items {
		if it.WorkspaceID != workspaceID || it.Status != QueueStatusQueued || !wanted[it.TargetID] {
			continue
		}
		it.Status = QueueStatusCompleted
		it.Outcome = QueueOutcomeCanceled
		it.UpdatedAt = now
		n++
	}
	return n, nil
}

func (m *Memory) GetQueueItem(ctx context.Context, workspaceID, itemID string) (QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, err := m.getItemLocked(workspaceID, itemID)
	if err != nil {
		return QueueItem{}, err
	}
	return *it, nil
}

func (m *Memory) getItemLocked(workspaceID, itemID string) (*QueueItem, error) {
	it, ok := m.items[itemID]
	if !ok || it.WorkspaceID != workspaceID {
		return nil, ErrNotFound
	}
	return it, nil
}

func (m *Memory) QueueDepth(ctx context.Context, workspaceID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, it := range m.items {
		if it.WorkspaceID == workspaceID && it.Status == QueueStatusQueued {
			n++
		}
	}
	return n, nil
}

/* ===================== SESSIONS ===================== */

func (m *Memory) StartSession(ctx context.Context, workspaceID, agentID, endpoint string) (AgentSession, error) {
	if workspaceID == "" || agentID == "" {
		return AgentSession{}, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeSessionLocked(workspaceID, agentID) != nil {
		return AgentSession{}, ErrConflict
	}
	s := AgentSession{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		AgentID:     agentID,
		Endpoint:    endpoint,
		Status:      SessionStatusActive,
		StartedAt:   m.now(),
	}
	m.sessions[s.ID] = &s
	return s, nil
}

func (m *Memory) EndSession(ctx context.Context, workspaceID, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.activeSessionLocked(workspaceID, agentID)
	if s == nil {
		return nil
	}
	now := m.now()
	s.Status = SessionStatusEnded
	s.EndedAt = &now
	return nil
}

func (m *Memory) activeSessionLocked(workspaceID, agentID string) *AgentSession {
	for _, s := range m.sessions {
		if s.WorkspaceID == workspaceID && s.AgentID == agentID && s.Status == SessionStatusActive {
			return s
		}
	}
	return nil
}

func (m *Memory) CountIdleAgents(ctx context.Context, workspaceID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.WorkspaceID == workspaceID && s.IsIdle() {
			n++
		}
	}
	return n, nil
}

func (m *Memory) ClaimIdleAgent(ctx context.Context, workspaceID string) (AgentSession, bool, error) {
	if workspaceID == "" {
		return AgentSession{}, false, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var pick *AgentSession
	for _, s := range m.sessions {
		if s.WorkspaceID != workspaceID || !s.IsIdle() {
			continue
		}
		// Least-recently-used agent first, keeping load spread even.
		if pick == nil || lastCallKey(s).Before(lastCallKey(pick)) {
			pick = s
		}
	}
	if pick == nil {
		return AgentSession{}, false, nil
	}
	// Stamp the claim so staleness is measured from the claim itself, not
	// from whenever the agent's previous call started.
	now := m.now()
	pick.CurrentCallID = ClaimSentinel
	pick.LastCallStartedAt = &now
	return *pick, true, nil
}

func lastCallKey(s *AgentSession) time.Time {
	if s.LastCallStartedAt != nil {
		return *s.LastCallStartedAt
	}
	return s.StartedAt
}

func (m *Memory) AssignCall(ctx context.Context, workspaceID, agentID, callID string) (AgentSession, error) {
	if callID == "" || callID == ClaimSentinel {
		return AgentSession{}, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.activeSessionLocked(workspaceID, agentID)
	if s == nil {
		return AgentSession{}, ErrNotFound
	}
	now := m.now()
	s.CurrentCallID = callID
	s.Connected++
	s.LastCallStartedAt = &now
	return *s, nil
}

func (m *Memory) ReleaseAgent(ctx context.Context, workspaceID, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.activeSessionLocked(workspaceID, agentID)
	if s == nil {
		// Session already ended or never existed; releasing is a no-op.
		return nil
	}
	s.CurrentCallID = ""
	return nil
}

func (m *Memory) IncrementDialed(ctx context.Context, workspaceID, agentID string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.activeSessionLocked(workspaceID, agentID)
	if s == nil {
		return ErrNotFound
	}
	s.Dialed += n
	return nil
}

func (m *Memory) ListActiveSessions(ctx context.Context, workspaceID string) ([]AgentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AgentSession
	for _, s := range m.sessions {
		if s.WorkspaceID == workspaceID && s.Status == SessionStatusActive {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

func (m *Memory) ListStaleSessions(ctx context.Context, workspaceID string, cutoff time.Time) ([]AgentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AgentSession
	for _, s := range m.sessions {
		if s.WorkspaceID != workspaceID || s.Status != SessionStatusActive || s.CurrentCallID == "" {
			continue
		}
		if lastCallKey(s).Before(cutoff) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

func (m *Memory) ListDialingWorkspaces(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, s := range m.sessions {
		if s.Status == SessionStatusActive && !seen[s.WorkspaceID] {
			seen[s.WorkspaceID] = true
			out = append(out, s.WorkspaceID)
		}
	}
	sort.Strings(out)
	return out, nil
}

/* ===================== CALLS ===================== */

func (m *Memory) CreateBatch(ctx context.Context, b DialBatch) (DialBatch, error) {
	if b.WorkspaceID == "" {
		return DialBatch{}, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = m.now()
	}
	cp := b
	m.batches[b.ID] = &cp
	return b, nil
}

func (m *Memory) CreateCall(ctx context.Context, call ActiveCall) (ActiveCall, error) {
	if call.WorkspaceID == "" || call.ProviderCallID == "" {
		return ActiveCall{}, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.callsByProvider[call.ProviderCallID]; exists {
		return ActiveCall{}, ErrConflict
	}
	if call.QueueItemID != "" {
		for _, c := range m.calls {
			if c.QueueItemID == call.QueueItemID && !c.Status.Terminal() {
				return ActiveCall{}, ErrConflict
			}
		}
	}
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	if call.Status == "" {
		call.Status = CallStatusDialing
	}
	now := m.now()
	if call.CreatedAt.IsZero() {
		call.CreatedAt = now
	}
	call.UpdatedAt = now
	cp := call
	m.calls[call.ID] = &cp
	m.callsByProvider[call.ProviderCallID] = call.ID
	return call, nil
}

func (m *Memory) GetCall(ctx context.Context, workspaceID, callID string) (ActiveCall, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[callID]
	if !ok || c.WorkspaceID != workspaceID {
		return ActiveCall{}, ErrNotFound
	}
	return *c, nil
}

func (m *Memory) GetCallByProviderID(ctx context.Context, providerCallID string) (ActiveCall, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.callByProviderLocked(providerCallID)
	if err != nil {
		return ActiveCall{}, err
	}
	return *c, nil
}

func (m *Memory) callByProviderLocked(providerCallID string) (*ActiveCall, error) {
	id, ok := m.callsByProvider[providerCallID]
	if !ok {
		return nil, ErrNotFound
	}
	return m.calls[id], nil
}

func (m *Memory) AdvanceCall(ctx context.Context, providerCallID string, status CallStatus) (ActiveCall, bool, error) {
	if !status.Valid() {
		return ActiveCall{}, false, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.callByProviderLocked(providerCallID)
	if err != nil {
		return ActiveCall{}, false, err
	}
	if status.Rank() <= c.Status.Rank() {
		if !(c.Status == CallStatusConnected && status == CallStatusVoicemail) {
			return *c, false, nil
		}
	}
	now := m.now()
	c.Status = status
	c.UpdatedAt = now
	switch {
	case status == CallStatusAnswered:
		t := now
		c.AnsweredAt = &t
	case status == CallStatusConnected:
		t := now
		c.ConnectedAt = &t
	case status.Terminal():
		t := now
		c.FinishedAt = &t
	}
	return *c, true, nil
}

func (m *Memory) SetCallAgent(ctx context.Context, workspaceID, callID, agentID string) (ActiveCall, error) {
	if agentID == "" {
		return ActiveCall{}, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.calls[callID]
	if !ok || c.WorkspaceID != workspaceID {
		return ActiveCall{}, ErrNotFound
	}
	if c.AgentID != "" && c.AgentID != agentID {
		return ActiveCall{}, ErrConflict
	}
	c.AgentID = agentID
	c.UpdatedAt = m.now()
	return *c, nil
}

func (m *Memory) ClearCallAgent(ctx context.Context, workspaceID, callID string) (ActiveCall, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.calls[callID]
	if !ok || c.WorkspaceID != workspaceID {
		return ActiveCall{}, ErrNotFound
	}
	c.AgentID = ""
	c.UpdatedAt = m.now()
	return *c, nil
}

func (m *Memory) IncrementBridgeAttempts(ctx context.Context, workspaceID, callID string) (ActiveCall, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.calls[callID]
	if !ok || c.WorkspaceID != workspaceID {
		return ActiveCall{}, ErrNotFound
	}
	c.BridgeAttempts++
	c.UpdatedAt = m.now()
	return *c, nil
}

func (m *Memory) SetCallMachine(ctx context.Context, providerCallID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.callByProviderLocked(providerCallID)
	if err != nil {
		return err
	}
	c.Machine = true
	c.UpdatedAt = m.now()
	return nil
}

func (m *Memory) ListInFlightCalls(ctx context.Context, workspaceID string) ([]ActiveCall, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ActiveCall
	for _, c := range m.calls {
		if c.WorkspaceID == workspaceID && c.Status.InFlight() {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) CountCallsByStatus(ctx context.Context, workspaceID string) (map[CallStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[CallStatus]int)
	for _, c := range m.calls {
		if c.WorkspaceID == workspaceID {
			out[c.Status]++
		}
	}
	return out, nil
}

var _ Store = (*Memory)(nil)
