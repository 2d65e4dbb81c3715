package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"dialer-platform/pkg/utils"

	"github.com/google/uuid"
)

// Postgres implements Store on database/sql (pgx stdlib driver).
//
// NOTE: This implementation assumes the following objects exist:
// - queue_items (partial unique index on (workspace_id, target_id) WHERE status <> 'completed')
// - agent_sessions (partial unique index on (workspace_id, agent_id) WHERE status = 'active')
// - active_calls (UNIQUE (provider_call_id); partial unique index on
//   (queue_item_id) WHERE status_rank(status) < 4)
// - dial_batches
// - an IMMUTABLE SQL function status_rank(text) returning the rank in status.go
//
// Concurrency discipline:
// - Every conditional transition is a single UPDATE with its precondition in
//   the WHERE clause, verified via RowsAffected. No read-then-write.
// - Claims use FOR UPDATE SKIP LOCKED so concurrent cycles never block on or
//   double-claim the same rows.
// - No statement here performs network I/O other than the database itself.
type Postgres struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, clock: time.Now}
}

func (p *Postgres) now() time.Time { return p.clock().UTC() }

/* ===================== QUEUE ===================== */

func (p *Postgres) EnqueueTargets(ctx context.Context, workspaceID string, targets []NewTarget) ([]QueueItem, error) {
	if workspaceID == "" {
		return nil, ErrInvalidArgument
	}
	now := p.now()
	var out []QueueItem

	err := utils.WithTx(ctx, p.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// The partial unique index on (workspace_id, target_id) WHERE status
		// <> 'completed' enforces the one-open-item invariant; ON CONFLICT
		// skips targets that already have one.
		const q = `
INSERT INTO queue_items (id, workspace_id, target_id, phone_number, priority, status, attempts, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 'queued', 0, $6, $6)
ON CONFLICT DO NOTHING
`
		for _, t := range targets {
			if t.TargetID == "" || t.PhoneNumber == "" {
				return ErrInvalidArgument
			}
			id := uuid.NewString()
			res, err := tx.ExecContext(ctx, q, id, workspaceID, t.TargetID, t.PhoneNumber, t.Priority, now)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				continue
			}
			out = append(out, QueueItem{
				ID:          id,
				WorkspaceID: workspaceID,
				TargetID:    t.TargetID,
				PhoneNumber: t.PhoneNumber,
				Priority:    t.Priority,
				Status:      QueueStatusQueued,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Postgres) ClaimQueuedItems(ctx context.Context, workspaceID string, limit int) ([]QueueItem, error) {
	if workspaceID == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 {
		return nil, nil
	}
	now := p.now()
	var out []QueueItem

	err := utils.WithTx(ctx, p.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
UPDATE queue_items
SET status = 'dialing', last_attempt_at = $3, updated_at = $3
WHERE id IN (
    SELECT id FROM queue_items
    WHERE workspace_id = $1 AND status = 'queued'
    ORDER BY priority DESC, COALESCE(last_attempt_at, created_at) ASC
    LIMIT $2
    FOR UPDATE SKIP LOCKED
)
RETURNING id, workspace_id, target_id, phone_number, priority, status, outcome, attempts,
          last_attempt_at, last_outcome_at, created_at, updated_at
`
		rows, err := tx.QueryContext(ctx, q, workspaceID, limit, now)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			it, err := scanQueueItem(rows)
			if err != nil {
				return err
			}
			out = append(out, it)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Postgres) RequeueItem(ctx context.Context, workspaceID, itemID string, incrementAttempt bool) (QueueItem, error) {
	now := p.now()
	const q = `
UPDATE queue_items
SET status = 'queued',
    attempts = attempts + CASE WHEN $3 THEN 1 ELSE 0 END,
    last_outcome_at = CASE WHEN $3 THEN $4 ELSE last_outcome_at END,
    updated_at = $4
WHERE workspace_id = $1 AND id = $2 AND status <> 'completed'
RETURNING id, workspace_id, target_id, phone_number, priority, status, outcome, attempts,
          last_attempt_at, last_outcome_at, created_at, updated_at
`
	it, err := scanQueueItemRow(p.db.QueryRowContext(ctx, q, workspaceID, itemID, incrementAttempt, now))
	if errors.Is(err, sql.ErrNoRows) {
		return QueueItem{}, p.queueItemMissReason(ctx, workspaceID, itemID)
	}
	return it, err
}

func (p *Postgres) CompleteItem(ctx context.Context, workspaceID, itemID, outcome string) (QueueItem, error) {
	now := p.now()
	const q = `
UPDATE queue_items
SET status = 'completed', outcome = $3, attempts = attempts + 1,
    last_outcome_at = $4, updated_at = $4
WHERE workspace_id = $1 AND id = $2 AND status <> 'completed'
RETURNING id, workspace_id, target_id, phone_number, priority, status, outcome, attempts,
          last_attempt_at, last_outcome_at, created_at, updated_at
`
	it, err := scanQueueItemRow(p.db.QueryRowContext(ctx, q, workspaceID, itemID, outcome, now))
	if errors.Is(err, sql.ErrNoRows) {
		// Already completed is idempotent; return the row as-is.
		existing, gerr := p.GetQueueItem(ctx, workspaceID, itemID)
		if gerr != nil {
			return QueueItem{}, gerr
		}
		return existing, nil
	}
	return it, err
}

func (p *Postgres) DequeueTargets(ctx context.Context, workspaceID string, targetIDs []string) (int, error) {
	if workspaceID == "" {
		return 0, ErrInvalidArgument
	}
	if len(targetIDs) == 0 {
		return 0, nil
	}
	const q = `
UPDATE queue_items
SET status = 'completed', outcome = 'canceled', updated_at = $3
WHERE workspace_id = $1 AND target_id = ANY($2) AND status = 'queued'
`
	res, err := p.db.ExecContext(ctx, q, workspaceID, targetIDs, p.now())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// queueItemMissReason distinguishes a missing row from a terminal one.
func (p *Postgres) queueItemMissReason(ctx context.Context, workspaceID, itemID string) error {
	if _, err := p.GetQueueItem(ctx, workspaceID, itemID); err != nil {
		return err
	}
	return ErrConflict
}

func (p *Postgres) GetQueueItem(ctx context.Context, workspaceID, itemID string) (QueueItem, error) {
	const q = `
SELECT id, workspace_id, target_id, phone_number, priority, status, outcome, attempts,
       last_attempt_at, last_outcome_at, created_at, updated_at
FROM queue_items
WHERE workspace_id = $1 AND id = $2
`
	it, err := scanQueueItemRow(p.db.QueryRowContext(ctx, q, workspaceID, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return QueueItem{}, ErrNotFound
	}
	return it, err
}

func (p *Postgres) QueueDepth(ctx context.Context, workspaceID string) (int, error) {
	const q = `SELECT COUNT(*) FROM queue_items WHERE workspace_id = $1 AND status = 'queued'`
	var n int
	if err := p.db.QueryRowContext(ctx, q, workspaceID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueueItem(r rowScanner) (QueueItem, error) {
	var it QueueItem
	var outcome sql.NullString
	err := r.Scan(
		&it.ID,
		&it.WorkspaceID,
		&it.TargetID,
		&it.PhoneNumber,
		&it.Priority,
		&it.Status,
		&outcome,
		&it.Attempts,
		&it.LastAttemptAt,
		&it.LastOutcomeAt,
		&it.CreatedAt,
		&it.UpdatedAt,
	)
	if err != nil {
		return QueueItem{}, err
	}
	it.Outcome = outcome.String
	return it, nil
}

func scanQueueItemRow(r *sql.Row) (QueueItem, error) { return scanQueueItem(r) }

/* ===================== SESSIONS ===================== */

func (p *Postgres) StartSession(ctx context.Context, workspaceID, agentID, endpoint string) (AgentSession, error) {
	if workspaceID == "" || agentID == "" {
		return AgentSession{}, ErrInvalidArgument
	}
	now := p.now()
	id := uuid.NewString()
	// Partial unique index on (workspace_id, agent_id) WHERE status = 'active'
	// enforces the single-active-session invariant.
	const q = `
INSERT INTO agent_sessions (id, workspace_id, agent_id, endpoint, status, current_call_id, dialed, connected, started_at)
VALUES ($1, $2, $3, $4, 'active', '', 0, 0, $5)
ON CONFLICT DO NOTHING
RETURNING id
`
	var got string
	err := p.db.QueryRowContext(ctx, q, id, workspaceID, agentID, endpoint, now).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return AgentSession{}, ErrConflict
	}
	if err != nil {
		return AgentSession{}, err
	}
	return AgentSession{
		ID:          id,
		WorkspaceID: workspaceID,
		AgentID:     agentID,
		Endpoint:    endpoint,
		Status:      SessionStatusActive,
		StartedAt:   now,
	}, nil
}

func (p *Postgres) EndSession(ctx context.Context, workspaceID, agentID string) error {
	now := p.now()
	const q = `
UPDATE agent_sessions
SET status = 'ended', ended_at = $3
WHERE workspace_id = $1 AND agent_id = $2 AND status = 'active'
`
	_, err := p.db.ExecContext(ctx, q, workspaceID, agentID, now)
	return err
}

func (p *Postgres) CountIdleAgents(ctx context.Context, workspaceID string) (int, error) {
	const q = `
SELECT COUNT(*) FROM agent_sessions
WHERE workspace_id = $1 AND status = 'active' AND current_call_id = ''
`
	var n int
	if err := p.db.QueryRowContext(ctx, q, workspaceID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *Postgres) ClaimIdleAgent(ctx context.Context, workspaceID string) (AgentSession, bool, error) {
	if workspaceID == "" {
		return AgentSession{}, false, ErrInvalidArgument
	}
	// Single conditional UPDATE guarded by current_call_id = ''. SKIP LOCKED
	// keeps concurrent claimers off the same row; the WHERE guard means a
	// lost race claims a different agent or none at all. The claim stamps
	// last_call_started_at so staleness is measured from the claim itself.
	const q = `
UPDATE agent_sessions
SET current_call_id = $2, last_call_started_at = $3
WHERE id = (
    SELECT id FROM agent_sessions
    WHERE workspace_id = $1 AND status = 'active' AND current_call_id = ''
    ORDER BY COALESCE(last_call_started_at, started_at) ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
RETURNING id, workspace_id, agent_id, endpoint, status, current_call_id, dialed, connected,
          last_call_started_at, started_at, ended_at
`
	s, err := scanSession(p.db.QueryRowContext(ctx, q, workspaceID, ClaimSentinel, p.now()))
	if errors.Is(err, sql.ErrNoRows) {
		return AgentSession{}, false, nil
	}
	if err != nil {
		return AgentSession{}, false, err
	}
	return s, true, nil
}

func (p *Postgres) AssignCall(ctx context.Context, workspaceID, agentID, callID string) (AgentSession, error) {
	if callID == "" || callID == ClaimSentinel {
		return AgentSession{}, ErrInvalidArgument
	}
	now := p.now()
	const q = `
UPDATE agent_sessions
SET current_call_id = $3, connected = connected + 1, last_call_started_at = $4
WHERE workspace_id = $1 AND agent_id = $2 AND status = 'active'
RETURNING id, workspace_id, agent_id, endpoint, status, current_call_id, dialed, connected,
          last_call_started_at, started_at, ended_at
`
	s, err := scanSession(p.db.QueryRowContext(ctx, q, workspaceID, agentID, callID, now))
	if errors.Is(err, sql.ErrNoRows) {
		return AgentSession{}, ErrNotFound
	}
	return s, err
}

func (p *Postgres) ReleaseAgent(ctx context.Context, workspaceID, agentID string) error {
	const q = `
UPDATE agent_sessions
SET current_call_id = ''
WHERE workspace_id = $1 AND agent_id = $2 AND status = 'active'
`
	// Zero rows affected means already idle or no session; both are fine.
	_, err := p.db.ExecContext(ctx, q, workspaceID, agentID)
	return err
}

func (p *Postgres) IncrementDialed(ctx context.Context, workspaceID, agentID string, n int) error {
	const q = `
UPDATE agent_sessions
SET dialed = dialed + $3
WHERE workspace_id = $1 AND agent_id = $2 AND status = 'active'
`
	res, err := p.db.ExecContext(ctx, q, workspaceID, agentID, n)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListActiveSessions(ctx context.Context, workspaceID string) ([]AgentSession, error) {
	const q = `
SELECT id, workspace_id, agent_id, endpoint, status, current_call_id, dialed, connected,
       last_call_started_at, started_at, ended_at
FROM agent_sessions
WHERE workspace_id = $1 AND status = 'active'
ORDER BY agent_id
`
	return p.querySessions(ctx, q, workspaceID)
}

func (p *Postgres) ListStaleSessions(ctx context.Context, workspaceID string, cutoff time.Time) ([]AgentSession, error) {
	const q = `
SELECT id, workspace_id, agent_id, endpoint, status, current_call_id, dialed, connected,
       last_call_started_at, started_at, ended_at
FROM agent_sessions
WHERE workspace_id = $1 AND status = 'active' AND current_call_id <> ''
  AND COALESCE(last_call_started_at, started_at) < $2
ORDER BY agent_id
`
	return p.querySessions(ctx, q, workspaceID, cutoff)
}

func (p *Postgres) ListDialingWorkspaces(ctx context.Context) ([]string, error) {
	const q = `SELECT DISTINCT workspace_id FROM agent_sessions WHERE status = 'active' ORDER BY workspace_id`
	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (p *Postgres) querySessions(ctx context.Context, q string, args ...any) ([]AgentSession, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AgentSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSession(r rowScanner) (AgentSession, error) {
	var s AgentSession
	err := r.Scan(
		&s.ID,
		&s.WorkspaceID,
		&s.AgentID,
		&s.Endpoint,
		&s.Status,
		&s.CurrentCallID,
		&s.Dialed,
		&s.Connected,
		&s.LastCallStartedAt,
		&s.StartedAt,
		&s.EndedAt,
	)
	return s, err
}

/* ===================== CALLS ===================== */

func (p *Postgres) CreateBatch(ctx context.Context, b DialBatch) (DialBatch, error) {
	if b.WorkspaceID == "" {
		return DialBatch{}, ErrInvalidArgument
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = p.now()
	}
	const q = `
INSERT INTO dial_batches (id, workspace_id, idle_agents, fanout, size, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`
	_, err := p.db.ExecContext(ctx, q, b.ID, b.WorkspaceID, b.IdleAgents, b.Fanout, b.Size, b.CreatedAt)
	return b, err
}

func (p *Postgres) CreateCall(ctx context.Context, call ActiveCall) (ActiveCall, error) {
	if call.WorkspaceID == "" || call.ProviderCallID == "" {
		return ActiveCall{}, ErrInvalidArgument
	}
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	if call.Status == "" {
		call.Status = CallStatusDialing
	}
	now := p.now()
	if call.CreatedAt.IsZero() {
		call.CreatedAt = now
	}
	call.UpdatedAt = now
	const q = `
INSERT INTO active_calls
  (id, workspace_id, provider_call_id, queue_item_id, target_id, batch_id,
   from_number, to_number, status, agent_id, machine, bridge_attempts, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, $12, $12)
ON CONFLICT DO NOTHING
`
	res, err := p.db.ExecContext(ctx, q,
		call.ID, call.WorkspaceID, call.ProviderCallID, call.QueueItemID, call.TargetID, call.BatchID,
		call.From, call.To, call.Status, call.AgentID, call.Machine, call.CreatedAt)
	if err != nil {
		return ActiveCall{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ActiveCall{}, err
	}
	if n == 0 {
		return ActiveCall{}, ErrConflict
	}
	return call, nil
}

func (p *Postgres) GetCall(ctx context.Context, workspaceID, callID string) (ActiveCall, error) {
	const q = callSelect + ` WHERE workspace_id = $1 AND id = $2`
	c, err := scanCall(p.db.QueryRowContext(ctx, q, workspaceID, callID))
	if errors.Is(err, sql.ErrNoRows) {
		return ActiveCall{}, ErrNotFound
	}
	return c, err
}

func (p *Postgres) GetCallByProviderID(ctx context.Context, providerCallID string) (ActiveCall, error) {
	const q = callSelect + ` WHERE provider_call_id = $1`
	c, err := scanCall(p.db.QueryRowContext(ctx, q, providerCallID))
	if errors.Is(err, sql.ErrNoRows) {
		return ActiveCall{}, ErrNotFound
	}
	return c, err
}

func (p *Postgres) AdvanceCall(ctx context.Context, providerCallID string, status CallStatus) (ActiveCall, bool, error) {
	if !status.Valid() {
		return ActiveCall{}, false, ErrInvalidArgument
	}
	now := p.now()
	// The rank guard lives in the WHERE clause so the forward-only rule is a
	// single atomic conditional update. The connected -> voicemail branch is
	// the one permitted lateral move (failed bridge with no fallback agent).
	const q = `
UPDATE active_calls
SET status = $2,
    updated_at = $3,
    answered_at  = CASE WHEN $2 = 'answered' THEN $3 ELSE answered_at END,
    connected_at = CASE WHEN $2 = 'connected' THEN $3 ELSE connected_at END,
    finished_at  = CASE WHEN $4 THEN $3 ELSE finished_at END
WHERE provider_call_id = $1
  AND (status_rank(status) < $5 OR (status = 'connected' AND $2 = 'voicemail'))
RETURNING id, workspace_id, provider_call_id, queue_item_id, target_id, batch_id,
          from_number, to_number, status, agent_id, machine, bridge_attempts,
          created_at, updated_at, answered_at, connected_at, finished_at
`
	c, err := scanCall(p.db.QueryRowContext(ctx, q, providerCallID, status, now, status.Terminal(), status.Rank()))
	if errors.Is(err, sql.ErrNoRows) {
		// No forward transition: either unknown call or stale/duplicate event.
		existing, gerr := p.GetCallByProviderID(ctx, providerCallID)
		if gerr != nil {
			return ActiveCall{}, false, gerr
		}
		return existing, false, nil
	}
	if err != nil {
		return ActiveCall{}, false, err
	}
	return c, true, nil
}

func (p *Postgres) SetCallAgent(ctx context.Context, workspaceID, callID, agentID string) (ActiveCall, error) {
	if agentID == "" {
		return ActiveCall{}, ErrInvalidArgument
	}
	now := p.now()
	const q = `
UPDATE active_calls
SET agent_id = $3, updated_at = $4
WHERE workspace_id = $1 AND id = $2 AND (agent_id = '' OR agent_id = $3)
RETURNING id, workspace_id, provider_call_id, queue_item_id, target_id, batch_id,
          from_number, to_number, status, agent_id, machine, bridge_attempts,
          created_at, updated_at, answered_at, connected_at, finished_at
`
	c, err := scanCall(p.db.QueryRowContext(ctx, q, workspaceID, callID, agentID, now))
	if errors.Is(err, sql.ErrNoRows) {
		if _, gerr := p.GetCall(ctx, workspaceID, callID); gerr != nil {
			return ActiveCall{}, gerr
		}
		return ActiveCall{}, ErrConflict
	}
	return c, err
}

func (p *Postgres) ClearCallAgent(ctx context.Context, workspaceID, callID string) (ActiveCall, error) {
	now := p.now()
	const q = `
UPDATE active_calls
SET agent_id = '', updated_at = $3
WHERE workspace_id = $1 AND id = $2
RETURNING id, workspace_id, provider_call_id, queue_item_id, target_id, batch_id,
          from_number, to_number, status, agent_id, machine, bridge_attempts,
          created_at, updated_at, answered_at, connected_at, finished_at
`
	c, err := scanCall(p.db.QueryRowContext(ctx, q, workspaceID, callID, now))
	if errors.Is(err, sql.ErrNoRows) {
		return ActiveCall{}, ErrNotFound
	}
	return c, err
}

func (p *Postgres) IncrementBridgeAttempts(ctx context.Context, workspaceID, callID string) (ActiveCall, error) {
	now := p.now()
	const q = `
UPDATE active_calls
SET bridge_attempts = bridge_attempts + 1, updated_at = $3
WHERE workspace_id = $1 AND id = $2
RETURNING id, workspace_id, provider_call_id, queue_item_id, target_id, batch_id,
          from_number, to_number, status, agent_id, machine, bridge_attempts,
          created_at, updated_at, answered_at, connected_at, finished_at
`
	c, err := scanCall(p.db.QueryRowContext(ctx, q, workspaceID, callID, now))
	if errors.Is(err, sql.ErrNoRows) {
		return ActiveCall{}, ErrNotFound
	}
	return c, err
}

func (p *Postgres) SetCallMachine(ctx context.Context, providerCallID string) error {
	now := p.now()
	const q = `UPDATE active_calls SET machine = TRUE, updated_at = $2 WHERE provider_call_id = $1`
	res, err := p.db.ExecContext(ctx, q, providerCallID, now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListInFlightCalls(ctx context.Context, workspaceID string) ([]ActiveCall, error) {
	const q = callSelect + `
WHERE workspace_id = $1 AND status IN ('dialing', 'ringing', 'answered', 'connected', 'voicemail')
ORDER BY created_at
`
	rows, err := p.db.QueryContext(ctx, q, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ActiveCall
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) CountCallsByStatus(ctx context.Context, workspaceID string) (map[CallStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM active_calls WHERE workspace_id = $1 GROUP BY status`
	rows, err := p.db.QueryContext(ctx, q, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[CallStatus]int)
	for rows.Next() {
		var s CallStatus
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[s] = n
	}
	return out, rows.Err()
}

const callSelect = `
SELECT id, workspace_id, provider_call_id, queue_item_id, target_id, batch_id,
       from_number, to_number, status, agent_id, machine, bridge_attempts,
       created_at, updated_at, answered_at, connected_at, finished_at
FROM active_calls`

func scanCall(r rowScanner) (ActiveCall, error) {
	var c ActiveCall
	err := r.Scan(
		&c.ID,
		&c.WorkspaceID,
		&c.ProviderCallID,
		&c.QueueItemID,
		&c.TargetID,
		&c.BatchID,
		&c.From,
		&c.To,
		&c.Status,
		&c.AgentID,
		&c.Machine,
		&c.BridgeAttempts,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.AnsweredAt,
		&c.ConnectedAt,
		&c.FinishedAt,
	)
	return c, err
}

var _ Store = (*Postgres)(nil)
