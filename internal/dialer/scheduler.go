package dialer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dialer-platform/internal/agents"
	"dialer-platform/internal/events"
	"dialer-platform/internal/leads"
	"dialer-platform/internal/metrics"
	"dialer-platform/internal/store"
	"dialer-platform/internal/telephony"
)

// SlotAcquirer takes one unit of per-workspace dial capacity, returning
// ok=false when the in-flight cap is reached. Backed by the Redis counter in
// production.
type SlotAcquirer func(ctx context.Context, workspaceID string) (bool, error)

// SlotReleaser gives a slot back when a placement is rejected before a call
// ever existed.
type SlotReleaser func(ctx context.Context, workspaceID string) error

// Config carries the dial-cycle knobs. Fanout is how many simultaneous dials
// one idle agent is worth; over-dialing above 1 compensates for no-answers
// and machines at the cost of occasional over-dial voicemails.
type Config struct {
	Fanout      int
	MaxAttempts int

	CycleInterval time.Duration

	DialTimeout             time.Duration
	MachineDetectionTimeout time.Duration

	// CallerIDs is the pool of originating numbers. With AreaCodeMatch set,
	// a number sharing the target's area code is preferred.
	CallerIDs     []string
	AreaCodeMatch bool

	StatusCallbackURL string
}

// Scheduler runs the periodic dial cycle: count idle agents, claim
// idle * fanout queue items, and fan the batch out to the provider.
//
// Claiming is the only synchronized step. Placements are independent; one
// rejected number never blocks the rest of the batch.
type Scheduler struct {
	store   store.Store
	tracker *agents.Tracker
	gateway telephony.Gateway
	leads   leads.Directory
	evts    *events.Service
	met     *metrics.Metrics
	log     *slog.Logger

	cfg Config

	acquireSlot SlotAcquirer
	releaseSlot SlotReleaser

	mu       sync.Mutex
	rotation int
}

func NewScheduler(st store.Store, tracker *agents.Tracker, gw telephony.Gateway, dir leads.Directory, evts *events.Service, met *metrics.Metrics, cfg Config, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Fanout <= 0 {
		cfg.Fanout = 2
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = 5 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	return &Scheduler{
		store:   st,
		tracker: tracker,
		gateway: gw,
		leads:   dir,
		evts:    evts,
		met:     met,
		log:     log,
		cfg:     cfg,
	}
}

// SetSlotLimiter wires the optional per-workspace in-flight cap.
func (s *Scheduler) SetSlotLimiter(acquire SlotAcquirer, release SlotReleaser) {
	s.acquireSlot = acquire
	s.releaseSlot = release
}

// CycleResult summarizes one dial cycle for logging and the ops API.
type CycleResult struct {
	BatchID    string `json:"batch_id,omitempty"`
	IdleAgents int    `json:"idle_agents"`
	Claimed    int    `json:"claimed"`
	Placed     int    `json:"placed"`
	Requeued   int    `json:"requeued"`
	Exhausted  int    `json:"exhausted"`
}

// RunDialCycle executes one cycle for one workspace. Zero idle agents means
// zero claims; items are never parked in dialing with nobody to answer for
// them.
func (s *Scheduler) RunDialCycle(ctx context.Context, workspaceID string) (CycleResult, error) {
	var res CycleResult

	idleIDs, err := s.idleAgentIDs(ctx, workspaceID)
	if err != nil {
		return res, fmt.Errorf("dialer: list idle agents: %w", err)
	}
	idle := len(idleIDs)
	res.IdleAgents = idle
	s.met.SetIdleAgents(workspaceID, idle)
	s.updateQueueDepth(ctx, workspaceID)
	if idle == 0 {
		return res, nil
	}

	items, err := s.store.ClaimQueuedItems(ctx, workspaceID, idle*s.cfg.Fanout)
	if err != nil {
		return res, fmt.Errorf("dialer: claim items: %w", err)
	}
	res.Claimed = len(items)
	if len(items) == 0 {
		return res, nil
	}

	batch, err := s.store.CreateBatch(ctx, store.DialBatch{
		WorkspaceID: workspaceID,
		IdleAgents:  idle,
		Fanout:      s.cfg.Fanout,
		Size:        len(items),
	})
	if err != nil {
		return res, fmt.Errorf("dialer: create batch: %w", err)
	}
	res.BatchID = batch.ID

	for _, item := range items {
		outcome := s.dialItem(ctx, batch, item)
		switch outcome {
		case dialPlaced:
			res.Placed++
		case dialRequeued:
			res.Requeued++
		case dialExhausted:
			res.Exhausted++
		}
	}

	s.attributeDials(ctx, workspaceID, idleIDs, res.Placed)

	s.updateQueueDepth(ctx, workspaceID)
	s.log.Info("dial cycle",
		"workspace_id", workspaceID,
		"batch_id", batch.ID,
		"idle_agents", idle,
		"claimed", res.Claimed,
		"placed", res.Placed,
		"requeued", res.Requeued,
		"exhausted", res.Exhausted,
	)
	return res, nil
}

type dialOutcome int

const (
	dialPlaced dialOutcome = iota
	dialRequeued
	dialExhausted
)

func (s *Scheduler) dialItem(ctx context.Context, batch store.DialBatch, item store.QueueItem) dialOutcome {
	if s.acquireSlot != nil {
		ok, err := s.acquireSlot(ctx, item.WorkspaceID)
		if err != nil {
			s.log.Error("acquire dial slot", "workspace_id", item.WorkspaceID, "err", err)
		}
		if err != nil || !ok {
			// Capacity, not a failed attempt; no attempt is consumed.
			if _, rerr := s.store.RequeueItem(ctx, item.WorkspaceID, item.ID, false); rerr != nil {
				s.log.Error("requeue after slot miss", "queue_item_id", item.ID, "err", rerr)
			}
			return dialRequeued
		}
	}

	req := telephony.PlaceCallRequest{
		WorkspaceID:             item.WorkspaceID,
		To:                      item.PhoneNumber,
		From:                    s.pickCallerID(item.PhoneNumber),
		StatusCallbackURL:       s.cfg.StatusCallbackURL,
		RingTimeout:             s.cfg.DialTimeout,
		MachineDetection:        true,
		MachineDetectionTimeout: s.cfg.MachineDetectionTimeout,
	}
	placed, err := s.gateway.PlaceCall(ctx, req)
	if err != nil {
		s.met.PlacementError(item.WorkspaceID)
		s.log.Warn("placement rejected",
			"workspace_id", item.WorkspaceID,
			"queue_item_id", item.ID,
			"target_id", item.TargetID,
			"err", err,
		)
		if s.releaseSlot != nil {
			if rerr := s.releaseSlot(ctx, item.WorkspaceID); rerr != nil {
				s.log.Error("release slot after rejection", "workspace_id", item.WorkspaceID, "err", rerr)
			}
		}
		return s.consumeAttempt(ctx, item)
	}

	if _, err := s.store.CreateCall(ctx, store.ActiveCall{
		WorkspaceID:    item.WorkspaceID,
		ProviderCallID: placed.ProviderCallID,
		QueueItemID:    item.ID,
		TargetID:       item.TargetID,
		BatchID:        batch.ID,
		From:           req.From,
		To:             req.To,
		Status:         store.CallStatusDialing,
	}); err != nil {
		// The call is in flight without a record; webhooks for it will be
		// dropped as unknown and the reconciler's staleness sweep is the
		// backstop for anything it touched.
		s.log.Error("record placed call", "provider_call_id", placed.ProviderCallID, "err", err)
	}
	s.met.DialAttempt(item.WorkspaceID)
	return dialPlaced
}

// consumeAttempt burns one attempt on a rejected item: back to the queue for
// a later cycle, or exhausted at the cap.
func (s *Scheduler) consumeAttempt(ctx context.Context, item store.QueueItem) dialOutcome {
	if item.Attempts+1 >= s.cfg.MaxAttempts {
		done, err := s.store.CompleteItem(ctx, item.WorkspaceID, item.ID, store.QueueOutcomeExhausted)
		if err != nil {
			s.log.Error("exhaust item", "queue_item_id", item.ID, "err", err)
			return dialRequeued
		}
		if s.leads != nil {
			if err := s.leads.MarkExhausted(ctx, item.WorkspaceID, item.TargetID); err != nil {
				s.log.Error("mark target exhausted", "target_id", item.TargetID, "err", err)
			}
		}
		if s.evts != nil {
			if err := s.evts.LogTargetExhausted(ctx, item.WorkspaceID, item.TargetID, item.ID, done.Attempts); err != nil {
				s.log.Error("exhaustion event append", "target_id", item.TargetID, "err", err)
			}
		}
		s.met.TargetExhausted(item.WorkspaceID)
		return dialExhausted
	}
	if _, err := s.store.RequeueItem(ctx, item.WorkspaceID, item.ID, true); err != nil {
		s.log.Error("requeue rejected item", "queue_item_id", item.ID, "err", err)
	}
	return dialRequeued
}

// idleAgentIDs snapshots the idle agents a cycle is sized from.
func (s *Scheduler) idleAgentIDs(ctx context.Context, workspaceID string) ([]string, error) {
	sessions, err := s.store.ListActiveSessions(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, sess := range sessions {
		if sess.IsIdle() {
			ids = append(ids, sess.AgentID)
		}
	}
	return ids, nil
}

// attributeDials spreads a batch's placements across the idle agents it was
// sized from, keeping the per-agent dialed counters in step with the load
// dialed on each agent's behalf.
func (s *Scheduler) attributeDials(ctx context.Context, workspaceID string, agentIDs []string, placed int) {
	if placed == 0 || len(agentIDs) == 0 {
		return
	}
	base := placed / len(agentIDs)
	rem := placed % len(agentIDs)
	for i, id := range agentIDs {
		n := base
		if i < rem {
			n++
		}
		if n == 0 {
			break
		}
		if err := s.tracker.CountDial(ctx, workspaceID, id, n); err != nil {
			// The agent may have opted out mid-cycle; the counter is advisory.
			s.log.Warn("attribute dials", "workspace_id", workspaceID, "agent_id", id, "err", err)
		}
	}
}

func (s *Scheduler) updateQueueDepth(ctx context.Context, workspaceID string) {
	depth, err := s.store.QueueDepth(ctx, workspaceID)
	if err != nil {
		s.log.Error("queue depth", "workspace_id", workspaceID, "err", err)
		return
	}
	s.met.SetQueueDepth(workspaceID, depth)
}

// pickCallerID selects the originating number: an area-code match when
// configured and available, otherwise round-robin over the pool.
func (s *Scheduler) pickCallerID(to string) string {
	if len(s.cfg.CallerIDs) == 0 {
		return ""
	}
	if s.cfg.AreaCodeMatch {
		if area := nanpAreaCode(to); area != "" {
			for _, id := range s.cfg.CallerIDs {
				if nanpAreaCode(id) == area {
					return id
				}
			}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.cfg.CallerIDs[s.rotation%len(s.cfg.CallerIDs)]
	s.rotation++
	return id
}

// nanpAreaCode extracts the area code from a +1 E.164 number, or "" for
// anything else.
func nanpAreaCode(e164 string) string {
	if len(e164) != 12 || e164[:2] != "+1" {
		return ""
	}
	return e164[2:5]
}

// Run drives dial cycles for every workspace with active agents until the
// context is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CycleInterval)
	defer ticker.Stop()
	s.log.Info("scheduler started", "interval", s.cfg.CycleInterval, "fanout", s.cfg.Fanout)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			workspaces, err := s.store.ListDialingWorkspaces(ctx)
			if err != nil {
				s.log.Error("list dialing workspaces", "err", err)
				continue
			}
			for _, ws := range workspaces {
				if _, err := s.RunDialCycle(ctx, ws); err != nil {
					s.log.Error("dial cycle", "workspace_id", ws, "err", err)
				}
			}
		}
	}
}
