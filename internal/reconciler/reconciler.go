package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dialer-platform/internal/agents"
	"dialer-platform/internal/metrics"
	"dialer-platform/internal/store"
)

// Reconciler periodically sweeps for agents stuck holding a call reference.
//
// A session goes stale when a terminal webhook is lost: the agent keeps its
// call reference forever and the scheduler stops counting them as idle. The
// sweep is double-checked: a session older than the threshold is released
// only after verifying its referenced call is terminal or missing. A long
// call that is verifiably live is never touched, no matter how old.
type Reconciler struct {
	store   store.Store
	tracker *agents.Tracker
	met     *metrics.Metrics
	log     *slog.Logger

	threshold time.Duration
	interval  time.Duration

	clock func() time.Time
}

func New(st store.Store, tracker *agents.Tracker, met *metrics.Metrics, threshold, interval time.Duration, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	if threshold <= 0 {
		threshold = 30 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{
		store:     st,
		tracker:   tracker,
		met:       met,
		log:       log,
		threshold: threshold,
		interval:  interval,
		clock:     time.Now,
	}
}

// SetClock injects a deterministic clock for tests.
func (r *Reconciler) SetClock(clock func() time.Time) { r.clock = clock }

// SweepResult summarizes one sweep over one workspace.
type SweepResult struct {
	Examined int `json:"examined"`
	Released int `json:"released"`
	Verified int `json:"verified"`
}

// Sweep releases stuck agents in one workspace.
func (r *Reconciler) Sweep(ctx context.Context, workspaceID string) (SweepResult, error) {
	var res SweepResult
	cutoff := r.clock().UTC().Add(-r.threshold)

	stale, err := r.store.ListStaleSessions(ctx, workspaceID, cutoff)
	if err != nil {
		return res, fmt.Errorf("reconciler: list stale sessions: %w", err)
	}
	res.Examined = len(stale)

	for _, s := range stale {
		released, err := r.reconcile(ctx, s)
		if err != nil {
			r.log.Error("reconcile session", "agent_id", s.AgentID, "err", err)
			continue
		}
		if released {
			res.Released++
			r.met.ForcedRelease(workspaceID)
		} else {
			res.Verified++
		}
	}
	return res, nil
}

// reconcile decides one stale session: released reports whether the agent was
// freed.
func (r *Reconciler) reconcile(ctx context.Context, s store.AgentSession) (bool, error) {
	if s.CurrentCallID == store.ClaimSentinel {
		// Claimed before a bridge that never happened.
		return true, r.tracker.ForceRelease(ctx, s.WorkspaceID, s.AgentID, "", "claim never bridged within staleness threshold")
	}

	call, err := r.store.GetCall(ctx, s.WorkspaceID, s.CurrentCallID)
	if errors.Is(err, store.ErrNotFound) {
		return true, r.tracker.ForceRelease(ctx, s.WorkspaceID, s.AgentID, s.CurrentCallID, "referenced call does not exist")
	}
	if err != nil {
		return false, err
	}
	if call.Status.Terminal() {
		return true, r.tracker.ForceRelease(ctx, s.WorkspaceID, s.AgentID, call.ID, "referenced call already terminal")
	}

	// The call is verifiably live. Marathon calls are legal.
	r.log.Debug("stale session verified live",
		"workspace_id", s.WorkspaceID,
		"agent_id", s.AgentID,
		"call_id", call.ID,
		"call_status", call.Status,
	)
	return false, nil
}

// Run sweeps every dialing workspace until the context is canceled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.log.Info("reconciler started", "interval", r.interval, "threshold", r.threshold)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopped")
			return
		case <-ticker.C:
			workspaces, err := r.store.ListDialingWorkspaces(ctx)
			if err != nil {
				r.log.Error("list dialing workspaces", "err", err)
				continue
			}
			for _, ws := range workspaces {
				res, err := r.Sweep(ctx, ws)
				if err != nil {
					r.log.Error("sweep", "workspace_id", ws, "err", err)
					continue
				}
				if res.Released > 0 {
					r.log.Warn("sweep released stuck agents",
						"workspace_id", ws,
						"released", res.Released,
						"verified", res.Verified,
					)
				}
			}
		}
	}
}
