package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"dialer-platform/internal/agents"
	"dialer-platform/internal/auth"
	"dialer-platform/internal/dialer"
	"dialer-platform/internal/events"
	"dialer-platform/internal/reporting"
	"dialer-platform/internal/store"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth      *auth.Manager
	Store     store.Store
	Tracker   *agents.Tracker
	Scheduler *dialer.Scheduler
	Reporting *reporting.Service
	Events    *events.Service
}

// --- Auth ---

type loginRequest struct {
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
	Role        string `json:"role"`
}

// Login issues a JWT access token.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.WorkspaceID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, workspace_id, role required"})
		return
	}
	tok, err := h.Auth.IssueAccessToken(time.Now(), req.UserID, req.WorkspaceID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": tok})
}

// --- Queue ---

type enqueueTarget struct {
	TargetID    string `json:"target_id"`
	PhoneNumber string `json:"phone_number"`
	Priority    int    `json:"priority"`
}

type enqueueRequest struct {
	Targets []enqueueTarget `json:"targets"`
}

// EnqueueTargets adds call targets to the workspace dial queue. Targets with
// an open queue item are skipped, not duplicated.
func (h Handlers) EnqueueTargets(c *gin.Context) {
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil || workspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(req.Targets) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "targets required"})
		return
	}
	targets := make([]store.NewTarget, 0, len(req.Targets))
	for _, t := range req.Targets {
		if t.TargetID == "" || t.PhoneNumber == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "target_id and phone_number required"})
			return
		}
		targets = append(targets, store.NewTarget{
			TargetID:    t.TargetID,
			PhoneNumber: t.PhoneNumber,
			Priority:    t.Priority,
		})
	}
	created, err := h.Store.EnqueueTargets(c.Request.Context(), workspaceID, targets)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "enqueue failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"enqueued": len(created),
		"skipped":  len(targets) - len(created),
		"items":    created,
	})
}

type dequeueRequest struct {
	TargetIDs []string `json:"target_ids"`
}

// DequeueTargets cancels queued items for the given targets. Items already
// mid-dial or completed are untouched.
func (h Handlers) DequeueTargets(c *gin.Context) {
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil || workspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	var req dequeueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(req.TargetIDs) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "target_ids required"})
		return
	}
	canceled, err := h.Store.DequeueTargets(c.Request.Context(), workspaceID, req.TargetIDs)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "dequeue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"canceled": canceled})
}

// --- Agents ---

type optInRequest struct {
	Endpoint string `json:"endpoint,omitempty"`
}

// OptIn opens a dialing-mode session for the authenticated agent.
func (h Handlers) OptIn(c *gin.Context) {
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil || workspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil || userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	var req optInRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	sess, err := h.Tracker.OptIn(c.Request.Context(), workspaceID, userID, req.Endpoint)
	if errors.Is(err, store.ErrConflict) {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "already opted in"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "opt-in failed"})
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// OptOut ends the authenticated agent's session. A live call is unaffected;
// the agent simply gets no further calls.
func (h Handlers) OptOut(c *gin.Context) {
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil || workspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil || userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	if err := h.Tracker.OptOut(c.Request.Context(), workspaceID, userID); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "opt-out failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "opted_out"})
}

// --- Operations ---

// GetStatus returns the workspace dashboard summary.
func (h Handlers) GetStatus(c *gin.Context) {
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil || workspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	sum, err := h.Reporting.Summary(c.Request.Context(), workspaceID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// GetLiveCalls returns the in-flight call board.
func (h Handlers) GetLiveCalls(c *gin.Context) {
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil || workspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	calls, err := h.Reporting.LiveCalls(c.Request.Context(), workspaceID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "live calls failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": calls, "count": len(calls)})
}

// RunDialCycle triggers one dial cycle immediately.
// RBAC: supervisor or super_admin.
func (h Handlers) RunDialCycle(c *gin.Context) {
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil || workspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	res, err := h.Scheduler.RunDialCycle(c.Request.Context(), workspaceID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "dial cycle failed"})
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetEvents lists recent operational events (exhaustions, forced releases).
func (h Handlers) GetEvents(c *gin.Context) {
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil || workspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	evs, err := h.Events.Recent(c.Request.Context(), workspaceID, limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "events lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evs, "count": len(evs)})
}
