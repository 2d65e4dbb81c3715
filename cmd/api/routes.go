package main

import (
	"database/sql"
	"net/http"
	"time"

	"dialer-platform/internal/httpapi"
	"dialer-platform/internal/rbac"
	"dialer-platform/internal/telephony"
	"dialer-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, authMW gin.HandlerFunc, h httpapi.Handlers, webhook telephony.StatusWebhookHandler, db *sql.DB) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider webhooks (public).
	// NOTE: These endpoints should be protected by Twilio signature validation in production.
	r.POST("/webhooks/telephony/status", webhook.HandleStatusCallback)
	r.POST("/webhooks/telephony/bridge", webhook.HandleStatusCallback)

	// AUTH routes (token issuance).
	// NOTE: Placeholder login; real credential validation is not implemented.
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.GET("/me", func(c *gin.Context) {
			uid := c.GetString("user_id")
			wid := c.GetString("workspace_id")
			role := c.GetString("role")
			c.JSON(http.StatusOK, gin.H{"user_id": uid, "workspace_id": wid, "role": role})
		})

		d := v1.Group("/dialer")
		d.Use(rbac.RequireWorkspace())
		{
			// Agents manage their own availability.
			agentRoutes := d.Group("/agents")
			agentRoutes.Use(rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleSupervisor, rbac.RoleSuperAdmin))
			{
				agentRoutes.POST("/opt-in", h.OptIn)
				agentRoutes.POST("/opt-out", h.OptOut)
			}

			// Supervisors manage the queue and watch the board.
			sup := d.Group("")
			sup.Use(rbac.RequireAnyRole(rbac.RoleSupervisor, rbac.RoleSuperAdmin))
			{
				sup.POST("/queue", h.EnqueueTargets)
				sup.DELETE("/queue", h.DequeueTargets)
				sup.POST("/cycle", h.RunDialCycle)
				sup.GET("/status", h.GetStatus)
				sup.GET("/calls", h.GetLiveCalls)
				sup.GET("/events", h.GetEvents)
			}
		}
	}
}
