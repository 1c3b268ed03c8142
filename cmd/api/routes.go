package main

import (
	"dialer-platform/internal/httpapi"
	"dialer-platform/internal/rbac"
	"dialer-platform/internal/telephony"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, webhooks telephony.TwilioWebhookHandler, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Provider webhooks (public).
	// NOTE: These endpoints should be protected by Twilio signature validation in production.
	r.POST("/webhooks/twilio/status", webhooks.HandleStatusCallback)
	r.POST("/webhooks/twilio/answer", webhooks.HandleAnswer)

	// AUTH routes (token issuance).
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		dialerGroup := v1.Group("/dialer")
		dialerGroup.Use(rbac.RequireRep())
		dialerGroup.Use(rbac.RequireAnyRole(rbac.RoleRep, rbac.RoleManager))
		{
			dialerGroup.POST("/sessions", h.StartSession)
			dialerGroup.GET("/sessions/active", h.ActiveSession)
			dialerGroup.GET("/sessions/:session_id", h.GetSession)
			dialerGroup.POST("/sessions/:session_id/pause", h.PauseSession)
			dialerGroup.POST("/sessions/:session_id/resume", h.ResumeSession)
			dialerGroup.POST("/sessions/:session_id/stop", h.StopSession)
			dialerGroup.GET("/sessions/:session_id/stats", h.SessionStats)

			dialerGroup.POST("/sessions/:session_id/queue", h.Enqueue)
			dialerGroup.GET("/sessions/:session_id/queue", h.ListQueue)
			dialerGroup.DELETE("/sessions/:session_id/queue/:lead_id", h.RemoveQueued)
			dialerGroup.DELETE("/sessions/:session_id/queue", h.ClearQueue)

			dialerGroup.GET("/sessions/:session_id/calls", h.ListCalls)
			dialerGroup.POST("/sessions/:session_id/calls/:call_id/hangup", h.HangupCall)

			dialerGroup.POST("/sessions/:session_id/participants", h.AddParticipant)

			dialerGroup.GET("/events", h.StreamEvents)
		}
	}
}
