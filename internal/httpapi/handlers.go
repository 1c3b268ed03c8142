package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"dialer-platform/internal/auth"
	"dialer-platform/internal/conference"
	"dialer-platform/internal/dialer"
	"dialer-platform/internal/directory"
	"dialer-platform/internal/events"
	"dialer-platform/internal/stats"
	"dialer-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth        *auth.Manager
	Sessions    *dialer.Manager
	Queue       *dialer.QueueService
	Engine      *dialer.Engine
	Coordinator *conference.Coordinator
	Stats       *stats.Service
	Bus         events.Bus

	// CallerID is the outbound caller id used when dialing colleagues into a
	// conference.
	CallerID string
}

// --- Auth ---

type loginRequest struct {
	RepID string `json:"rep_id"`
	Role  string `json:"role"`
}

// Login issues a JWT token pair.
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
	if req.RepID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "rep_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.RepID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Sessions ---

func (h Handlers) StartSession(c *gin.Context) {
	repID, ok := h.repID(c)
	if !ok {
		return
	}
	res, err := h.Sessions.Start(c.Request.Context(), repID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h Handlers) ActiveSession(c *gin.Context) {
	repID, ok := h.repID(c)
	if !ok {
		return
	}
	sess, err := h.Sessions.ActiveFor(c.Request.Context(), repID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// GetSession returns the session with its queue, calls and conference
// participants in one snapshot. Dashboards call this on every event signal.
func (h Handlers) GetSession(c *gin.Context) {
	repID, ok := h.repID(c)
	if !ok {
		return
	}
	sessionID := c.Param("session_id")

	sess, err := h.Sessions.Get(c.Request.Context(), repID, sessionID)
	if err != nil {
		h.fail(c, err)
		return
	}

	queue, err := h.Queue.List(c.Request.Context(), sessionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	calls, err := h.Engine.Calls(c.Request.Context(), repID, sessionID)
	if err != nil {
		h.fail(c, err)
		return
	}

	var participants []conference.Participant
	if h.Coordinator != nil {
		participants, err = h.Coordinator.Participants(c.Request.Context(), sess.ConferenceID)
		if err != nil {
			logger.FromGin(c).Warn("participant list failed", "session_id", sessionID, "err", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"session":      sess,
		"queue":        queue,
		"calls":        calls,
		"participants": participants,
	})
}

func (h Handlers) PauseSession(c *gin.Context) {
	h.sessionAction(c, h.Sessions.Pause)
}

func (h Handlers) ResumeSession(c *gin.Context) {
	h.sessionAction(c, h.Sessions.Resume)
}

func (h Handlers) StopSession(c *gin.Context) {
	h.sessionAction(c, h.Sessions.Stop)
}

func (h Handlers) SessionStats(c *gin.Context) {
	repID, ok := h.repID(c)
	if !ok {
		return
	}
	sessionID := c.Param("session_id")

	// Ownership check before exposing aggregates.
	if _, err := h.Sessions.Get(c.Request.Context(), repID, sessionID); err != nil {
		h.fail(c, err)
		return
	}
	summary, err := h.Stats.SessionSummary(c.Request.Context(), sessionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// --- Queue ---

type enqueueRequest struct {
	LeadIDs  []string `json:"lead_ids"`
	Priority int      `json:"priority"`
}

func (h Handlers) Enqueue(c *gin.Context) {
	repID, ok := h.repID(c)
	if !ok {
		return
	}
	sessionID := c.Param("session_id")
	if _, err := h.Sessions.Get(c.Request.Context(), repID, sessionID); err != nil {
		h.fail(c, err)
		return
	}

	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	added, err := h.Queue.Enqueue(c.Request.Context(), sessionID, req.LeadIDs, req.Priority)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added, "requested": len(req.LeadIDs)})
}

func (h Handlers) ListQueue(c *gin.Context) {
	repID, ok := h.repID(c)
	if !ok {
		return
	}
	sessionID := c.Param("session_id")
	if _, err := h.Sessions.Get(c.Request.Context(), repID, sessionID); err != nil {
		h.fail(c, err)
		return
	}
	items, err := h.Queue.List(c.Request.Context(), sessionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (h Handlers) RemoveQueued(c *gin.Context) {
	repID, ok := h.repID(c)
	if !ok {
		return
	}
	sessionID := c.Param("session_id")
	leadID := c.Param("lead_id")
	if _, err := h.Sessions.Get(c.Request.Context(), repID, sessionID); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Queue.Remove(c.Request.Context(), sessionID, leadID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) ClearQueue(c *gin.Context) {
	repID, ok := h.repID(c)
	if !ok {
		return
	}
	sessionID := c.Param("session_id")
	if _, err := h.Sessions.Get(c.Request.Context(), repID, sessionID); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Queue.Clear(c.Request.Context(), sessionID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Calls ---

func (h Handlers) ListCalls(c *gin.Context) {
	repID, ok := h.repID(c)
	if !ok {
		return
	}
	calls, err := h.Engine.Calls(c.Request.Context(), repID, c.Param("session_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": calls, "count": len(calls)})
}

func (h Handlers) HangupCall(c *gin.Context) {
	repID, ok := h.repID(c)
	if !ok {
		return
	}
	err := h.Engine.Hangup(c.Request.Context(), repID, c.Param("session_id"), c.Param("call_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	// Status transitions arrive via the provider callback, not here.
	c.JSON(http.StatusAccepted, gin.H{"status": "hangup requested"})
}

// --- Conference ---

type addParticipantRequest struct {
	ColleagueID string `json:"colleague_id"`
}

func (h Handlers) AddParticipant(c *gin.Context) {
	repID, ok := h.repID(c)
	if !ok {
		return
	}
	sessionID := c.Param("session_id")
	sess, err := h.Sessions.Get(c.Request.Context(), repID, sessionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if sess.Status == dialer.SessionStatusEnded {
		h.fail(c, dialer.ErrSessionEnded)
		return
	}

	var req addParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	p, err := h.Coordinator.AddParticipant(c.Request.Context(), sess.ConferenceID, req.ColleagueID, h.CallerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// --- Events (SSE) ---

// StreamEvents pushes the rep's event stream over SSE. Events carry
// identifiers only; clients re-fetch the session snapshot on receipt.
func (h Handlers) StreamEvents(c *gin.Context) {
	repID, ok := h.repID(c)
	if !ok {
		return
	}
	if h.Bus == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "event bus not configured"})
		return
	}

	ch, cancel, err := h.Bus.Subscribe(c.Request.Context(), repID)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	// Heartbeat keeps intermediaries from closing idle streams.
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-heartbeat.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			return true
		case ev, open := <-ch:
			if !open {
				return false
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				return true
			}
			_, _ = io.WriteString(w, "event: "+string(ev.Kind)+"\n")
			_, _ = io.WriteString(w, "data: "+string(payload)+"\n\n")
			return true
		}
	})
}

// --- helpers ---

// sessionAction adapts pause/resume/stop, which share a signature.
func (h Handlers) sessionAction(c *gin.Context, fn func(ctx context.Context, repID, sessionID string) (dialer.Session, error)) {
	repID, ok := h.repID(c)
	if !ok {
		return
	}
	sess, err := fn(c.Request.Context(), repID, c.Param("session_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h Handlers) repID(c *gin.Context) (string, bool) {
	rid, err := auth.RepID(c.Request.Context())
	if err != nil || rid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "rep_id required"})
		return "", false
	}
	return rid, true
}

// fail maps service errors onto HTTP statuses.
func (h Handlers) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, dialer.ErrInvalidArgument), errors.Is(err, stats.ErrInvalidRequest), errors.Is(err, conference.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, dialer.ErrNotFound), errors.Is(err, directory.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, dialer.ErrAlreadyActive):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "rep already has an active session"})
	case errors.Is(err, dialer.ErrSessionEnded):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "session already ended"})
	case errors.Is(err, conference.ErrJoinFailed):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "participant join failed"})
	default:
		logger.FromGin(c).Error("request failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
