package telephony

import (
	"context"
	"net/http"
	"time"

	"dialer-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// StatusSink consumes provider status events. The dialer engine implements
// this; webhook handlers must only translate and delegate, never decide.
type StatusSink interface {
	ApplyProviderEvent(ctx context.Context, ev StatusEvent) error
}

// TwilioWebhookHandler converts Twilio callbacks into internal types and
// delegates to the status sink.
//
// No business logic here.
//
// NOTE: These endpoints should be protected by Twilio signature validation
// in production.
type TwilioWebhookHandler struct {
	Sink StatusSink

	// ConferenceCallbackURL is stamped into answer TwiML so participant
	// join/leave events flow back through HandleStatusCallback.
	ConferenceCallbackURL string

	Now func() time.Time
}

// HandleStatusCallback ingests call and conference status callbacks.
// Always returns 204: Twilio retries non-2xx, and the engine treats
// unknown/out-of-order events as drops, not errors.
func (h TwilioWebhookHandler) HandleStatusCallback(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Now == nil {
		h.Now = time.Now
	}
	if h.Sink == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "status sink not configured"})
		return
	}

	form, err := ParseTwilioStatusCallback(c.Request)
	if err != nil {
		log.Warn("twilio status parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	ev, ok := form.ToStatusEvent(h.Now().UTC())
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}

	if err := h.Sink.ApplyProviderEvent(c.Request.Context(), ev); err != nil {
		// Engine errors here are infrastructure failures (storage down), not
		// invalid events; let Twilio retry.
		log.Error("status event apply failed", "provider_call_id", ev.ProviderCallID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "apply failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleAnswer renders the TwiML that joins an answered leg into its session
// conference. The conference name rides on the answer URL query.
func (h TwilioWebhookHandler) HandleAnswer(c *gin.Context) {
	log := logger.FromGin(c)

	confID := c.Query("conference")
	if confID == "" {
		log.Warn("answer webhook without conference")
		twiml, err := RenderHangupTwiML()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
			return
		}
		c.Header("Content-Type", "application/xml")
		c.String(http.StatusOK, twiml)
		return
	}

	twiml, err := RenderConferenceJoinTwiML(ConferenceJoin{
		ConferenceID:      confID,
		RepLeg:            c.Query("role") == "rep",
		StatusCallbackURL: h.ConferenceCallbackURL,
	})
	if err != nil {
		log.Error("twiml render failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
		return
	}

	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, twiml)
}
