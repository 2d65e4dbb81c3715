package telephony

import (
	"net/http"
	"time"

	"dialer-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// StatusWebhookHandler converts provider status callbacks to normalized
// events, delegates the decision to the lifecycle machine through CallRouter,
// and writes the resulting TwiML.
//
// No business logic here.
//
// NOTE: This endpoint should be protected by provider signature validation in
// production.
type StatusWebhookHandler struct {
	Router CallRouter

	// BridgeActionURL receives the <Dial> outcome callback.
	BridgeActionURL string

	// BridgeTimeout bounds how long a bridge leg may ring.
	BridgeTimeout time.Duration

	Now func() time.Time
}

func (h StatusWebhookHandler) HandleStatusCallback(c *gin.Context) {
	log := logger.FromGin(c)

	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	if h.Router == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call router not configured"})
		return
	}

	form, err := ParseStatusCallback(c.Request)
	if err != nil {
		log.Warn("status callback parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	ev, err := form.ToStatusEvent(now().UTC())
	if err != nil {
		// Unknown provider status: reject at the boundary, never forward.
		log.Warn("status callback rejected", "call_sid", form.CallSid, "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unsupported status"})
		return
	}
	log = logger.ForCall(c.Request.Context(), ev.ProviderCallID, ev.WorkspaceID)

	directive, err := h.Router.HandleStatusEvent(c.Request.Context(), ev)
	if err != nil {
		log.Error("status event handling failed", "kind", ev.Kind, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "event handling failed"})
		return
	}

	body, err := RenderTwiML(directive, h.BridgeActionURL, int(h.BridgeTimeout.Seconds()))
	if err != nil {
		log.Error("twiml render failed", "action", directive.Action, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "render failed"})
		return
	}
	c.Data(http.StatusOK, "application/xml", []byte(body))
}
