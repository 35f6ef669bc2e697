package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/zawadi-market/guard_api/shared"
)

// HookHandler receives payment-provider callbacks. It is the validity gate
// of the abuse engine: structurally invalid callbacks (missing transmission
// headers) accrue ban-worthy strikes, but the HTTP response stays a generic
// success so probing attackers cannot tell which check failed.
type HookHandler struct {
	abuseSvc AbuseServiceInterface
}

func NewHookHandler(abuseSvc AbuseServiceInterface) *HookHandler {
	return &HookHandler{abuseSvc: abuseSvc}
}

// @Summary PayPal webhook receiver
// @Description Accepts PayPal transmission callbacks; invalid ones are dropped behind a generic success
// @Tags webhooks
// @Accept json
// @Produce json
// @Success 200 {object} shared.Response
// @Router /api/v1/webhooks/paypal [post]
func (h *HookHandler) HandlePaypalWebhook(c *fiber.Ctx) error {
	isInvalid := c.Get(shared.PaypalSignatureHeader) == "" ||
		c.Get(shared.PaypalTransmissionID) == "" ||
		c.Get(shared.PaypalCertURLHeader) == ""

	if h.abuseSvc.RecordValidityViolation(c.UserContext(), c, isInvalid, shared.ReasonBadWebhookSig) {
		// Drop the event, answer as if everything were fine
		return shared.ResponseJSON(c, http.StatusOK, "Received", nil)
	}

	// Signature verification and event processing happen in the payments
	// service; from here the callback is only acknowledged.
	log.WithField("transmission_id", c.Get(shared.PaypalTransmissionID)).Info("Webhook accepted")
	return shared.ResponseJSON(c, http.StatusOK, "Received", nil)
}
