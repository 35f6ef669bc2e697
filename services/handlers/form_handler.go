package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/zawadi-market/guard_api/dto"
	"github.com/zawadi-market/guard_api/shared"
)

type FormHandler struct {
	trapSvc  TrapServiceInterface
	abuseSvc AbuseServiceInterface
}

func NewFormHandler(trapSvc TrapServiceInterface, abuseSvc AbuseServiceInterface) *FormHandler {
	return &FormHandler{
		trapSvc:  trapSvc,
		abuseSvc: abuseSvc,
	}
}

// @Summary Issue a honeypot field name
// @Description Returns a trap token for the storefront to embed as a hidden form field
// @Tags form
// @Produce json
// @Success 200 {object} shared.Response{data=dto.TrapTokenResponse}
// @Router /api/v1/form/token [get]
func (h *FormHandler) GetTrapToken(c *fiber.Ctx) error {
	token, err := h.trapSvc.Generate(c.UserContext())
	if err != nil {
		log.WithError(err).Error("Failed to generate trap token")
		return shared.ResponseInternalError(c, err)
	}

	return shared.ResponseOK(c, dto.TrapTokenResponse{Field: token})
}

// @Summary Create a booking
// @Description Accepts a booking request; the hidden trap field must be present and empty
// @Tags form
// @Accept json
// @Produce json
// @Param bookingRequest body dto.BookingRequest true "Booking details"
// @Success 200 {object} shared.Response{data=dto.BookingResponse}
// @Router /api/v1/bookings [post]
func (h *FormHandler) CreateBooking(c *fiber.Ctx) error {
	if h.caughtInTrap(c) {
		// Indistinguishable from a real acceptance, the bot learns nothing
		return h.acceptBooking(c)
	}

	var req dto.BookingRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.ResponseBadRequest(c, "Invalid request body")
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	// Booking fulfilment itself is the storefront's job; this service only
	// gates the submission.
	return h.acceptBooking(c)
}

// caughtInTrap inspects the submitted fields for the honeypot. A populated
// trap field, or a trap-shaped field whose token fails validation, records a
// validity violation.
func (h *FormHandler) caughtInTrap(c *fiber.Ctx) bool {
	var fields map[string]interface{}
	if err := c.BodyParser(&fields); err != nil {
		return false
	}

	for name, value := range fields {
		if !h.trapSvc.LooksLikeTrapField(name) {
			continue
		}

		filled := false
		if s, ok := value.(string); ok && s != "" {
			filled = true
		}

		if filled {
			return h.abuseSvc.RecordValidityViolation(c.UserContext(), c, true, shared.ReasonTrapFieldFilled)
		}
		if !h.trapSvc.Validate(c.UserContext(), name) {
			return h.abuseSvc.RecordValidityViolation(c.UserContext(), c, true, shared.ReasonInvalidTrapToken)
		}
	}

	return false
}

func (h *FormHandler) acceptBooking(c *fiber.Ctx) error {
	return shared.ResponseJSON(c, http.StatusOK, "Booking received", dto.BookingResponse{
		Reference: uuid.NewString(),
		Status:    "received",
	})
}
