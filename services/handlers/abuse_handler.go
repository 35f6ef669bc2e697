package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/zawadi-market/guard_api/shared"
)

type AbuseHandler struct {
	abuseSvc AbuseServiceInterface
	rateSvc  RateLimitServiceInterface
	store    IncidentStoreInterface
}

func NewAbuseHandler(abuseSvc AbuseServiceInterface, rateSvc RateLimitServiceInterface, store IncidentStoreInterface) *AbuseHandler {
	return &AbuseHandler{
		abuseSvc: abuseSvc,
		rateSvc:  rateSvc,
		store:    store,
	}
}

// @Summary Abuse statistics
// @Description Incident totals grouped by violation reason
// @Tags admin
// @Produce json
// @Success 200 {object} shared.Response{data=dto.AbuseStatsResponse}
// @Router /api/v1/admin/abuse/stats [get]
func (h *AbuseHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.store.IncidentStats()
	if err != nil {
		return shared.ResponseInternalError(c, err)
	}

	return shared.ResponseOK(c, stats)
}

// @Summary List abuse incidents
// @Description Paged incident log, most recent first
// @Tags admin
// @Produce json
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} shared.Response{data=dto.IncidentListResponse}
// @Router /api/v1/admin/abuse/incidents [get]
func (h *AbuseHandler) ListIncidents(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 50)

	resp, err := h.store.ListIncidents(page, limit)
	if err != nil {
		return shared.ResponseInternalError(c, err)
	}

	return shared.ResponseOK(c, resp)
}

// @Summary Rate limiter configuration
// @Description Active limiter kinds with their algorithms and windows
// @Tags admin
// @Produce json
// @Success 200 {object} shared.Response{data=[]dto.RateLimitConfigInfo}
// @Router /api/v1/admin/abuse/limits [get]
func (h *AbuseHandler) GetRateLimits(c *fiber.Ctx) error {
	return shared.ResponseOK(c, h.rateSvc.ConfigList())
}

// @Summary Ban status for an IP
// @Tags admin
// @Produce json
// @Param ip path string true "Client IP"
// @Success 200 {object} shared.Response{data=dto.BanStatusResponse}
// @Router /api/v1/admin/abuse/bans/{ip} [get]
func (h *AbuseHandler) GetBanStatus(c *fiber.Ctx) error {
	ip := c.Params("ip")
	if ip == "" {
		return shared.ResponseBadRequest(c, "Missing IP")
	}

	status, err := h.abuseSvc.Status(c.UserContext(), ip)
	if err != nil {
		return shared.ResponseInternalError(c, err)
	}

	return shared.ResponseOK(c, status)
}

// @Summary Lift a ban
// @Description Clears the block slot and soft strikes for an IP
// @Tags admin
// @Produce json
// @Param ip path string true "Client IP"
// @Success 200 {object} shared.Response
// @Router /api/v1/admin/abuse/bans/{ip} [delete]
func (h *AbuseHandler) Unban(c *fiber.Ctx) error {
	ip := c.Params("ip")
	if ip == "" {
		return shared.ResponseBadRequest(c, "Missing IP")
	}

	if err := h.abuseSvc.Unban(c.UserContext(), ip); err != nil {
		return shared.ResponseInternalError(c, err)
	}

	return shared.ResponseJSON(c, http.StatusOK, "Ban lifted", nil)
}
