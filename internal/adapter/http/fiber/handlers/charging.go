package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	v16 "github.com/seu-repo/ocpp-swarm/internal/ocpp/v16"
	"github.com/seu-repo/ocpp-swarm/internal/ports"
)

// ChargingHandler exposes the smart-charging operations. The same
// handler serves the simulator control plane (backed by the fleet
// manager) and the CSMS admin surface (backed by the central system
// itself).
type ChargingHandler struct {
	charging ports.SmartCharging
	log      *zap.Logger
}

// NewChargingHandler creates a new smart-charging handler.
func NewChargingHandler(charging ports.SmartCharging, log *zap.Logger) *ChargingHandler {
	return &ChargingHandler{
		charging: charging,
		log:      log,
	}
}

// SendProfileRequest carries a raw OCPP charging profile.
type SendProfileRequest struct {
	ConnectorID int                 `json:"connector_id"`
	Profile     v16.ChargingProfile `json:"profile"`
}

// SendProfile handles POST .../stations/:id/charging-profiles
func (h *ChargingHandler) SendProfile(c *fiber.Ctx) error {
	stationID := c.Params("id")

	var req SendProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Profile.ChargingProfileID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "profile.chargingProfileId is required"})
	}

	result, err := h.charging.SendChargingProfile(c.Context(), stationID, req.ConnectorID, req.Profile)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(result)
}

// ClearProfile handles DELETE .../stations/:id/charging-profiles
func (h *ChargingHandler) ClearProfile(c *fiber.Ctx) error {
	stationID := c.Params("id")

	var filters ports.ClearFilters
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&filters); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}

	result, err := h.charging.ClearChargingProfile(c.Context(), stationID, filters)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(result)
}

// CompositeSchedule handles GET .../stations/:id/composite-schedule
func (h *ChargingHandler) CompositeSchedule(c *fiber.Ctx) error {
	stationID := c.Params("id")
	connectorID := c.QueryInt("connector_id", 1)
	duration := c.QueryInt("duration", 3600)
	unit := v16.ChargingRateUnit(c.Query("unit", string(v16.RateUnitWatts)))

	if duration <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "duration must be positive"})
	}

	result, err := h.charging.GetCompositeSchedule(c.Context(), stationID, connectorID, duration, unit)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(result)
}

// TestProfileRequest names a scenario plus its inputs.
type TestProfileRequest struct {
	Scenario string                  `json:"scenario"`
	Params   ports.TestProfileParams `json:"params"`
}

// TestProfile handles POST .../stations/:id/test-profile
func (h *ChargingHandler) TestProfile(c *fiber.Ctx) error {
	stationID := c.Params("id")

	var req TestProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Scenario == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "scenario is required"})
	}

	result, err := h.charging.SendTestProfile(c.Context(), stationID, req.Scenario, req.Params)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(result)
}
