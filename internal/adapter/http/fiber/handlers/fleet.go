package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-swarm/internal/domain"
	"github.com/seu-repo/ocpp-swarm/internal/fleet"
)

// FleetHandler exposes the swarm lifecycle: scaling, start/stop, price
// and per-station views.
type FleetHandler struct {
	manager *fleet.Manager
	log     *zap.Logger
}

// NewFleetHandler creates a new fleet handler.
func NewFleetHandler(manager *fleet.Manager, log *zap.Logger) *FleetHandler {
	return &FleetHandler{
		manager: manager,
		log:     log,
	}
}

// --- Fleet-wide operations ---

// ListStations handles GET /api/v1/stations
func (h *FleetHandler) ListStations(c *fiber.Ctx) error {
	snapshots := h.manager.Snapshots()
	return c.JSON(fiber.Map{
		"stations": snapshots,
		"count":    len(snapshots),
	})
}

// ScaleRequest resizes the fleet.
type ScaleRequest struct {
	Count   int    `json:"count"`
	Profile string `json:"profile,omitempty"`
}

// Scale handles POST /api/v1/fleet/scale
func (h *FleetHandler) Scale(c *fiber.Ctx) error {
	var req ScaleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	size, err := h.manager.Scale(req.Count, req.Profile)
	if err != nil {
		return respondError(c, h.log, err)
	}

	h.log.Info("fleet scaled", zap.Int("stations", size))
	return c.JSON(fiber.Map{
		"status":   "scaled",
		"stations": size,
	})
}

// StartAll handles POST /api/v1/fleet/start
func (h *FleetHandler) StartAll(c *fiber.Ctx) error {
	started := h.manager.StartAll()
	return c.JSON(fiber.Map{"started": started})
}

// StopAll handles POST /api/v1/fleet/stop
func (h *FleetHandler) StopAll(c *fiber.Ctx) error {
	stopped := h.manager.StopAll()
	return c.JSON(fiber.Map{"stopped": stopped})
}

// Totals handles GET /api/v1/fleet/totals
func (h *FleetHandler) Totals(c *fiber.Ctx) error {
	return c.JSON(h.manager.Totals())
}

// GetPrice handles GET /api/v1/fleet/price
func (h *FleetHandler) GetPrice(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"price_per_kwh": h.manager.Price()})
}

// PriceRequest sets the fleet-wide energy price.
type PriceRequest struct {
	PricePerKWh float64 `json:"price_per_kwh"`
}

// SetPrice handles PUT /api/v1/fleet/price
func (h *FleetHandler) SetPrice(c *fiber.Ctx) error {
	var req PriceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := h.manager.SetPrice(req.PricePerKWh); err != nil {
		return respondError(c, h.log, err)
	}

	h.log.Info("energy price changed", zap.Float64("price_per_kwh", req.PricePerKWh))
	return c.JSON(fiber.Map{"price_per_kwh": req.PricePerKWh})
}

// Profiles handles GET /api/v1/profiles
func (h *FleetHandler) Profiles(c *fiber.Ctx) error {
	presets := fleet.Presets()
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	return c.JSON(fiber.Map{"profiles": presets, "names": names})
}

// --- Per-station operations ---

// GetStation handles GET /api/v1/stations/:id
func (h *FleetHandler) GetStation(c *fiber.Ctx) error {
	snapshot, err := h.manager.Snapshot(c.Params("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(snapshot)
}

// StartStationRequest selects the behavior preset for a station.
type StartStationRequest struct {
	Profile string `json:"profile,omitempty"`
}

// StartStation handles POST /api/v1/stations/:id/start
func (h *FleetHandler) StartStation(c *fiber.Ctx) error {
	stationID := c.Params("id")

	var req StartStationRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}

	snapshot, err := h.manager.StartStation(stationID, req.Profile)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(snapshot)
}

// StopStation handles POST /api/v1/stations/:id/stop
func (h *FleetHandler) StopStation(c *fiber.Ctx) error {
	snapshot, err := h.manager.StopStation(c.Params("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(snapshot)
}

// RemoveStation handles DELETE /api/v1/stations/:id
func (h *FleetHandler) RemoveStation(c *fiber.Ctx) error {
	stationID := c.Params("id")
	if err := h.manager.RemoveStation(stationID); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"status":     "removed",
		"station_id": stationID,
	})
}

// StationLogs handles GET /api/v1/stations/:id/logs
func (h *FleetHandler) StationLogs(c *fiber.Ctx) error {
	stationID := c.Params("id")
	logs, err := h.manager.StationLogs(stationID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"station_id": stationID,
		"logs":       logs,
	})
}

// BatteryRequest configures the EV battery model for a station.
type BatteryRequest struct {
	CapacityKWh float64 `json:"capacity_kwh"`
	InitialSoC  float64 `json:"initial_soc"`
	TargetSoC   float64 `json:"target_soc"`
	AmbientTemp float64 `json:"ambient_temp,omitempty"`
}

// SetBattery handles PUT /api/v1/stations/:id/battery
func (h *FleetHandler) SetBattery(c *fiber.Ctx) error {
	stationID := c.Params("id")

	var req BatteryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	cfg := &domain.BatteryConfig{
		CapacityKWh: req.CapacityKWh,
		InitialSoC:  req.InitialSoC,
		TargetSoC:   req.TargetSoC,
		AmbientTemp: req.AmbientTemp,
	}
	if err := h.manager.SetBattery(stationID, cfg); err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"status":     "configured",
		"station_id": stationID,
		"battery":    cfg,
	})
}
