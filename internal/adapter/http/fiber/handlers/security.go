package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-swarm/internal/security"
)

// SecurityHandler exposes the CSMS security monitor: recorded events,
// aggregate stats, message-flow counters and the detection rule set.
type SecurityHandler struct {
	monitor *security.Monitor
	log     *zap.Logger
}

// NewSecurityHandler creates a new security handler.
func NewSecurityHandler(monitor *security.Monitor, log *zap.Logger) *SecurityHandler {
	return &SecurityHandler{
		monitor: monitor,
		log:     log,
	}
}

// Events handles GET /api/v1/csms/security/events
func (h *SecurityHandler) Events(c *fiber.Ctx) error {
	stationID := c.Query("station_id")
	limit := c.QueryInt("limit", 100)

	var events interface{}
	if stationID != "" {
		events = h.monitor.ForStation(stationID)
	} else {
		events = h.monitor.Recent(limit)
	}
	return c.JSON(fiber.Map{"events": events})
}

// ClearEvents handles DELETE /api/v1/csms/security/events
func (h *SecurityHandler) ClearEvents(c *fiber.Ctx) error {
	h.monitor.Clear()
	h.log.Info("security events cleared")
	return c.JSON(fiber.Map{"status": "cleared"})
}

// Stats handles GET /api/v1/csms/security/stats
func (h *SecurityHandler) Stats(c *fiber.Ctx) error {
	return c.JSON(h.monitor.Stats())
}

// Flow handles GET /api/v1/csms/security/flow
func (h *SecurityHandler) Flow(c *fiber.Ctx) error {
	windowSec := c.QueryInt("window", 60)
	if windowSec <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "window must be positive"})
	}
	return c.JSON(h.monitor.Flow(time.Duration(windowSec) * time.Second))
}

// Rules handles GET /api/v1/csms/security/rules
func (h *SecurityHandler) Rules(c *fiber.Ctx) error {
	rules := h.monitor.Rules()
	return c.JSON(fiber.Map{
		"rules": rules,
		"count": len(rules),
	})
}

// ReplaceRulesRequest swaps the whole detection rule set.
type ReplaceRulesRequest struct {
	Rules []security.Rule `json:"rules"`
}

// ReplaceRules handles PUT /api/v1/csms/security/rules
func (h *SecurityHandler) ReplaceRules(c *fiber.Ctx) error {
	var req ReplaceRulesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := h.monitor.ReplaceRules(req.Rules); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	h.log.Info("detection rules replaced", zap.Int("count", len(req.Rules)))
	return c.JSON(fiber.Map{
		"status": "replaced",
		"count":  len(req.Rules),
	})
}
