package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-swarm/internal/domain"
	"github.com/seu-repo/ocpp-swarm/internal/fleet"
)

// FaultHandler manages fault rules and immediate fault injection.
type FaultHandler struct {
	manager *fleet.Manager
	log     *zap.Logger
}

// NewFaultHandler creates a new fault handler.
func NewFaultHandler(manager *fleet.Manager, log *zap.Logger) *FaultHandler {
	return &FaultHandler{
		manager: manager,
		log:     log,
	}
}

// ListRules handles GET /api/v1/faults
func (h *FaultHandler) ListRules(c *fiber.Ctx) error {
	rules := h.manager.Faults().Rules()
	return c.JSON(fiber.Map{
		"rules": rules,
		"count": len(rules),
	})
}

// FaultRuleRequest arms a fault rule. A station id of "*" targets the
// whole fleet.
type FaultRuleRequest struct {
	StationID   string  `json:"station_id"`
	Kind        string  `json:"kind"`
	Probability float64 `json:"probability"`
	OneShot     bool    `json:"one_shot"`
}

// AddRule handles POST /api/v1/faults
func (h *FaultHandler) AddRule(c *fiber.Ctx) error {
	var req FaultRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	rule, err := h.manager.Faults().Add(fleet.FaultRule{
		StationID:   req.StationID,
		Kind:        domain.FaultKind(req.Kind),
		Probability: req.Probability,
		OneShot:     req.OneShot,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}

	h.log.Info("fault rule armed",
		zap.Int("rule_id", rule.ID),
		zap.String("station_id", rule.StationID),
		zap.String("kind", string(rule.Kind)),
	)
	return c.Status(fiber.StatusCreated).JSON(rule)
}

// RemoveRule handles DELETE /api/v1/faults/:id
func (h *FaultHandler) RemoveRule(c *fiber.Ctx) error {
	ruleID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "rule id must be an integer"})
	}

	if !h.manager.Faults().Remove(ruleID) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "fault rule not found"})
	}
	return c.JSON(fiber.Map{
		"status":  "removed",
		"rule_id": ruleID,
	})
}

// InjectRequest fires a fault at one station right now.
type InjectRequest struct {
	Kind string `json:"kind"`
}

// Inject handles POST /api/v1/stations/:id/faults
func (h *FaultHandler) Inject(c *fiber.Ctx) error {
	stationID := c.Params("id")

	var req InjectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	switch domain.FaultKind(req.Kind) {
	case domain.FaultDisconnect, domain.FaultTimeout, domain.FaultDropMessage, domain.FaultCorruptPayload:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown fault kind " + req.Kind})
	}

	if err := h.manager.InjectFault(stationID, domain.FaultKind(req.Kind)); err != nil {
		return respondError(c, h.log, err)
	}

	h.log.Info("fault injected",
		zap.String("station_id", stationID),
		zap.String("kind", req.Kind),
	)
	return c.JSON(fiber.Map{
		"status":     "injected",
		"station_id": stationID,
		"kind":       req.Kind,
	})
}
