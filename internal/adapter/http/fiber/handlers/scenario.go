package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-swarm/internal/fleet"
)

// ScenarioHandler drives the timed scenario engine. Runs outlive the
// request that started them, so the handler keeps the application
// context for them instead of the request context.
type ScenarioHandler struct {
	runner *fleet.Runner
	runCtx context.Context
	log    *zap.Logger
}

// NewScenarioHandler creates a new scenario handler.
func NewScenarioHandler(runner *fleet.Runner, runCtx context.Context, log *zap.Logger) *ScenarioHandler {
	if runCtx == nil {
		runCtx = context.Background()
	}
	return &ScenarioHandler{
		runner: runner,
		runCtx: runCtx,
		log:    log,
	}
}

// LoadScenarioRequest points at a scenario file on disk.
type LoadScenarioRequest struct {
	Path string `json:"path"`
}

// Load handles POST /api/v1/scenario/load
func (h *ScenarioHandler) Load(c *fiber.Ctx) error {
	var req LoadScenarioRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Path == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "path is required"})
	}

	status, err := h.runner.Load(req.Path)
	if err != nil {
		return respondError(c, h.log, err)
	}

	h.log.Info("scenario loaded",
		zap.String("scenario", status.Scenario),
		zap.Int("steps", status.Loaded),
	)
	return c.JSON(status)
}

// Start handles POST /api/v1/scenario/start
func (h *ScenarioHandler) Start(c *fiber.Ctx) error {
	if err := h.runner.Start(h.runCtx); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(h.runner.Status())
}

// Stop handles POST /api/v1/scenario/stop
func (h *ScenarioHandler) Stop(c *fiber.Ctx) error {
	h.runner.Stop()
	return c.JSON(h.runner.Status())
}

// Status handles GET /api/v1/scenario
func (h *ScenarioHandler) Status(c *fiber.Ctx) error {
	return c.JSON(h.runner.Status())
}
