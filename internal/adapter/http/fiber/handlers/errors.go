package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-swarm/internal/adapter/csmsclient"
	"github.com/seu-repo/ocpp-swarm/internal/csms"
	"github.com/seu-repo/ocpp-swarm/internal/fleet"
	v16 "github.com/seu-repo/ocpp-swarm/internal/ocpp/v16"
)

// respondError maps service errors onto HTTP statuses so every handler
// reports failures the same way.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	var validation *fleet.ValidationError
	var scenario *csms.ScenarioError
	var remote *csmsclient.APIError
	var callErr *v16.CallError

	switch {
	case errors.As(err, &validation), errors.As(err, &scenario):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, fleet.ErrStationNotFound), errors.Is(err, v16.ErrStationDisconnected):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, fleet.ErrChargingUnavailable),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, v16.ErrCallTimeout):
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &remote):
		return c.Status(remote.Status).JSON(fiber.Map{"error": remote.Message})
	case errors.As(err, &callErr):
		// The station answered with a protocol-level error.
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	log.Error("request failed", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
