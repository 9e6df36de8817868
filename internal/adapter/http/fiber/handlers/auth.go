package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-swarm/internal/ports"
)

// AuthHandler exchanges API keys for bearer tokens.
type AuthHandler struct {
	service ports.AuthService
	log     *zap.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(service ports.AuthService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		log:     log,
	}
}

// LoginRequest carries the pre-shared API key.
type LoginRequest struct {
	APIKey string `json:"api_key"`
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.APIKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "api_key is required"})
	}

	token, err := h.service.Login(c.Context(), req.APIKey)
	if err != nil {
		h.log.Warn("login failed", zap.Error(err))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"access_token": token,
		"token_type":   "Bearer",
	})
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	client := c.Locals("client")
	if client == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Not authenticated"})
	}
	return c.JSON(fiber.Map{"client": client})
}
