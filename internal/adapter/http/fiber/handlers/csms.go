package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-swarm/internal/csms"
	v16 "github.com/seu-repo/ocpp-swarm/internal/ocpp/v16"
	"github.com/seu-repo/ocpp-swarm/internal/ports"
)

// CSMSHandler is the central system's admin surface: connected
// stations, transactions, and CSMS-originated commands.
type CSMSHandler struct {
	server  *csms.Server
	history ports.HistoryRepository
	log     *zap.Logger
}

// NewCSMSHandler creates a new CSMS admin handler.
func NewCSMSHandler(server *csms.Server, history ports.HistoryRepository, log *zap.Logger) *CSMSHandler {
	return &CSMSHandler{
		server:  server,
		history: history,
		log:     log,
	}
}

// --- Stations ---

// ListStations handles GET /api/v1/csms/stations
func (h *CSMSHandler) ListStations(c *fiber.Ctx) error {
	stations := h.server.Stations()
	return c.JSON(fiber.Map{
		"stations": stations,
		"count":    len(stations),
	})
}

// GetStation handles GET /api/v1/csms/stations/:id
func (h *CSMSHandler) GetStation(c *fiber.Ctx) error {
	stationID := c.Params("id")

	session, ok := h.server.Registry().Get(stationID)
	if !ok {
		return respondError(c, h.log, v16.ErrStationDisconnected)
	}

	info := session.Info()
	if status, ok := h.server.Store().StationStatus(stationID); ok {
		info.Status = &status
	}

	return c.JSON(fiber.Map{
		"station":      info,
		"transactions": h.server.Store().Transactions(stationID),
	})
}

// Transactions handles GET /api/v1/csms/stations/:id/transactions
func (h *CSMSHandler) Transactions(c *fiber.Ctx) error {
	stationID := c.Params("id")
	transactions := h.server.Store().Transactions(stationID)
	return c.JSON(fiber.Map{
		"station_id":   stationID,
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// RecentSessions handles GET /api/v1/csms/sessions
func (h *CSMSHandler) RecentSessions(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)

	sessions, err := h.history.RecentSessions(c.Context(), limit)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// --- CSMS-originated commands ---

// RemoteStartRequest carries the idTag to charge under.
type RemoteStartRequest struct {
	IDTag string `json:"id_tag"`
}

// RemoteStart handles POST /api/v1/csms/stations/:id/remote-start
func (h *CSMSHandler) RemoteStart(c *fiber.Ctx) error {
	stationID := c.Params("id")

	var req RemoteStartRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.IDTag == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "id_tag is required"})
	}

	status, err := h.server.RemoteStartTransaction(c.Context(), stationID, req.IDTag)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"status":     string(status),
		"station_id": stationID,
	})
}

// RemoteStopRequest names the transaction to end.
type RemoteStopRequest struct {
	TransactionID int `json:"transaction_id"`
}

// RemoteStop handles POST /api/v1/csms/stations/:id/remote-stop
func (h *CSMSHandler) RemoteStop(c *fiber.Ctx) error {
	stationID := c.Params("id")

	var req RemoteStopRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.TransactionID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "transaction_id is required"})
	}

	status, err := h.server.RemoteStopTransaction(c.Context(), stationID, req.TransactionID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"status":         string(status),
		"station_id":     stationID,
		"transaction_id": req.TransactionID,
	})
}

// ResetRequest selects the reboot flavor.
type ResetRequest struct {
	Type string `json:"type"` // Soft, Hard
}

// Reset handles POST /api/v1/csms/stations/:id/reset
func (h *CSMSHandler) Reset(c *fiber.Ctx) error {
	stationID := c.Params("id")

	var req ResetRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}
	if req.Type == "" {
		req.Type = string(v16.ResetSoft)
	}
	if req.Type != string(v16.ResetSoft) && req.Type != string(v16.ResetHard) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "type must be 'Soft' or 'Hard'"})
	}

	status, err := h.server.Reset(c.Context(), stationID, v16.ResetType(req.Type))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"status":     string(status),
		"station_id": stationID,
		"type":       req.Type,
	})
}

// AvailabilityRequest toggles a connector operative or inoperative.
type AvailabilityRequest struct {
	ConnectorID int    `json:"connector_id"`
	Type        string `json:"type"` // Operative, Inoperative
}

// ChangeAvailability handles POST /api/v1/csms/stations/:id/availability
func (h *CSMSHandler) ChangeAvailability(c *fiber.Ctx) error {
	stationID := c.Params("id")

	var req AvailabilityRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Type != string(v16.AvailabilityOperative) && req.Type != string(v16.AvailabilityInoperative) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "type must be 'Operative' or 'Inoperative'"})
	}

	status, err := h.server.ChangeAvailability(c.Context(), stationID, req.ConnectorID, v16.AvailabilityType(req.Type))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"status":       string(status),
		"station_id":   stationID,
		"connector_id": req.ConnectorID,
	})
}

// TriggerRequest names the notification to request from the station.
type TriggerRequest struct {
	Requested string `json:"requested"`
}

// TriggerMessage handles POST /api/v1/csms/stations/:id/trigger
func (h *CSMSHandler) TriggerMessage(c *fiber.Ctx) error {
	stationID := c.Params("id")

	var req TriggerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	switch v16.MessageTrigger(req.Requested) {
	case v16.TriggerBootNotification, v16.TriggerHeartbeat, v16.TriggerMeterValues, v16.TriggerStatusNotification:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown trigger " + req.Requested})
	}

	status, err := h.server.TriggerMessage(c.Context(), stationID, v16.MessageTrigger(req.Requested))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"status":     string(status),
		"station_id": stationID,
		"requested":  req.Requested,
	})
}
