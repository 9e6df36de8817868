package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-swarm/internal/fleet"
)

func newFaultApp(t *testing.T) (*fiber.App, *fleet.Manager) {
	t.Helper()

	manager := fleet.NewManager(fleet.Config{
		CSMSURL: "ws://127.0.0.1:1/ocpp",
		Logger:  zap.NewNop(),
	})
	t.Cleanup(func() { manager.StopAll() })

	h := NewFaultHandler(manager, zap.NewNop())

	app := fiber.New()
	app.Get("/api/v1/faults", h.ListRules)
	app.Post("/api/v1/faults", h.AddRule)
	app.Delete("/api/v1/faults/:id", h.RemoveRule)
	app.Post("/api/v1/stations/:id/faults", h.Inject)
	return app, manager
}

func TestAddFaultRule_Created(t *testing.T) {
	// Arrange
	app, _ := newFaultApp(t)

	// Act
	resp := doJSON(t, app, http.MethodPost, "/api/v1/faults", map[string]interface{}{
		"station_id":  "*",
		"kind":        "disconnect",
		"probability": 0.25,
	})

	// Assert
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", resp.StatusCode)
	}
	result := decodeBody(t, resp)
	if result["id"] == nil || result["id"] == float64(0) {
		t.Errorf("Expected assigned rule id, got %v", result["id"])
	}
	if result["kind"] != "disconnect" {
		t.Errorf("Expected kind 'disconnect', got %v", result["kind"])
	}
}

func TestAddFaultRule_UnknownKind(t *testing.T) {
	// Arrange
	app, _ := newFaultApp(t)

	// Act
	resp := doJSON(t, app, http.MethodPost, "/api/v1/faults", map[string]interface{}{
		"station_id": "*",
		"kind":       "meltdown",
	})
	defer resp.Body.Close()

	// Assert
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", resp.StatusCode)
	}
}

func TestAddFaultRule_BadProbability(t *testing.T) {
	// Arrange
	app, _ := newFaultApp(t)

	// Act
	resp := doJSON(t, app, http.MethodPost, "/api/v1/faults", map[string]interface{}{
		"station_id":  "*",
		"kind":        "timeout",
		"probability": 1.5,
	})
	defer resp.Body.Close()

	// Assert
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", resp.StatusCode)
	}
}

func TestRemoveFaultRule_Flow(t *testing.T) {
	// Arrange
	app, _ := newFaultApp(t)
	resp := doJSON(t, app, http.MethodPost, "/api/v1/faults", map[string]interface{}{
		"station_id": "*",
		"kind":       "drop_message",
	})
	created := decodeBody(t, resp)
	ruleID := int(created["id"].(float64))

	// Act
	delResp := doJSON(t, app, http.MethodDelete, fmt.Sprintf("/api/v1/faults/%d", ruleID), nil)

	// Assert
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", delResp.StatusCode)
	}
	delResp.Body.Close()

	listResp := doJSON(t, app, http.MethodGet, "/api/v1/faults", nil)
	listed := decodeBody(t, listResp)
	if listed["count"] != float64(0) {
		t.Errorf("Expected 0 rules after removal, got %v", listed["count"])
	}
}

func TestRemoveFaultRule_NotFound(t *testing.T) {
	// Arrange
	app, _ := newFaultApp(t)

	// Act
	resp := doJSON(t, app, http.MethodDelete, "/api/v1/faults/99", nil)
	defer resp.Body.Close()

	// Assert
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", resp.StatusCode)
	}
}

func TestInjectFault_UnknownKind(t *testing.T) {
	// Arrange
	app, _ := newFaultApp(t)

	// Act
	resp := doJSON(t, app, http.MethodPost, "/api/v1/stations/CP-0001/faults", map[string]interface{}{
		"kind": "meltdown",
	})
	defer resp.Body.Close()

	// Assert
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", resp.StatusCode)
	}
}

func TestInjectFault_StationNotFound(t *testing.T) {
	// Arrange
	app, _ := newFaultApp(t)

	// Act
	resp := doJSON(t, app, http.MethodPost, "/api/v1/stations/PY-SIM-9999/faults", map[string]interface{}{
		"kind": "disconnect",
	})
	defer resp.Body.Close()

	// Assert
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", resp.StatusCode)
	}
}

func TestInjectFault_Success(t *testing.T) {
	// Arrange
	app, manager := newFaultApp(t)
	if _, err := manager.StartStation("CP-0001", ""); err != nil {
		t.Fatalf("Failed to start station: %v", err)
	}

	// Act
	resp := doJSON(t, app, http.MethodPost, "/api/v1/stations/CP-0001/faults", map[string]interface{}{
		"kind": "timeout",
	})

	// Assert
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	result := decodeBody(t, resp)
	if result["status"] != "injected" {
		t.Errorf("Expected status 'injected', got %v", result["status"])
	}
}
