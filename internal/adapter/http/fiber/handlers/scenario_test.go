package handlers

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-swarm/internal/fleet"
)

func newScenarioApp(t *testing.T) *fiber.App {
	t.Helper()

	manager := fleet.NewManager(fleet.Config{
		CSMSURL: "ws://127.0.0.1:1/ocpp",
		Logger:  zap.NewNop(),
	})
	t.Cleanup(func() { manager.StopAll() })
	runner := fleet.NewRunner(manager, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := NewScenarioHandler(runner, ctx, zap.NewNop())

	app := fiber.New()
	app.Post("/api/v1/scenario/load", h.Load)
	app.Post("/api/v1/scenario/start", h.Start)
	app.Post("/api/v1/scenario/stop", h.Stop)
	app.Get("/api/v1/scenario", h.Status)
	return app
}

func writeScenarioFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write scenario file: %v", err)
	}
	return path
}

func TestScenarioLoad_Success(t *testing.T) {
	// Arrange
	app := newScenarioApp(t)
	path := writeScenarioFile(t, `
name: evening-peak
steps:
  - at_seconds: 0
    action: set_price
    params:
      value: 25.0
  - at_seconds: 10
    action: scale_stations
    params:
      new_total: 3
`)

	// Act
	resp := doJSON(t, app, http.MethodPost, "/api/v1/scenario/load", map[string]interface{}{"path": path})

	// Assert
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	result := decodeBody(t, resp)
	if result["scenario"] != "evening-peak" {
		t.Errorf("Expected scenario 'evening-peak', got %v", result["scenario"])
	}
	if result["loaded"] != float64(2) {
		t.Errorf("Expected 2 loaded steps, got %v", result["loaded"])
	}
	if result["running"] != false {
		t.Errorf("Expected running false, got %v", result["running"])
	}
}

func TestScenarioLoad_MissingPath(t *testing.T) {
	// Arrange
	app := newScenarioApp(t)

	// Act
	resp := doJSON(t, app, http.MethodPost, "/api/v1/scenario/load", map[string]interface{}{})
	defer resp.Body.Close()

	// Assert
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", resp.StatusCode)
	}
}

func TestScenarioLoad_BadStep(t *testing.T) {
	// Arrange
	app := newScenarioApp(t)
	path := writeScenarioFile(t, `
steps:
  - at_seconds: 0
    action: explode
`)

	// Act
	resp := doJSON(t, app, http.MethodPost, "/api/v1/scenario/load", map[string]interface{}{"path": path})
	defer resp.Body.Close()

	// Assert
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", resp.StatusCode)
	}
}

func TestScenarioStart_NothingLoaded(t *testing.T) {
	// Arrange
	app := newScenarioApp(t)

	// Act
	resp := doJSON(t, app, http.MethodPost, "/api/v1/scenario/start", nil)
	defer resp.Body.Close()

	// Assert
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", resp.StatusCode)
	}
}

func TestScenarioStatus_Empty(t *testing.T) {
	// Arrange
	app := newScenarioApp(t)

	// Act
	resp := doJSON(t, app, http.MethodGet, "/api/v1/scenario", nil)

	// Assert
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	result := decodeBody(t, resp)
	if result["loaded"] != float64(0) {
		t.Errorf("Expected 0 loaded steps, got %v", result["loaded"])
	}
	if result["running"] != false {
		t.Errorf("Expected running false, got %v", result["running"])
	}
}
