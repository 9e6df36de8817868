package handlers

import (
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-swarm/internal/domain"
	"github.com/seu-repo/ocpp-swarm/internal/security"
)

func newSecurityApp(monitor *security.Monitor) *fiber.App {
	h := NewSecurityHandler(monitor, zap.NewNop())

	app := fiber.New()
	app.Get("/api/v1/csms/security/events", h.Events)
	app.Delete("/api/v1/csms/security/events", h.ClearEvents)
	app.Get("/api/v1/csms/security/stats", h.Stats)
	app.Get("/api/v1/csms/security/flow", h.Flow)
	app.Get("/api/v1/csms/security/rules", h.Rules)
	app.Put("/api/v1/csms/security/rules", h.ReplaceRules)
	return app
}

func TestSecurityEvents_ReturnsRecorded(t *testing.T) {
	// Arrange
	monitor := security.NewMonitor(security.Config{Logger: zap.NewNop()})
	monitor.Record(domain.SecurityEvent{
		StationID: "CP-0001",
		Type:      domain.SecurityAuthFailure,
		Severity:  domain.SeverityWarning,
		Message:   "idTag BAD-TAG rejected",
	})
	monitor.Record(domain.SecurityEvent{
		StationID: "CP-0002",
		Type:      domain.SecurityMalformedMessage,
		Severity:  domain.SeverityInfo,
		Message:   "unparseable frame",
	})
	app := newSecurityApp(monitor)

	// Act
	resp := doJSON(t, app, http.MethodGet, "/api/v1/csms/security/events", nil)

	// Assert
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	result := decodeBody(t, resp)
	events, ok := result["events"].([]interface{})
	if !ok {
		t.Fatalf("Expected events array, got %T", result["events"])
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
}

func TestSecurityEvents_FilterByStation(t *testing.T) {
	// Arrange
	monitor := security.NewMonitor(security.Config{Logger: zap.NewNop()})
	monitor.Record(domain.SecurityEvent{StationID: "CP-0001", Type: domain.SecurityAuthFailure})
	monitor.Record(domain.SecurityEvent{StationID: "CP-0002", Type: domain.SecurityAuthFailure})
	monitor.Record(domain.SecurityEvent{StationID: "CP-0001", Type: domain.SecurityHeartbeatFlood})
	app := newSecurityApp(monitor)

	// Act
	resp := doJSON(t, app, http.MethodGet, "/api/v1/csms/security/events?station_id=CP-0001", nil)

	// Assert
	result := decodeBody(t, resp)
	events, _ := result["events"].([]interface{})
	if len(events) != 2 {
		t.Fatalf("Expected 2 events for CP-0001, got %d", len(events))
	}
	first, _ := events[0].(map[string]interface{})
	if first["station_id"] != "CP-0001" {
		t.Errorf("Expected station CP-0001, got %v", first["station_id"])
	}
}

func TestSecurityEvents_Clear(t *testing.T) {
	// Arrange
	monitor := security.NewMonitor(security.Config{Logger: zap.NewNop()})
	monitor.Record(domain.SecurityEvent{StationID: "CP-0001", Type: domain.SecurityAuthFailure})
	app := newSecurityApp(monitor)

	// Act
	resp := doJSON(t, app, http.MethodDelete, "/api/v1/csms/security/events", nil)
	resp.Body.Close()

	// Assert
	listResp := doJSON(t, app, http.MethodGet, "/api/v1/csms/security/events", nil)
	result := decodeBody(t, listResp)
	if events, ok := result["events"].([]interface{}); ok && len(events) != 0 {
		t.Errorf("Expected no events after clear, got %d", len(events))
	}
}

func TestSecurityStats_CountsByTypeAndSeverity(t *testing.T) {
	// Arrange
	monitor := security.NewMonitor(security.Config{Logger: zap.NewNop()})
	monitor.Record(domain.SecurityEvent{StationID: "CP-0001", Type: domain.SecurityAuthFailure, Severity: domain.SeverityWarning})
	monitor.Record(domain.SecurityEvent{StationID: "CP-0002", Type: domain.SecurityAuthFailure, Severity: domain.SeverityWarning})
	monitor.Record(domain.SecurityEvent{StationID: "CP-0003", Type: domain.SecurityDuplicateTransaction, Severity: domain.SeverityCritical})
	app := newSecurityApp(monitor)

	// Act
	resp := doJSON(t, app, http.MethodGet, "/api/v1/csms/security/stats", nil)

	// Assert
	result := decodeBody(t, resp)
	byType, ok := result["by_type"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected by_type map, got %T", result["by_type"])
	}
	if byType["auth_failure"] != float64(2) {
		t.Errorf("Expected 2 auth failures, got %v", byType["auth_failure"])
	}
	bySeverity, _ := result["by_severity"].(map[string]interface{})
	if bySeverity["critical"] != float64(1) {
		t.Errorf("Expected 1 critical event, got %v", bySeverity["critical"])
	}
}

func TestSecurityFlow_BadWindow(t *testing.T) {
	// Arrange
	monitor := security.NewMonitor(security.Config{Logger: zap.NewNop()})
	app := newSecurityApp(monitor)

	// Act
	resp := doJSON(t, app, http.MethodGet, "/api/v1/csms/security/flow?window=0", nil)
	defer resp.Body.Close()

	// Assert
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", resp.StatusCode)
	}
}

func TestSecurityFlow_CountsObservations(t *testing.T) {
	// Arrange
	monitor := security.NewMonitor(security.Config{Logger: zap.NewNop()})
	monitor.Observe("CP-0001", "Heartbeat")
	monitor.Observe("CP-0001", "Heartbeat")
	monitor.Observe("CP-0002", "BootNotification")
	app := newSecurityApp(monitor)

	// Act
	resp := doJSON(t, app, http.MethodGet, "/api/v1/csms/security/flow?window=60", nil)

	// Assert
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	result := decodeBody(t, resp)
	global, ok := result["global"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected global map, got %T", result["global"])
	}
	if global["Heartbeat"] != float64(2) {
		t.Errorf("Expected 2 heartbeats in window, got %v", global["Heartbeat"])
	}
}

func TestSecurityRules_ReplaceAndList(t *testing.T) {
	// Arrange
	monitor := security.NewMonitor(security.Config{
		Rules:  security.DefaultRules(),
		Logger: zap.NewNop(),
	})
	app := newSecurityApp(monitor)

	// Act
	resp := doJSON(t, app, http.MethodPut, "/api/v1/csms/security/rules", map[string]interface{}{
		"rules": []map[string]interface{}{
			{
				"name":           "boot-storm",
				"event_type":     "BootNotification",
				"threshold":      5,
				"window_seconds": 30,
				"station_scope":  false,
				"severity":       "critical",
			},
		},
	})

	// Assert
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	result := decodeBody(t, resp)
	if result["count"] != float64(1) {
		t.Errorf("Expected count 1, got %v", result["count"])
	}

	listResp := doJSON(t, app, http.MethodGet, "/api/v1/csms/security/rules", nil)
	listed := decodeBody(t, listResp)
	if listed["count"] != float64(1) {
		t.Errorf("Expected 1 active rule, got %v", listed["count"])
	}
	rules, _ := listed["rules"].([]interface{})
	if len(rules) != 1 {
		t.Fatalf("Expected 1 rule, got %d", len(rules))
	}
	rule, _ := rules[0].(map[string]interface{})
	if rule["name"] != "boot-storm" {
		t.Errorf("Expected rule 'boot-storm', got %v", rule["name"])
	}
}

func TestSecurityRules_RejectsInvalid(t *testing.T) {
	// Arrange
	monitor := security.NewMonitor(security.Config{Logger: zap.NewNop()})
	app := newSecurityApp(monitor)

	// Act: threshold missing
	resp := doJSON(t, app, http.MethodPut, "/api/v1/csms/security/rules", map[string]interface{}{
		"rules": []map[string]interface{}{
			{"name": "broken", "event_type": "Heartbeat"},
		},
	})
	defer resp.Body.Close()

	// Assert
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", resp.StatusCode)
	}
}
