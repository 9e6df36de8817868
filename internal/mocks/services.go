package mocks

import (
	"context"
	"sync"

	v16 "github.com/seu-repo/ocpp-swarm/internal/ocpp/v16"
	"github.com/seu-repo/ocpp-swarm/internal/ports"
)

// MockSmartCharging is a mock implementation of SmartCharging interface
type MockSmartCharging struct {
	SendChargingProfileFunc  func(ctx context.Context, stationID string, connectorID int, profile v16.ChargingProfile) (*ports.ProfileSendResult, error)
	GetCompositeScheduleFunc func(ctx context.Context, stationID string, connectorID, durationSec int, unit v16.ChargingRateUnit) (*ports.CompositeScheduleResult, error)
	ClearChargingProfileFunc func(ctx context.Context, stationID string, filters ports.ClearFilters) (*ports.ClearProfileResult, error)
	SendTestProfileFunc      func(ctx context.Context, stationID, scenario string, params ports.TestProfileParams) (*ports.TestProfileResult, error)
}

func (m *MockSmartCharging) SendChargingProfile(ctx context.Context, stationID string, connectorID int, profile v16.ChargingProfile) (*ports.ProfileSendResult, error) {
	if m.SendChargingProfileFunc != nil {
		return m.SendChargingProfileFunc(ctx, stationID, connectorID, profile)
	}
	return &ports.ProfileSendResult{
		Status:      string(v16.ProfileAccepted),
		StationID:   stationID,
		ConnectorID: connectorID,
		ProfileID:   profile.ChargingProfileID,
	}, nil
}

func (m *MockSmartCharging) GetCompositeSchedule(ctx context.Context, stationID string, connectorID, durationSec int, unit v16.ChargingRateUnit) (*ports.CompositeScheduleResult, error) {
	if m.GetCompositeScheduleFunc != nil {
		return m.GetCompositeScheduleFunc(ctx, stationID, connectorID, durationSec, unit)
	}
	return &ports.CompositeScheduleResult{
		Status:      string(v16.CompositeAccepted),
		StationID:   stationID,
		ConnectorID: connectorID,
	}, nil
}

func (m *MockSmartCharging) ClearChargingProfile(ctx context.Context, stationID string, filters ports.ClearFilters) (*ports.ClearProfileResult, error) {
	if m.ClearChargingProfileFunc != nil {
		return m.ClearChargingProfileFunc(ctx, stationID, filters)
	}
	return &ports.ClearProfileResult{
		Status:    string(v16.ClearAccepted),
		StationID: stationID,
		Filters:   filters,
	}, nil
}

func (m *MockSmartCharging) SendTestProfile(ctx context.Context, stationID, scenario string, params ports.TestProfileParams) (*ports.TestProfileResult, error) {
	if m.SendTestProfileFunc != nil {
		return m.SendTestProfileFunc(ctx, stationID, scenario, params)
	}
	return &ports.TestProfileResult{
		StationID:  stationID,
		Scenario:   scenario,
		SendStatus: string(v16.ProfileAccepted),
	}, nil
}

// MockAlertSender is a mock implementation of AlertSender interface.
// The security monitor alerts from its own goroutine, so the sent
// slice is mutex-guarded.
type MockAlertSender struct {
	mu       sync.Mutex
	Alerts   []ports.Alert
	SendFunc func(ctx context.Context, alert ports.Alert) error
}

func (m *MockAlertSender) Send(ctx context.Context, alert ports.Alert) error {
	m.mu.Lock()
	m.Alerts = append(m.Alerts, alert)
	m.mu.Unlock()
	if m.SendFunc != nil {
		return m.SendFunc(ctx, alert)
	}
	return nil
}

// SentAlerts returns a copy of the alerts sent so far.
func (m *MockAlertSender) SentAlerts() []ports.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ports.Alert, len(m.Alerts))
	copy(out, m.Alerts)
	return out
}

// MockAuthService is a mock implementation of AuthService interface
type MockAuthService struct {
	LoginFunc         func(ctx context.Context, apiKey string) (string, error)
	ValidateTokenFunc func(ctx context.Context, token string) (string, error)
}

func (m *MockAuthService) Login(ctx context.Context, apiKey string) (string, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, apiKey)
	}
	return "mock-token", nil
}

func (m *MockAuthService) ValidateToken(ctx context.Context, token string) (string, error) {
	if m.ValidateTokenFunc != nil {
		return m.ValidateTokenFunc(ctx, token)
	}
	return "mock-client", nil
}

// MockSecretSource is a mock implementation of SecretSource interface
type MockSecretSource struct {
	GetDatabaseDSNFunc func() (string, error)
	GetSendGridKeyFunc func() (string, error)
}

func (m *MockSecretSource) GetDatabaseDSN() (string, error) {
	if m.GetDatabaseDSNFunc != nil {
		return m.GetDatabaseDSNFunc()
	}
	return "", nil
}

func (m *MockSecretSource) GetSendGridKey() (string, error) {
	if m.GetSendGridKeyFunc != nil {
		return m.GetSendGridKeyFunc()
	}
	return "", nil
}
