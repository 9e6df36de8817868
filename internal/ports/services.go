package ports

import (
	"context"
	"time"

	v16 "github.com/seu-repo/ocpp-swarm/internal/ocpp/v16"
)

// Cache is a key/value store with expiry, used for idTag authorization
// verdicts on the CSMS side.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping() error
	Close() error
}

// MessageQueue publishes fleet events (transactions, security) to an
// external broker.
type MessageQueue interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte) error) error
	Close() error
}

// AlertSender delivers operator alerts for critical events.
type AlertSender interface {
	Send(ctx context.Context, alert Alert) error
}

// Alert is an operator notification.
type Alert struct {
	Severity  string    `json:"severity"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Source    string    `json:"source"`
	SourceID  string    `json:"source_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SecretSource resolves secrets kept outside the config file.
type SecretSource interface {
	GetDatabaseDSN() (string, error)
	GetSendGridKey() (string, error)
}

// AuthService guards the control-plane API when auth is enabled. Login
// exchanges an API key for a bearer token; ValidateToken returns the
// client name the token was issued to.
type AuthService interface {
	Login(ctx context.Context, apiKey string) (string, error)
	ValidateToken(ctx context.Context, token string) (string, error)
}

// SmartCharging is the CSMS smart-charging surface the fleet controller
// drives, either in-process or over the CSMS admin API.
type SmartCharging interface {
	SendChargingProfile(ctx context.Context, stationID string, connectorID int, profile v16.ChargingProfile) (*ProfileSendResult, error)
	GetCompositeSchedule(ctx context.Context, stationID string, connectorID, durationSec int, unit v16.ChargingRateUnit) (*CompositeScheduleResult, error)
	ClearChargingProfile(ctx context.Context, stationID string, filters ClearFilters) (*ClearProfileResult, error)
	SendTestProfile(ctx context.Context, stationID, scenario string, params TestProfileParams) (*TestProfileResult, error)
}

// ProfileSendResult reports a SetChargingProfile round trip.
type ProfileSendResult struct {
	Status      string `json:"status"`
	StationID   string `json:"station_id"`
	ConnectorID int    `json:"connector_id"`
	ProfileID   int    `json:"profile_id"`
}

// CompositeScheduleResult reports a GetCompositeSchedule round trip.
type CompositeScheduleResult struct {
	Status        string                `json:"status"`
	StationID     string                `json:"station_id"`
	ConnectorID   int                   `json:"connector_id"`
	ScheduleStart string                `json:"schedule_start,omitempty"`
	Schedule      *v16.ChargingSchedule `json:"schedule,omitempty"`
}

// ClearFilters selects profiles for removal; unset fields match anything.
type ClearFilters struct {
	ProfileID   *int   `json:"profile_id,omitempty"`
	ConnectorID *int   `json:"connector_id,omitempty"`
	Purpose     string `json:"purpose,omitempty"`
	StackLevel  *int   `json:"stack_level,omitempty"`
}

// ClearProfileResult reports a ClearChargingProfile round trip.
type ClearProfileResult struct {
	Status    string       `json:"status"`
	StationID string       `json:"station_id"`
	Filters   ClearFilters `json:"filters"`
}

// TestProfileParams carries the scenario-specific inputs for generated
// test profiles. Only the fields a scenario names are required.
type TestProfileParams struct {
	ConnectorID     int      `json:"connector_id"`
	MaxPowerW       *float64 `json:"max_power_w,omitempty"`
	OffPeakW        *float64 `json:"off_peak_w,omitempty"`
	PeakW           *float64 `json:"peak_w,omitempty"`
	PeakStartHour   *int     `json:"peak_start_hour,omitempty"`
	PeakEndHour     *int     `json:"peak_end_hour,omitempty"`
	TransactionID   *int     `json:"transaction_id,omitempty"`
	MaxEnergyWh     *float64 `json:"max_energy_wh,omitempty"`
	DurationSeconds *int     `json:"duration_seconds,omitempty"`
	PowerLimitW     *float64 `json:"power_limit_w,omitempty"`
}

// TestProfileResult reports a generated-and-sent test profile.
type TestProfileResult struct {
	StationID  string              `json:"station_id"`
	Scenario   string              `json:"scenario"`
	Profile    v16.ChargingProfile `json:"profile"`
	SendStatus string              `json:"send_status"`
}
