package domain

import "time"

// SessionRecord is a completed charging transaction as seen by the CSMS.
type SessionRecord struct {
	TransactionID int       `json:"transaction_id"`
	StationID     string    `json:"station_id"`
	ConnectorID   int       `json:"connector_id"`
	IDTag         string    `json:"id_tag"`
	MeterStart    int       `json:"meter_start"`
	MeterStop     int       `json:"meter_stop"`
	EnergyKWh     float64   `json:"energy_kwh"`
	StartedAt     time.Time `json:"started_at"`
	StoppedAt     time.Time `json:"stopped_at"`
	StopReason    string    `json:"stop_reason,omitempty"`
}

// EnergySnapshot is a periodic fleet-wide aggregate.
type EnergySnapshot struct {
	Stations       int       `json:"stations"`
	Running        int       `json:"running"`
	TotalEnergyKWh float64   `json:"total_energy_kwh"`
	TotalEarnings  float64   `json:"total_earnings"`
	PricePerKWh    float64   `json:"price_per_kwh"`
	TakenAt        time.Time `json:"taken_at"`
}

// SecurityEventType classifies a suspicious observation on the OCPP link.
type SecurityEventType string

const (
	SecurityAuthFailure          SecurityEventType = "auth_failure"
	SecurityDuplicateTransaction SecurityEventType = "duplicate_transaction"
	SecurityMalformedMessage     SecurityEventType = "malformed_message"
	SecurityHeartbeatFlood       SecurityEventType = "heartbeat_flood"
	SecurityUnauthorizedCommand  SecurityEventType = "unauthorized_command"
)

// SecuritySeverity ranks security events.
type SecuritySeverity string

const (
	SeverityInfo     SecuritySeverity = "info"
	SeverityWarning  SecuritySeverity = "warning"
	SeverityCritical SecuritySeverity = "critical"
)

// SecurityEvent is one entry in the security monitor's ring.
type SecurityEvent struct {
	StationID string            `json:"station_id"`
	Type      SecurityEventType `json:"type"`
	Severity  SecuritySeverity  `json:"severity"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
}
