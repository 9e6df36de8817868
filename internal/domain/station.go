package domain

import (
	"time"
)

// TransportState describes the station-to-central-system link.
type TransportState string

const (
	TransportDisconnected TransportState = "disconnected"
	TransportConnecting   TransportState = "connecting"
	TransportConnected    TransportState = "connected"
)

// ControlMode records which authority shaped the most recent meter step.
type ControlMode string

const (
	ControlModePolicy    ControlMode = "policy"
	ControlModeOCPPLimit ControlMode = "ocpp-limit"
)

// FaultKind selects a failure to inject into a running station.
type FaultKind string

const (
	FaultDisconnect     FaultKind = "disconnect"
	FaultTimeout        FaultKind = "timeout"
	FaultDropMessage    FaultKind = "drop_message"
	FaultCorruptPayload FaultKind = "corrupt_payload"
)

// BatteryConfig describes the simulated EV pack attached to a station.
type BatteryConfig struct {
	CapacityKWh float64 `json:"capacity_kwh"`
	InitialSoC  float64 `json:"initial_soc"` // percent
	TargetSoC   float64 `json:"target_soc"`  // percent
	AmbientTemp float64 `json:"ambient_temp_c"`
}

// StationProfile is a named behavior preset for simulated stations.
type StationProfile struct {
	Name              string        `json:"name"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
	IdleMin           time.Duration `json:"idle_min"`
	IdleMax           time.Duration `json:"idle_max"`
	SampleMin         time.Duration `json:"sample_min"`
	SampleMax         time.Duration `json:"sample_max"`
	EnergyStepMinWh   float64       `json:"energy_step_min_wh"`
	EnergyStepMaxWh   float64       `json:"energy_step_max_wh"`
	IDTags            []string      `json:"id_tags"`

	// Charging policy knobs, evaluated before and during every session.
	ChargeIfPriceBelow float64 `json:"charge_if_price_below"`
	MaxEnergyKWh       float64 `json:"max_energy_kwh"`
	AllowPeakHours     bool    `json:"allow_peak_hours"`
	PeakHours          []int   `json:"peak_hours"`

	EnableTransactions bool           `json:"enable_transactions"`
	OfflineProbability float64        `json:"offline_probability"`
	OfflineDuration    time.Duration  `json:"offline_duration"`
	Battery            *BatteryConfig `json:"battery,omitempty"`
}

// StationSnapshot is the point-in-time view of one station exposed to the
// control plane and the dashboard feed.
type StationSnapshot struct {
	ID                 string         `json:"station_id"`
	Profile            string         `json:"profile"`
	Running            bool           `json:"running"`
	Status             string         `json:"status"`
	Transport          TransportState `json:"transport"`
	UsageKW            float64        `json:"usage_kw"`
	EnergyKWh          float64        `json:"energy_kwh"`
	MaxEnergyKWh       float64        `json:"max_energy_kwh"`
	EnergyPercent      float64        `json:"energy_percent"`
	ChargeIfPriceBelow float64        `json:"charge_if_price_below"`
	AllowPeak          bool           `json:"allow_peak"`
	ControlMode        ControlMode    `json:"ocpp_control_mode"`
	ActiveTransaction  int            `json:"active_transaction,omitempty"`
	ProfileCount       int            `json:"profile_count"`
	BatterySoC         *float64       `json:"battery_soc,omitempty"`
}

// FleetTotals aggregates all running stations.
type FleetTotals struct {
	Stations       int       `json:"stations"`
	Running        int       `json:"running"`
	Charging       int       `json:"charging"`
	TotalUsageKW   float64   `json:"total_usage_kw"`
	TotalEnergyKWh float64   `json:"total_energy_kwh"`
	TotalEarnings  float64   `json:"total_earnings"`
	CurrentPrice   float64   `json:"current_price"`
	UpdatedAt      time.Time `json:"updated_at"`
}
