package csms

import (
	"context"
	"fmt"
	"time"

	v16 "github.com/seu-repo/ocpp-swarm/internal/ocpp/v16"
	"github.com/seu-repo/ocpp-swarm/internal/ports"
)

// Test-profile scenarios offered by the control plane.
const (
	ScenarioPeakShaving = "peak_shaving"
	ScenarioTimeOfUse   = "time_of_use"
	ScenarioEnergyCap   = "energy_cap"
)

// Fixed ids for generated profiles: resending a scenario replaces its
// predecessor on the station instead of stacking a new one.
const (
	peakShavingProfileID = 1
	timeOfUseProfileID   = 2
	energyCapProfileID   = 3

	defaultEnergyCapPowerW = 11000.0
)

// ScenarioError reports missing or invalid test-profile parameters.
type ScenarioError struct {
	Scenario string
	Reason   string
}

func (e *ScenarioError) Error() string {
	return fmt.Sprintf("scenario %q: %s", e.Scenario, e.Reason)
}

// PeakShavingProfile caps the whole charge point at maxPowerW from now on.
func PeakShavingProfile(profileID int, maxPowerW float64, now time.Time) v16.ChargingProfile {
	return v16.ChargingProfile{
		ChargingProfileID:      profileID,
		StackLevel:             0,
		ChargingProfilePurpose: v16.PurposeChargePointMax,
		ChargingProfileKind:    v16.KindAbsolute,
		ChargingSchedule: v16.ChargingSchedule{
			ChargingRateUnit: v16.RateUnitWatts,
			StartSchedule:    v16.Timestamp(now),
			ChargingSchedulePeriod: []v16.ChargingSchedulePeriod{
				{StartPeriod: 0, Limit: maxPowerW},
			},
		},
	}
}

// TimeOfUseProfile builds a daily recurring default with an off-peak limit
// outside [peakStartHour, peakEndHour) and a peak limit inside it.
func TimeOfUseProfile(profileID int, offPeakW, peakW float64, peakStartHour, peakEndHour int, now time.Time) v16.ChargingProfile {
	utc := now.UTC()
	midnight := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	duration := 86400
	return v16.ChargingProfile{
		ChargingProfileID:      profileID,
		StackLevel:             0,
		ChargingProfilePurpose: v16.PurposeTxDefault,
		ChargingProfileKind:    v16.KindRecurring,
		RecurrencyKind:         v16.RecurrencyDaily,
		ChargingSchedule: v16.ChargingSchedule{
			ChargingRateUnit: v16.RateUnitWatts,
			StartSchedule:    v16.Timestamp(midnight),
			Duration:         &duration,
			ChargingSchedulePeriod: []v16.ChargingSchedulePeriod{
				{StartPeriod: 0, Limit: offPeakW},
				{StartPeriod: peakStartHour * 3600, Limit: peakW},
				{StartPeriod: peakEndHour * 3600, Limit: offPeakW},
			},
		},
	}
}

// EnergyCapProfile limits one transaction to powerLimitW for durationSec
// seconds. A non-positive power falls back to 11 kW.
func EnergyCapProfile(profileID, transactionID, durationSec int, powerLimitW float64, now time.Time) v16.ChargingProfile {
	if powerLimitW <= 0 {
		powerLimitW = defaultEnergyCapPowerW
	}
	return v16.ChargingProfile{
		ChargingProfileID:      profileID,
		TransactionID:          &transactionID,
		StackLevel:             0,
		ChargingProfilePurpose: v16.PurposeTx,
		ChargingProfileKind:    v16.KindAbsolute,
		ChargingSchedule: v16.ChargingSchedule{
			ChargingRateUnit: v16.RateUnitWatts,
			StartSchedule:    v16.Timestamp(now),
			Duration:         &durationSec,
			ChargingSchedulePeriod: []v16.ChargingSchedulePeriod{
				{StartPeriod: 0, Limit: powerLimitW},
			},
		},
	}
}

// SendPeakShaving installs a charge-point-wide power cap on a station.
func (srv *Server) SendPeakShaving(ctx context.Context, stationID string, maxPowerW float64) (*ports.ProfileSendResult, error) {
	if maxPowerW <= 0 {
		return nil, &ScenarioError{Scenario: ScenarioPeakShaving, Reason: "max_power_w must be positive"}
	}
	p := PeakShavingProfile(peakShavingProfileID, maxPowerW, time.Now())
	return srv.SendChargingProfile(ctx, stationID, 0, p)
}

// SendTimeOfUse installs a daily peak/off-peak default on a station.
func (srv *Server) SendTimeOfUse(ctx context.Context, stationID string, offPeakW, peakW float64, peakStartHour, peakEndHour int) (*ports.ProfileSendResult, error) {
	if err := validateTimeOfUse(offPeakW, peakW, peakStartHour, peakEndHour); err != nil {
		return nil, err
	}
	p := TimeOfUseProfile(timeOfUseProfileID, offPeakW, peakW, peakStartHour, peakEndHour, time.Now())
	return srv.SendChargingProfile(ctx, stationID, 0, p)
}

// SendEnergyCap limits a running transaction to roughly maxEnergyWh by
// capping power for a bounded window. When durationSec is zero it is
// derived from the energy budget and power limit.
func (srv *Server) SendEnergyCap(ctx context.Context, stationID string, transactionID int, maxEnergyWh float64, durationSec int, powerLimitW float64) (*ports.ProfileSendResult, error) {
	if transactionID <= 0 {
		return nil, &ScenarioError{Scenario: ScenarioEnergyCap, Reason: "transaction_id must be positive"}
	}
	if powerLimitW <= 0 {
		powerLimitW = defaultEnergyCapPowerW
	}
	if durationSec <= 0 {
		if maxEnergyWh <= 0 {
			return nil, &ScenarioError{Scenario: ScenarioEnergyCap, Reason: "duration_seconds or max_energy_wh required"}
		}
		durationSec = int(maxEnergyWh / powerLimitW * 3600)
		if durationSec < 1 {
			durationSec = 1
		}
	}
	p := EnergyCapProfile(energyCapProfileID, transactionID, durationSec, powerLimitW, time.Now())
	return srv.SendChargingProfile(ctx, stationID, 1, p)
}

// SendTestProfile generates the named scenario's profile from params and
// sends it to the station.
func (srv *Server) SendTestProfile(ctx context.Context, stationID, scenario string, params ports.TestProfileParams) (*ports.TestProfileResult, error) {
	connectorID := params.ConnectorID
	if connectorID <= 0 {
		connectorID = 1
	}

	var p v16.ChargingProfile
	switch scenario {
	case ScenarioPeakShaving:
		if params.MaxPowerW == nil {
			return nil, &ScenarioError{Scenario: scenario, Reason: "max_power_w is required"}
		}
		if *params.MaxPowerW <= 0 {
			return nil, &ScenarioError{Scenario: scenario, Reason: "max_power_w must be positive"}
		}
		p = PeakShavingProfile(peakShavingProfileID, *params.MaxPowerW, time.Now())

	case ScenarioTimeOfUse:
		if params.OffPeakW == nil || params.PeakW == nil || params.PeakStartHour == nil || params.PeakEndHour == nil {
			return nil, &ScenarioError{Scenario: scenario,
				Reason: "off_peak_w, peak_w, peak_start_hour, peak_end_hour are required"}
		}
		if err := validateTimeOfUse(*params.OffPeakW, *params.PeakW, *params.PeakStartHour, *params.PeakEndHour); err != nil {
			return nil, err
		}
		p = TimeOfUseProfile(timeOfUseProfileID, *params.OffPeakW, *params.PeakW, *params.PeakStartHour, *params.PeakEndHour, time.Now())

	case ScenarioEnergyCap:
		if params.TransactionID == nil || params.MaxEnergyWh == nil || params.DurationSeconds == nil || params.PowerLimitW == nil {
			return nil, &ScenarioError{Scenario: scenario,
				Reason: "transaction_id, max_energy_wh, duration_seconds, power_limit_w are required"}
		}
		p = EnergyCapProfile(energyCapProfileID, *params.TransactionID, *params.DurationSeconds, *params.PowerLimitW, time.Now())

	default:
		return nil, &ScenarioError{Scenario: scenario,
			Reason: "unknown scenario, valid: peak_shaving, time_of_use, energy_cap"}
	}

	sent, err := srv.SendChargingProfile(ctx, stationID, connectorID, p)
	if err != nil {
		return nil, err
	}
	return &ports.TestProfileResult{
		StationID:  stationID,
		Scenario:   scenario,
		Profile:    p,
		SendStatus: sent.Status,
	}, nil
}

func validateTimeOfUse(offPeakW, peakW float64, startHour, endHour int) error {
	if offPeakW <= 0 || peakW <= 0 {
		return &ScenarioError{Scenario: ScenarioTimeOfUse, Reason: "power limits must be positive"}
	}
	if startHour < 1 || startHour > 23 || endHour < 1 || endHour > 24 || endHour <= startHour {
		return &ScenarioError{Scenario: ScenarioTimeOfUse, Reason: "peak hours must satisfy 1 <= start < end <= 24"}
	}
	return nil
}
