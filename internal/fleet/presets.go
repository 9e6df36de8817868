package fleet

import (
	"fmt"
	"time"

	"github.com/seu-repo/ocpp-swarm/internal/domain"
)

// peakHours is 08:00 through 17:59.
func peakHours() []int {
	hours := make([]int, 0, 10)
	for h := 8; h < 18; h++ {
		hours = append(hours, h)
	}
	return hours
}

func defaultIDTags() []string {
	return []string{"ABC123", "TAG001", "USER42"}
}

// Presets returns the built-in behavior presets keyed by name.
func Presets() map[string]domain.StationProfile {
	return map[string]domain.StationProfile{
		"default": {
			Name:               "default",
			HeartbeatInterval:  60 * time.Second,
			IdleMin:            30 * time.Second,
			IdleMax:            120 * time.Second,
			SampleMin:          10 * time.Second,
			SampleMax:          20 * time.Second,
			EnergyStepMinWh:    50,
			EnergyStepMaxWh:    150,
			IDTags:             defaultIDTags(),
			ChargeIfPriceBelow: 25.0,
			MaxEnergyKWh:       30.0,
			AllowPeakHours:     true,
			PeakHours:          peakHours(),
			EnableTransactions: true,
		},
		"busy": {
			Name:               "busy",
			HeartbeatInterval:  60 * time.Second,
			IdleMin:            5 * time.Second,
			IdleMax:            20 * time.Second,
			SampleMin:          10 * time.Second,
			SampleMax:          20 * time.Second,
			EnergyStepMinWh:    80,
			EnergyStepMaxWh:    220,
			IDTags:             defaultIDTags(),
			ChargeIfPriceBelow: 30.0,
			MaxEnergyKWh:       40.0,
			AllowPeakHours:     true,
			PeakHours:          peakHours(),
			EnableTransactions: true,
		},
		"idle": {
			Name:               "idle",
			HeartbeatInterval:  60 * time.Second,
			IdleMin:            180 * time.Second,
			IdleMax:            600 * time.Second,
			SampleMin:          10 * time.Second,
			SampleMax:          20 * time.Second,
			EnergyStepMinWh:    50,
			EnergyStepMaxWh:    150,
			IDTags:             defaultIDTags(),
			ChargeIfPriceBelow: 18.0,
			MaxEnergyKWh:       20.0,
			AllowPeakHours:     false,
			PeakHours:          peakHours(),
			EnableTransactions: true,
		},
		"no-transactions": {
			Name:               "no-transactions",
			HeartbeatInterval:  60 * time.Second,
			IdleMin:            30 * time.Second,
			IdleMax:            120 * time.Second,
			SampleMin:          10 * time.Second,
			SampleMax:          20 * time.Second,
			EnergyStepMinWh:    50,
			EnergyStepMaxWh:    150,
			IDTags:             defaultIDTags(),
			ChargeIfPriceBelow: 100.0,
			MaxEnergyKWh:       30.0,
			AllowPeakHours:     true,
			PeakHours:          peakHours(),
			EnableTransactions: false,
		},
		"flaky": {
			Name:               "flaky",
			HeartbeatInterval:  60 * time.Second,
			IdleMin:            20 * time.Second,
			IdleMax:            60 * time.Second,
			SampleMin:          10 * time.Second,
			SampleMax:          20 * time.Second,
			EnergyStepMinWh:    50,
			EnergyStepMaxWh:    150,
			IDTags:             defaultIDTags(),
			ChargeIfPriceBelow: 20.0,
			MaxEnergyKWh:       25.0,
			AllowPeakHours:     true,
			PeakHours:          peakHours(),
			EnableTransactions: true,
			OfflineProbability: 0.10,
			OfflineDuration:    30 * time.Second,
		},
	}
}

// Preset looks up one built-in preset by name.
func Preset(name string) (domain.StationProfile, error) {
	p, ok := Presets()[name]
	if !ok {
		return domain.StationProfile{}, &ValidationError{
			Field:  "profile",
			Reason: fmt.Sprintf("unknown profile %q", name),
		}
	}
	return p, nil
}
