package station

import (
	"testing"

	"github.com/seu-repo/ocpp-swarm/internal/domain"
)

func TestBatteryChargeFactorTemperature(t *testing.T) {
	tests := []struct {
		name string
		temp float64
		want float64
	}{
		{"freezing", -5, 0.5},
		{"mild", 20, 1.0},
		{"hot", 45, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			b := NewBattery(domain.BatteryConfig{
				CapacityKWh: 60,
				InitialSoC:  50,
				TargetSoC:   100,
				AmbientTemp: tt.temp,
			})

			// Act
			got := b.ChargeFactor()

			// Assert
			if got != tt.want {
				t.Errorf("expected factor %.2f at %.0fC, got %.2f", tt.want, tt.temp, got)
			}
		})
	}
}

func TestBatteryChargeFactorTaper(t *testing.T) {
	tests := []struct {
		name string
		soc  float64
		want float64
	}{
		{"below eighty", 50, 1.0},
		{"at eighty", 80, 1.0},
		{"mid taper", 85, 0.5},
		{"near full", 95, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			b := NewBattery(domain.BatteryConfig{
				CapacityKWh: 60,
				InitialSoC:  tt.soc,
				TargetSoC:   100,
				AmbientTemp: 20,
			})

			// Act
			got := b.ChargeFactor()

			// Assert
			if got != tt.want {
				t.Errorf("expected factor %.2f at %.0f%% SoC, got %.2f", tt.want, tt.soc, got)
			}
		})
	}
}

func TestBatteryFactorsCombine(t *testing.T) {
	// Arrange: freezing and tapering at once
	b := NewBattery(domain.BatteryConfig{
		CapacityKWh: 60,
		InitialSoC:  85,
		TargetSoC:   100,
		AmbientTemp: -10,
	})

	// Act
	got := b.ChargeFactor()

	// Assert: 0.5 temperature times 0.5 taper
	if got != 0.25 {
		t.Errorf("expected combined factor 0.25, got %.2f", got)
	}
}

func TestBatteryAddEnergyAdvancesSoC(t *testing.T) {
	// Arrange: 10 kWh pack at 50%
	b := NewBattery(domain.BatteryConfig{
		CapacityKWh: 10,
		InitialSoC:  50,
		TargetSoC:   80,
	})

	// Act: add 1 kWh
	b.AddEnergy(1000)

	// Assert
	if got := b.SoC(); got != 60 {
		t.Errorf("expected SoC 60%%, got %.1f%%", got)
	}
	if b.Full() {
		t.Error("expected pack below target")
	}

	// Act: add 2 kWh more, reaching the 80% target
	b.AddEnergy(2000)

	// Assert
	if !b.Full() {
		t.Errorf("expected pack at target, got %.1f%%", b.SoC())
	}
}

func TestBatterySoCCapsAtHundred(t *testing.T) {
	// Arrange
	b := NewBattery(domain.BatteryConfig{CapacityKWh: 1, InitialSoC: 99, TargetSoC: 100})

	// Act
	b.AddEnergy(5000)

	// Assert
	if got := b.SoC(); got != 100 {
		t.Errorf("expected SoC capped at 100%%, got %.1f%%", got)
	}
}

func TestBatteryDefaults(t *testing.T) {
	// Arrange: zero-valued config
	b := NewBattery(domain.BatteryConfig{})

	// Assert
	if b.SoC() != 0 {
		t.Errorf("expected 0%% SoC, got %.1f%%", b.SoC())
	}
	if b.Full() {
		t.Error("expected empty pack not to be full")
	}
	if b.ChargeFactor() != 1.0 {
		t.Errorf("expected factor 1.0 for mild defaults, got %.2f", b.ChargeFactor())
	}
}
