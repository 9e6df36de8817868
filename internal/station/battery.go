package station

import (
	"sync"

	"github.com/seu-repo/ocpp-swarm/internal/domain"
)

// Battery models a simplified EV pack. Cold or hot ambient temperature and a
// nearly full pack both slow the accepted charge rate, which shows up in the
// meter loop as smaller energy steps.
type Battery struct {
	mu          sync.Mutex
	capacityKWh float64
	soc         float64 // percent
	target      float64 // percent
	ambientTemp float64 // Celsius
}

// NewBattery builds a pack from its configuration. Zero capacity or a zero
// target are normalized to sane defaults so a partially filled config still
// behaves.
func NewBattery(cfg domain.BatteryConfig) *Battery {
	capacity := cfg.CapacityKWh
	if capacity <= 0 {
		capacity = 60
	}
	target := cfg.TargetSoC
	if target <= 0 || target > 100 {
		target = 100
	}
	soc := cfg.InitialSoC
	if soc < 0 {
		soc = 0
	}
	if soc > 100 {
		soc = 100
	}
	return &Battery{
		capacityKWh: capacity,
		soc:         soc,
		target:      target,
		ambientTemp: cfg.AmbientTemp,
	}
}

// ChargeFactor returns the multiplier applied to the nominal energy step,
// combining a temperature derating with the taper near full charge.
func (b *Battery) ChargeFactor() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	temp := 1.0
	switch {
	case b.ambientTemp < 0:
		temp = 0.5
	case b.ambientTemp > 40:
		temp = 0.8
	}

	taper := 1.0
	switch {
	case b.soc <= 80:
		taper = 1.0
	case b.soc <= 90:
		taper = 0.5
	default:
		taper = 0.25
	}

	return temp * taper
}

// AddEnergy credits wh to the pack and advances the state of charge.
func (b *Battery) AddEnergy(wh float64) {
	if wh <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.soc += wh / 1000 / b.capacityKWh * 100
	if b.soc > 100 {
		b.soc = 100
	}
}

// SoC returns the current state of charge in percent.
func (b *Battery) SoC() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.soc
}

// Full reports whether the pack reached its target state of charge.
func (b *Battery) Full() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.soc >= b.target
}
