package fleet

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-swarm/internal/domain"
	v16 "github.com/seu-repo/ocpp-swarm/internal/ocpp/v16"
	"github.com/seu-repo/ocpp-swarm/internal/observability/telemetry"
)

const (
	totalsInterval = 5 * time.Second
	// snapshotEvery spaces history snapshots in totals ticks (12 * 5 s = 1 min).
	snapshotEvery      = 12
	historySaveTimeout = 5 * time.Second
)

// Run drives the manager's background work: totals aggregation, fault-rule
// evaluation, and periodic history snapshots. It returns when ctx closes.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(totalsInterval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refreshTotals()
			m.applyFaultRules()
			tick++
			if m.history != nil && tick%snapshotEvery == 0 {
				m.persistSnapshot(ctx)
			}
		}
	}
}

// refreshTotals folds the current snapshots into the cumulative energy and
// earnings counters. Earnings use the price in effect when the energy was
// delivered, so later price changes do not rewrite history.
func (m *Manager) refreshTotals() {
	snaps := m.Snapshots()
	price := m.price.Load()

	var usage float64
	var delivered float64

	m.totalsMu.Lock()
	seen := make(map[string]bool, len(snaps))
	for _, s := range snaps {
		usage += s.UsageKW
		seen[s.ID] = true

		cur := s.EnergyKWh
		delta := cur - m.lastEnergy[s.ID]
		if delta < 0 {
			// A new session reset the meter; count it from zero.
			delta = cur
		}
		if delta > 0 {
			delivered += delta
		}
		m.lastEnergy[s.ID] = cur
	}
	for id := range m.lastEnergy {
		if !seen[id] {
			delete(m.lastEnergy, id)
		}
	}
	if delivered > 0 {
		m.totalEnergy += delivered
		m.earnings += delivered * price
		telemetry.EnergyDeliveredTotal.Add(delivered)
	}
	m.updatedAt = time.Now().UTC()
	earnings := m.earnings
	m.totalsMu.Unlock()

	telemetry.FleetUsageKW.Set(usage)
	telemetry.FleetEarnings.Set(earnings)
}

// Totals returns the aggregated fleet view.
func (m *Manager) Totals() domain.FleetTotals {
	snaps := m.Snapshots()

	var usage float64
	running, charging := 0, 0
	for _, s := range snaps {
		usage += s.UsageKW
		if s.Running {
			running++
		}
		if s.Status == string(v16.StatusCharging) {
			charging++
		}
	}

	m.totalsMu.Lock()
	defer m.totalsMu.Unlock()
	return domain.FleetTotals{
		Stations:       len(snaps),
		Running:        running,
		Charging:       charging,
		TotalUsageKW:   usage,
		TotalEnergyKWh: m.totalEnergy,
		TotalEarnings:  m.earnings,
		CurrentPrice:   m.price.Load(),
		UpdatedAt:      m.updatedAt,
	}
}

func (m *Manager) persistSnapshot(ctx context.Context) {
	t := m.Totals()
	snap := domain.EnergySnapshot{
		Stations:       t.Stations,
		Running:        t.Running,
		TotalEnergyKWh: t.TotalEnergyKWh,
		TotalEarnings:  t.TotalEarnings,
		PricePerKWh:    t.CurrentPrice,
		TakenAt:        time.Now().UTC(),
	}
	cctx, cancel := context.WithTimeout(ctx, historySaveTimeout)
	defer cancel()
	if err := m.history.SaveEnergySnapshot(cctx, &snap); err != nil {
		m.log.Warn("energy snapshot save failed", zap.Error(err))
	}
}

// applyFaultRules rolls every fault rule once against every running station.
func (m *Manager) applyFaultRules() {
	if m.injector.Empty() {
		return
	}

	m.mu.RLock()
	agents := make(map[string]*entry, len(m.entries))
	for id, e := range m.entries {
		if e.agent.Running() {
			agents[id] = e
		}
	}
	m.mu.RUnlock()

	for id, e := range agents {
		for _, kind := range m.injector.Fire(id) {
			if err := e.agent.InjectFault(kind); err != nil {
				m.log.Warn("fault rule failed",
					zap.String("station_id", id),
					zap.String("kind", string(kind)),
					zap.Error(err),
				)
			}
		}
	}
}
