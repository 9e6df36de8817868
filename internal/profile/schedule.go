package profile

import (
	"sort"
	"time"

	v16 "github.com/seu-repo/ocpp-swarm/internal/ocpp/v16"
)

const (
	secondsPerDay  = 86400
	secondsPerWeek = 604800
)

// GetCurrentLimit resolves the instantaneous power cap in watts for a
// connector, or nil when no active profile applies. Purpose priority is
// TxProfile > TxDefaultProfile > ChargePointMaxProfile; within a purpose the
// lower stack level wins; the result is the minimum across purpose winners.
func (m *Manager) GetCurrentLimit(connectorID int, tx *ActiveTransaction, now time.Time) *float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.effectiveLimit(connectorID, tx, now)
}

// GetCompositeSchedule merges every applicable profile into a step function
// over [now, now+duration). Offsets are seconds from now; consecutive equal
// limits are collapsed. An empty result means nothing applies.
func (m *Manager) GetCompositeSchedule(connectorID, duration int, unit v16.ChargingRateUnit, tx *ActiveTransaction, now time.Time) []SchedulePeriod {
	if duration <= 0 {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	offsets := m.breakpoints(connectorID, duration, tx, now)

	var (
		out  []SchedulePeriod
		prev *float64
	)
	for _, offset := range offsets {
		limit := m.effectiveLimit(connectorID, tx, now.Add(time.Duration(offset)*time.Second))
		if limit == nil {
			// Gap in coverage; the next covered breakpoint starts a new segment.
			prev = nil
			continue
		}
		value := *limit
		if unit == v16.RateUnitAmps {
			value = value / (m.voltage * float64(m.phases))
		}
		if prev != nil && *prev == value {
			continue
		}
		out = append(out, SchedulePeriod{StartOffset: offset, Limit: value})
		prev = &value
	}
	return out
}

// candidates returns the profiles stored for the connector plus the
// station-wide connector 0, filtered by transaction applicability.
func (m *Manager) candidates(connectorID int, tx *ActiveTransaction) []*stored {
	lists := [][]*stored{m.profiles[connectorID]}
	if connectorID != 0 {
		lists = append(lists, m.profiles[0])
	}

	var out []*stored
	for _, list := range lists {
		for _, s := range list {
			if s.appliesToTransaction(tx) {
				out = append(out, s)
			}
		}
	}
	return out
}

func (m *Manager) effectiveLimit(connectorID int, tx *ActiveTransaction, t time.Time) *float64 {
	type winner struct {
		stackLevel int
		limit      float64
	}
	winners := make(map[v16.ChargingProfilePurpose]*winner, 3)

	for _, s := range m.candidates(connectorID, tx) {
		if !s.inValidityWindow(t) {
			continue
		}
		limit := m.scheduleLimitAt(s, tx, t)
		if limit == nil {
			continue
		}

		purpose := s.profile.ChargingProfilePurpose
		current := winners[purpose]
		if current == nil || s.profile.StackLevel < current.stackLevel ||
			(s.profile.StackLevel == current.stackLevel && *limit < current.limit) {
			winners[purpose] = &winner{stackLevel: s.profile.StackLevel, limit: *limit}
		}
	}

	var result *float64
	for _, w := range winners {
		if result == nil || w.limit < *result {
			v := w.limit
			result = &v
		}
	}
	return result
}

// scheduleLimitAt evaluates one profile's schedule at instant t and converts
// the active period's limit to watts. Nil means no period covers t.
func (m *Manager) scheduleLimitAt(s *stored, tx *ActiveTransaction, t time.Time) *float64 {
	anchor, ok := s.anchorAt(tx, t)
	if !ok {
		return nil
	}

	elapsed := int(t.Sub(anchor) / time.Second)
	if elapsed < 0 {
		return nil
	}

	sched := s.profile.ChargingSchedule
	if sched.Duration != nil && elapsed >= *sched.Duration {
		return nil
	}

	var active *v16.ChargingSchedulePeriod
	for i := range sched.ChargingSchedulePeriod {
		p := &sched.ChargingSchedulePeriod[i]
		if p.StartPeriod > elapsed {
			break
		}
		active = p
	}
	if active == nil {
		return nil
	}

	w := m.toWatts(active.Limit, sched.ChargingRateUnit, active.NumberPhases)
	return &w
}

func (m *Manager) toWatts(limit float64, unit v16.ChargingRateUnit, phases *int) float64 {
	if unit != v16.RateUnitAmps {
		return limit
	}
	n := m.phases
	if phases != nil {
		n = *phases
	}
	return limit * m.voltage * float64(n)
}

// anchorAt resolves the schedule's zero instant for an evaluation at t.
// Recurring schedules anchor on the current cycle boundary.
func (s *stored) anchorAt(tx *ActiveTransaction, t time.Time) (time.Time, bool) {
	switch s.profile.ChargingProfileKind {
	case v16.KindAbsolute:
		if s.startSchedule != nil {
			return *s.startSchedule, true
		}
		return s.receivedAt, true
	case v16.KindRecurring:
		if s.profile.RecurrencyKind == v16.RecurrencyWeekly {
			return weekStart(t), true
		}
		return dayStart(t), true
	case v16.KindRelative:
		if tx == nil {
			return time.Time{}, false
		}
		return tx.StartedAt, true
	}
	return time.Time{}, false
}

func (s *stored) appliesToTransaction(tx *ActiveTransaction) bool {
	switch s.profile.ChargingProfilePurpose {
	case v16.PurposeTx:
		if tx == nil || s.profile.TransactionID == nil || *s.profile.TransactionID != tx.ID {
			return false
		}
	case v16.PurposeTxDefault:
		if tx == nil {
			return false
		}
	}
	if s.profile.ChargingProfileKind == v16.KindRelative && tx == nil {
		return false
	}
	return true
}

func (s *stored) inValidityWindow(t time.Time) bool {
	if s.validFrom != nil && t.Before(*s.validFrom) {
		return false
	}
	if s.validTo != nil && t.After(*s.validTo) {
		return false
	}
	return true
}

// breakpoints collects every offset in [0, duration) where the merged limit
// can change: period starts, schedule ends, validity edges, cycle wraps.
func (m *Manager) breakpoints(connectorID, duration int, tx *ActiveTransaction, now time.Time) []int {
	seen := map[int]bool{0: true}
	add := func(at time.Time) {
		offset := int(at.Sub(now) / time.Second)
		if offset > 0 && offset < duration {
			seen[offset] = true
		}
	}

	for _, s := range m.candidates(connectorID, tx) {
		if s.validFrom != nil {
			add(*s.validFrom)
		}
		if s.validTo != nil {
			// The instant after validTo is where the profile stops applying.
			add(s.validTo.Add(time.Second))
		}

		sched := s.profile.ChargingSchedule
		switch s.profile.ChargingProfileKind {
		case v16.KindRecurring:
			cycle := secondsPerDay
			start := dayStart(now)
			if s.profile.RecurrencyKind == v16.RecurrencyWeekly {
				cycle = secondsPerWeek
				start = weekStart(now)
			}
			for cs := start; int(cs.Sub(now)/time.Second) < duration; cs = cs.Add(time.Duration(cycle) * time.Second) {
				add(cs)
				for _, p := range sched.ChargingSchedulePeriod {
					add(cs.Add(time.Duration(p.StartPeriod) * time.Second))
				}
				if sched.Duration != nil {
					add(cs.Add(time.Duration(*sched.Duration) * time.Second))
				}
			}
		default:
			anchor, ok := s.anchorAt(tx, now)
			if !ok {
				continue
			}
			for _, p := range sched.ChargingSchedulePeriod {
				add(anchor.Add(time.Duration(p.StartPeriod) * time.Second))
			}
			if sched.Duration != nil {
				add(anchor.Add(time.Duration(*sched.Duration) * time.Second))
			}
		}
	}

	offsets := make([]int, 0, len(seen))
	for offset := range seen {
		offsets = append(offsets, offset)
	}
	sort.Ints(offsets)
	return offsets
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func weekStart(t time.Time) time.Time {
	daysSinceMonday := (int(t.Weekday()) + 6) % 7
	return dayStart(t).AddDate(0, 0, -daysSinceMonday)
}
