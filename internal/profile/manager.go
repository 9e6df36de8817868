// Package profile stores OCPP 1.6 charging profiles for one station and
// resolves them into instantaneous power limits and composite schedules.
package profile

import (
	"fmt"
	"sync"
	"time"

	v16 "github.com/seu-repo/ocpp-swarm/internal/ocpp/v16"
)

// Nominal grid values used to convert ampere limits to watts.
const (
	DefaultVoltage = 230.0
	DefaultPhases  = 3
)

// ValidationError reports a structurally invalid profile or filter. The
// station answers these with a Rejected status instead of a wire error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid charging profile: %s: %s", e.Field, e.Reason)
}

// ActiveTransaction identifies the transaction the station is currently
// running, for TxProfile matching and Relative anchoring.
type ActiveTransaction struct {
	ID        int
	StartedAt time.Time
}

// ClearFilter selects profiles for removal. Nil/zero fields match anything;
// set fields combine with AND semantics.
type ClearFilter struct {
	ProfileID   *int
	ConnectorID *int
	Purpose     v16.ChargingProfilePurpose
	StackLevel  *int
}

// SchedulePeriod is one step of a composite schedule: from StartOffset
// seconds after the query instant, the aggregate limit is Limit.
type SchedulePeriod struct {
	StartOffset int     `json:"startPeriod"`
	Limit       float64 `json:"limit"`
}

type stored struct {
	profile     v16.ChargingProfile
	connectorID int
	receivedAt  time.Time

	validFrom     *time.Time
	validTo       *time.Time
	startSchedule *time.Time
}

// Manager holds the profiles installed on one station. A single lock
// serializes CSMS-driven mutations against reads from the meter loop.
type Manager struct {
	mu       sync.RWMutex
	profiles map[int][]*stored

	voltage float64
	phases  int
}

// Option adjusts a Manager at construction time.
type Option func(*Manager)

// WithVoltage overrides the nominal voltage used for A→W conversion.
func WithVoltage(v float64) Option {
	return func(m *Manager) { m.voltage = v }
}

// NewManager creates an empty profile store.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		profiles: make(map[int][]*stored),
		voltage:  DefaultVoltage,
		phases:   DefaultPhases,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetProfile validates and installs a profile on the given connector,
// replacing any existing profile with the same id or the same
// (purpose, stackLevel) pair on that connector.
func (m *Manager) SetProfile(connectorID int, p v16.ChargingProfile, now time.Time) error {
	s, err := compile(connectorID, p, now)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.profiles[connectorID][:0]
	for _, existing := range m.profiles[connectorID] {
		samePair := existing.profile.ChargingProfilePurpose == p.ChargingProfilePurpose &&
			existing.profile.StackLevel == p.StackLevel
		if existing.profile.ChargingProfileID == p.ChargingProfileID || samePair {
			continue
		}
		kept = append(kept, existing)
	}
	m.profiles[connectorID] = append(kept, s)
	return nil
}

// ClearProfiles removes every profile matching the filter and reports how
// many were removed.
func (m *Manager) ClearProfiles(filter ClearFilter) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for connectorID, list := range m.profiles {
		if filter.ConnectorID != nil && *filter.ConnectorID != connectorID {
			continue
		}
		kept := list[:0]
		for _, s := range list {
			if matchesFilter(s, filter) {
				removed++
				continue
			}
			kept = append(kept, s)
		}
		if len(kept) == 0 {
			delete(m.profiles, connectorID)
		} else {
			m.profiles[connectorID] = kept
		}
	}
	return removed
}

// Count returns the number of installed profiles across all connectors.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, list := range m.profiles {
		n += len(list)
	}
	return n
}

// Profiles returns a copy of the profiles installed on a connector.
func (m *Manager) Profiles(connectorID int) []v16.ChargingProfile {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]v16.ChargingProfile, 0, len(m.profiles[connectorID]))
	for _, s := range m.profiles[connectorID] {
		out = append(out, s.profile)
	}
	return out
}

func matchesFilter(s *stored, f ClearFilter) bool {
	if f.ProfileID != nil && s.profile.ChargingProfileID != *f.ProfileID {
		return false
	}
	if f.Purpose != "" && s.profile.ChargingProfilePurpose != f.Purpose {
		return false
	}
	if f.StackLevel != nil && s.profile.StackLevel != *f.StackLevel {
		return false
	}
	return true
}

// compile validates the wire profile and resolves its timestamps once.
func compile(connectorID int, p v16.ChargingProfile, now time.Time) (*stored, error) {
	if connectorID < 0 {
		return nil, &ValidationError{Field: "connectorId", Reason: "must be >= 0"}
	}
	if p.ChargingProfileID <= 0 {
		return nil, &ValidationError{Field: "chargingProfileId", Reason: "must be positive"}
	}
	if p.StackLevel < 0 {
		return nil, &ValidationError{Field: "stackLevel", Reason: "must be >= 0"}
	}

	switch p.ChargingProfilePurpose {
	case v16.PurposeChargePointMax, v16.PurposeTxDefault, v16.PurposeTx:
	default:
		return nil, &ValidationError{Field: "chargingProfilePurpose", Reason: fmt.Sprintf("unknown purpose %q", p.ChargingProfilePurpose)}
	}

	switch p.ChargingProfileKind {
	case v16.KindAbsolute, v16.KindRecurring, v16.KindRelative:
	default:
		return nil, &ValidationError{Field: "chargingProfileKind", Reason: fmt.Sprintf("unknown kind %q", p.ChargingProfileKind)}
	}

	if p.ChargingProfilePurpose == v16.PurposeTx && p.TransactionID == nil {
		return nil, &ValidationError{Field: "transactionId", Reason: "required for TxProfile"}
	}
	if p.ChargingProfilePurpose != v16.PurposeTx && p.TransactionID != nil {
		return nil, &ValidationError{Field: "transactionId", Reason: "only allowed for TxProfile"}
	}

	if p.ChargingProfileKind == v16.KindRecurring {
		switch p.RecurrencyKind {
		case v16.RecurrencyDaily, v16.RecurrencyWeekly:
		default:
			return nil, &ValidationError{Field: "recurrencyKind", Reason: "required for Recurring profiles"}
		}
	}

	sched := p.ChargingSchedule
	switch sched.ChargingRateUnit {
	case v16.RateUnitWatts, v16.RateUnitAmps:
	default:
		return nil, &ValidationError{Field: "chargingRateUnit", Reason: fmt.Sprintf("unknown unit %q", sched.ChargingRateUnit)}
	}
	if len(sched.ChargingSchedulePeriod) == 0 {
		return nil, &ValidationError{Field: "chargingSchedulePeriod", Reason: "must not be empty"}
	}
	last := -1
	for i, period := range sched.ChargingSchedulePeriod {
		if period.StartPeriod < 0 {
			return nil, &ValidationError{Field: "startPeriod", Reason: fmt.Sprintf("period %d: must be >= 0", i)}
		}
		if period.StartPeriod <= last {
			return nil, &ValidationError{Field: "startPeriod", Reason: fmt.Sprintf("period %d: must be strictly increasing", i)}
		}
		if period.Limit <= 0 {
			return nil, &ValidationError{Field: "limit", Reason: fmt.Sprintf("period %d: must be positive", i)}
		}
		last = period.StartPeriod
	}
	if sched.Duration != nil && *sched.Duration <= 0 {
		return nil, &ValidationError{Field: "duration", Reason: "must be positive when set"}
	}

	s := &stored{profile: p, connectorID: connectorID, receivedAt: now}

	var err error
	if s.validFrom, err = parseOptionalTime(p.ValidFrom); err != nil {
		return nil, &ValidationError{Field: "validFrom", Reason: err.Error()}
	}
	if s.validTo, err = parseOptionalTime(p.ValidTo); err != nil {
		return nil, &ValidationError{Field: "validTo", Reason: err.Error()}
	}
	if s.startSchedule, err = parseOptionalTime(sched.StartSchedule); err != nil {
		return nil, &ValidationError{Field: "startSchedule", Reason: err.Error()}
	}
	return s, nil
}

func parseOptionalTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := v16.ParseTimestamp(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
