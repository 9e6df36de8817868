// Package fleet supervises a swarm of simulated charge points: it creates
// and tears down station agents, fans out the energy price, aggregates
// snapshots into fleet totals, and routes smart-charging commands to the
// central system.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seu-repo/ocpp-swarm/internal/domain"
	v16 "github.com/seu-repo/ocpp-swarm/internal/ocpp/v16"
	"github.com/seu-repo/ocpp-swarm/internal/ports"
	"github.com/seu-repo/ocpp-swarm/internal/station"
)

const (
	// slotPattern shapes ids handed out by Scale.
	slotPattern = "PY-SIM-%04d"

	// maxConcurrentOps bounds StartAll/StopAll/Scale batches.
	maxConcurrentOps = 10
	// opStepDelay spaces lifecycle operations so a large fleet does not
	// slam the central system in one burst.
	opStepDelay = 100 * time.Millisecond

	defaultInitialPrice = 20.0
)

// ErrStationNotFound reports an id with no registered agent.
var ErrStationNotFound = errors.New("station not found")

// ErrChargingUnavailable reports that no smart-charging backend is wired.
var ErrChargingUnavailable = errors.New("smart charging backend not configured")

// ValidationError rejects a control-plane input before any state changes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// atomicFloat is a lock-free float64 cell for the fleet-wide price.
type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) Store(v float64) { f.bits.Store(math.Float64bits(v)) }
func (f *atomicFloat) Load() float64   { return math.Float64frombits(f.bits.Load()) }

// Config assembles a Manager.
type Config struct {
	CSMSURL string

	// InitialPrice seeds the fleet price. Zero means 20.0.
	InitialPrice float64
	// CallTimeout is handed to every agent. Zero keeps the agent default.
	CallTimeout time.Duration
	// Voltage is handed to every agent. Zero keeps the agent default.
	Voltage float64

	// Charging routes the smart-charging facades; nil disables them.
	Charging ports.SmartCharging
	// History receives periodic fleet energy snapshots; nil disables.
	History ports.HistoryRepository

	Logger *zap.Logger
}

// entry tracks one registered station. The agent is replaced on restart
// because a stopped agent is terminal.
type entry struct {
	agent       *station.Agent
	profileName string
	battery     *domain.BatteryConfig
}

// Manager is the fleet supervisor. Reads (snapshots, logs, price fan-out)
// take the read lock; start/stop/scale serialize on the write lock.
type Manager struct {
	csmsURL     string
	callTimeout time.Duration
	voltage     float64
	profiles    map[string]domain.StationProfile
	charging    ports.SmartCharging
	history     ports.HistoryRepository
	log         *zap.Logger

	price atomicFloat

	mu      sync.RWMutex
	entries map[string]*entry

	injector *Injector

	totalsMu    sync.Mutex
	totalEnergy float64 // kWh delivered since start
	earnings    float64
	lastEnergy  map[string]float64 // per-station session kWh at last tick
	updatedAt   time.Time
}

// NewManager builds a fleet supervisor with no stations.
func NewManager(cfg Config) *Manager {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	price := cfg.InitialPrice
	if price <= 0 {
		price = defaultInitialPrice
	}
	m := &Manager{
		csmsURL:     cfg.CSMSURL,
		callTimeout: cfg.CallTimeout,
		voltage:     cfg.Voltage,
		profiles:    Presets(),
		charging:    cfg.Charging,
		history:     cfg.History,
		log:         log,
		entries:     make(map[string]*entry),
		injector:    NewInjector(log),
		lastEnergy:  make(map[string]float64),
		updatedAt:   time.Now().UTC(),
	}
	m.price.Store(price)
	return m
}

// Faults exposes the fleet fault injector.
func (m *Manager) Faults() *Injector { return m.injector }

// StationIDs returns all registered ids, sorted.
func (m *Manager) StationIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StartStation registers and starts a station. Starting a running station
// is a no-op; a stopped station is recreated with its previous settings
// unless a new profile name is given.
func (m *Manager) StartStation(id, profileName string) (domain.StationSnapshot, error) {
	if id == "" {
		return domain.StationSnapshot{}, &ValidationError{Field: "id", Reason: "must not be empty"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entries[id]
	if profileName == "" {
		if e != nil {
			profileName = e.profileName
		} else {
			profileName = "default"
		}
	}
	profile, err := Preset(profileName)
	if err != nil {
		return domain.StationSnapshot{}, err
	}

	if e != nil && e.agent.Running() {
		return e.agent.Snapshot(), nil
	}

	var battery *domain.BatteryConfig
	if e != nil {
		battery = e.battery
	}
	agent := m.newAgent(id, profile, battery)
	m.entries[id] = &entry{agent: agent, profileName: profileName, battery: battery}
	agent.Start()
	m.log.Info("station started",
		zap.String("station_id", id),
		zap.String("profile", profileName),
	)
	return agent.Snapshot(), nil
}

// StopStation stops a station's agent. The station stays registered so it
// shows up as not running and can be restarted.
func (m *Manager) StopStation(id string) (domain.StationSnapshot, error) {
	m.mu.Lock()
	e, ok := m.entries[id]
	m.mu.Unlock()
	if !ok {
		return domain.StationSnapshot{}, fmt.Errorf("%w: %s", ErrStationNotFound, id)
	}

	e.agent.Stop()
	m.log.Info("station stopped", zap.String("station_id", id))
	return e.agent.Snapshot(), nil
}

// RemoveStation stops a station and drops it from the registry.
func (m *Manager) RemoveStation(id string) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	if ok {
		delete(m.entries, id)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrStationNotFound, id)
	}
	e.agent.Stop()

	m.totalsMu.Lock()
	delete(m.lastEnergy, id)
	m.totalsMu.Unlock()
	return nil
}

// Scale creates or tears down stations until exactly target exist. New
// stations take the given profile and ids from the smallest unused
// PY-SIM slot; teardown removes the highest ids first. Existing stations
// keep their profile.
func (m *Manager) Scale(target int, profileName string) (int, error) {
	if target < 0 {
		return 0, &ValidationError{Field: "count", Reason: "must not be negative"}
	}
	if profileName == "" {
		profileName = "default"
	}
	profile, err := Preset(profileName)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	current := len(m.entries)
	var added []*entry
	var addedIDs []string
	var removed []*entry
	var removedIDs []string

	switch {
	case target > current:
		for i := 0; i < target-current; i++ {
			id := m.nextSlotLocked()
			agent := m.newAgent(id, profile, nil)
			e := &entry{agent: agent, profileName: profileName}
			m.entries[id] = e
			added = append(added, e)
			addedIDs = append(addedIDs, id)
		}
	case target < current:
		ids := make([]string, 0, current)
		for id := range m.entries {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids[target:] {
			removed = append(removed, m.entries[id])
			removedIDs = append(removedIDs, id)
			delete(m.entries, id)
		}
	}
	count := len(m.entries)
	m.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(maxConcurrentOps)
	for _, e := range added {
		e := e
		g.Go(func() error {
			e.agent.Start()
			time.Sleep(opStepDelay)
			return nil
		})
	}
	for _, e := range removed {
		e := e
		g.Go(func() error {
			e.agent.Stop()
			time.Sleep(opStepDelay)
			return nil
		})
	}
	g.Wait()

	m.totalsMu.Lock()
	for _, id := range removedIDs {
		delete(m.lastEnergy, id)
	}
	m.totalsMu.Unlock()

	m.log.Info("fleet scaled",
		zap.Int("target", target),
		zap.Int("stations", count),
		zap.Strings("added", addedIDs),
		zap.Strings("removed", removedIDs),
	)
	return count, nil
}

// nextSlotLocked returns the smallest unused PY-SIM id. Callers hold mu.
func (m *Manager) nextSlotLocked() string {
	for i := 1; ; i++ {
		id := fmt.Sprintf(slotPattern, i)
		if _, taken := m.entries[id]; !taken {
			return id
		}
	}
}

// StartAll starts every stopped station and reports how many changed state.
func (m *Manager) StartAll() int {
	m.mu.Lock()
	var restarts []string
	for id, e := range m.entries {
		if !e.agent.Running() {
			restarts = append(restarts, id)
		}
	}
	for _, id := range restarts {
		e := m.entries[id]
		profile, err := Preset(e.profileName)
		if err != nil {
			continue
		}
		e.agent = m.newAgent(id, profile, e.battery)
	}
	agents := make([]*station.Agent, 0, len(restarts))
	for _, id := range restarts {
		agents = append(agents, m.entries[id].agent)
	}
	m.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(maxConcurrentOps)
	for _, a := range agents {
		a := a
		g.Go(func() error {
			a.Start()
			time.Sleep(opStepDelay)
			return nil
		})
	}
	g.Wait()
	m.log.Info("fleet started", zap.Int("started", len(agents)))
	return len(agents)
}

// StopAll stops every running station and reports how many changed state.
func (m *Manager) StopAll() int {
	m.mu.RLock()
	var agents []*station.Agent
	for _, e := range m.entries {
		if e.agent.Running() {
			agents = append(agents, e.agent)
		}
	}
	m.mu.RUnlock()

	var g errgroup.Group
	g.SetLimit(maxConcurrentOps)
	for _, a := range agents {
		a := a
		g.Go(func() error {
			a.Stop()
			time.Sleep(opStepDelay)
			return nil
		})
	}
	g.Wait()
	m.log.Info("fleet stopped", zap.Int("stopped", len(agents)))
	return len(agents)
}

// Shutdown stops every agent and waits for clean closes.
func (m *Manager) Shutdown() {
	m.StopAll()
}

// SetPrice publishes a new price per kWh to every agent.
func (m *Manager) SetPrice(p float64) error {
	if p <= 0 {
		return &ValidationError{Field: "price", Reason: "must be positive"}
	}
	m.price.Store(p)

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		e.agent.ApplyPrice(p)
	}
	m.log.Info("price updated", zap.Float64("price_per_kwh", p))
	return nil
}

// Price returns the fleet-wide price per kWh.
func (m *Manager) Price() float64 {
	return m.price.Load()
}

// SetBattery attaches or clears a battery model for a station. It takes
// effect on the station's next start.
func (m *Manager) SetBattery(id string, cfg *domain.BatteryConfig) error {
	if cfg != nil {
		if cfg.CapacityKWh <= 0 {
			return &ValidationError{Field: "capacity_kwh", Reason: "must be positive"}
		}
		if cfg.TargetSoC <= cfg.InitialSoC {
			return &ValidationError{Field: "target_soc", Reason: "must exceed initial_soc"}
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrStationNotFound, id)
	}
	e.battery = cfg
	return nil
}

// Snapshots returns every station's snapshot, sorted by id.
func (m *Manager) Snapshots() []domain.StationSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snaps := make([]domain.StationSnapshot, 0, len(m.entries))
	for _, e := range m.entries {
		snaps = append(snaps, e.agent.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID < snaps[j].ID })
	return snaps
}

// Snapshot returns one station's snapshot.
func (m *Manager) Snapshot(id string) (domain.StationSnapshot, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return domain.StationSnapshot{}, fmt.Errorf("%w: %s", ErrStationNotFound, id)
	}
	return e.agent.Snapshot(), nil
}

// StationLogs returns a station's log ring, oldest first.
func (m *Manager) StationLogs(id string) ([]string, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStationNotFound, id)
	}
	return e.agent.Logs(), nil
}

// InjectFault arms a one-off fault on a station.
func (m *Manager) InjectFault(id string, kind domain.FaultKind) error {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrStationNotFound, id)
	}
	return e.agent.InjectFault(kind)
}

func (m *Manager) newAgent(id string, profile domain.StationProfile, battery *domain.BatteryConfig) *station.Agent {
	if battery != nil {
		b := *battery
		profile.Battery = &b
	}
	return station.New(station.Config{
		ID:           id,
		CSMSURL:      m.csmsURL,
		Profile:      profile,
		InitialPrice: m.price.Load(),
		Voltage:      m.voltage,
		CallTimeout:  m.callTimeout,
		Logger:       m.log,
	})
}

// SendChargingProfile routes a profile to a station through the central
// system.
func (m *Manager) SendChargingProfile(ctx context.Context, stationID string, connectorID int, profile v16.ChargingProfile) (*ports.ProfileSendResult, error) {
	if m.charging == nil {
		return nil, ErrChargingUnavailable
	}
	return m.charging.SendChargingProfile(ctx, stationID, connectorID, profile)
}

// GetCompositeSchedule fetches a station's composite schedule through the
// central system.
func (m *Manager) GetCompositeSchedule(ctx context.Context, stationID string, connectorID, durationSec int, unit v16.ChargingRateUnit) (*ports.CompositeScheduleResult, error) {
	if m.charging == nil {
		return nil, ErrChargingUnavailable
	}
	return m.charging.GetCompositeSchedule(ctx, stationID, connectorID, durationSec, unit)
}

// ClearChargingProfile clears profiles on a station through the central
// system.
func (m *Manager) ClearChargingProfile(ctx context.Context, stationID string, filters ports.ClearFilters) (*ports.ClearProfileResult, error) {
	if m.charging == nil {
		return nil, ErrChargingUnavailable
	}
	return m.charging.ClearChargingProfile(ctx, stationID, filters)
}

// SendTestProfile generates a named scenario profile and sends it through
// the central system.
func (m *Manager) SendTestProfile(ctx context.Context, stationID, scenario string, params ports.TestProfileParams) (*ports.TestProfileResult, error) {
	if m.charging == nil {
		return nil, ErrChargingUnavailable
	}
	return m.charging.SendTestProfile(ctx, stationID, scenario, params)
}
