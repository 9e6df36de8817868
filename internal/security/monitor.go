// Package security implements the CSMS-side security monitor: a bounded
// in-memory event log, a sliding-window flow tracker fed by every inbound
// OCPP call, and threshold rules that derive events from message rates.
package security

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-swarm/internal/domain"
	"github.com/seu-repo/ocpp-swarm/internal/observability/telemetry"
	"github.com/seu-repo/ocpp-swarm/internal/ports"
)

const (
	// DefaultRingSize bounds the in-memory event log.
	DefaultRingSize = 1000

	alertTimeout   = 5 * time.Second
	historyTimeout = 5 * time.Second

	// EventSubject is the bus subject critical events are published on.
	EventSubject = "ocpp.events.security"
)

// Config wires the monitor's collaborators. Everything but the logger may
// be nil; a nil History, Alerts, or Queue disables that sink.
type Config struct {
	RingSize int
	Rules    []Rule
	History  ports.HistoryRepository
	Alerts   ports.AlertSender
	Queue    ports.MessageQueue
	Logger   *zap.Logger
}

// Monitor records security events in a fixed-size ring and evaluates
// detection rules over the message flow. It satisfies the CSMS server's
// recorder interface.
type Monitor struct {
	log     *zap.Logger
	history ports.HistoryRepository
	alerts  ports.AlertSender
	queue   ports.MessageQueue
	tracker *FlowTracker
	eval    *Evaluator

	mu     sync.Mutex
	max    int
	events []domain.SecurityEvent
}

func NewMonitor(cfg Config) *Monitor {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RingSize <= 0 {
		cfg.RingSize = DefaultRingSize
	}
	m := &Monitor{
		log:     cfg.Logger,
		history: cfg.History,
		alerts:  cfg.Alerts,
		queue:   cfg.Queue,
		tracker: NewFlowTracker(),
		max:     cfg.RingSize,
		events:  make([]domain.SecurityEvent, 0, cfg.RingSize),
	}
	m.eval = NewEvaluator(m.tracker, m.Record, cfg.Rules, cfg.Logger)
	return m
}

// Observe feeds one inbound OCPP action into the flow tracker.
func (m *Monitor) Observe(stationID, action string) {
	m.tracker.Record(stationID, action)
}

// Record stores ev in the ring, bumps metrics, and fans critical events out
// to the alert sender and the event bus. A zero timestamp and an empty
// severity are filled in.
func (m *Monitor) Record(ev domain.SecurityEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.Severity == "" {
		ev.Severity = domain.SeverityInfo
	}

	m.mu.Lock()
	if len(m.events) >= m.max {
		copy(m.events, m.events[1:])
		m.events = m.events[:len(m.events)-1]
	}
	m.events = append(m.events, ev)
	m.mu.Unlock()

	telemetry.SecurityEventsTotal.WithLabelValues(string(ev.Type), string(ev.Severity)).Inc()
	m.log.Warn("security alert",
		zap.String("type", string(ev.Type)),
		zap.String("station_id", ev.StationID),
		zap.String("severity", string(ev.Severity)),
		zap.String("message", ev.Message),
	)

	if m.history != nil {
		go m.persistEvent(ev)
	}
	if ev.Severity == domain.SeverityCritical {
		m.escalate(ev)
	}
}

func (m *Monitor) persistEvent(ev domain.SecurityEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	if err := m.history.SaveSecurityEvent(ctx, &ev); err != nil {
		m.log.Warn("security event write failed",
			zap.String("station_id", ev.StationID),
			zap.Error(err),
		)
	}
}

func (m *Monitor) escalate(ev domain.SecurityEvent) {
	if m.queue != nil {
		if data, err := json.Marshal(ev); err == nil {
			if err := m.queue.Publish(EventSubject, data); err != nil {
				m.log.Warn("security event publish failed", zap.Error(err))
			}
		}
	}
	if m.alerts != nil {
		go m.sendAlert(ev)
	}
}

func (m *Monitor) sendAlert(ev domain.SecurityEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
	defer cancel()
	alert := ports.Alert{
		Severity:  string(ev.Severity),
		Title:     fmt.Sprintf("security: %s", ev.Type),
		Message:   ev.Message,
		Source:    "security-monitor",
		SourceID:  ev.StationID,
		CreatedAt: ev.Timestamp,
	}
	if err := m.alerts.Send(ctx, alert); err != nil {
		m.log.Warn("security alert delivery failed",
			zap.String("station_id", ev.StationID),
			zap.Error(err),
		)
	}
}

// Recent returns up to limit events, oldest first.
func (m *Monitor) Recent(limit int) []domain.SecurityEvent {
	if limit <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	start := len(m.events) - limit
	if start < 0 {
		start = 0
	}
	out := make([]domain.SecurityEvent, len(m.events)-start)
	copy(out, m.events[start:])
	return out
}

// ForStation returns every buffered event for one station, oldest first.
func (m *Monitor) ForStation(stationID string) []domain.SecurityEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SecurityEvent
	for _, ev := range m.events {
		if ev.StationID == stationID {
			out = append(out, ev)
		}
	}
	return out
}

// Stats tallies the buffered events by type and severity.
type Stats struct {
	ByType     map[string]int `json:"by_type"`
	BySeverity map[string]int `json:"by_severity"`
}

func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Stats{
		ByType:     make(map[string]int),
		BySeverity: make(map[string]int),
	}
	for _, ev := range m.events {
		st.ByType[string(ev.Type)]++
		st.BySeverity[string(ev.Severity)]++
	}
	return st
}

// Clear empties the ring.
func (m *Monitor) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = m.events[:0]
}

// Flow exposes current message rates inside the window.
func (m *Monitor) Flow(window time.Duration) FlowSnapshot {
	return m.tracker.Snapshot(window)
}

// Rules returns the active detection rules.
func (m *Monitor) Rules() []Rule {
	return m.eval.Rules()
}

// ReplaceRules swaps the detection rule set.
func (m *Monitor) ReplaceRules(rules []Rule) error {
	return m.eval.Replace(rules)
}

// Run evaluates detection rules until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.eval.Run(ctx)
}
