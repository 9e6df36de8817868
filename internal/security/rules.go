package security

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-swarm/internal/domain"
)

// evalInterval is how often the rule evaluator sweeps the flow tracker.
const evalInterval = 5 * time.Second

// Rule derives a security event when an observed message kind exceeds a
// threshold inside a sliding window. EventType names the observed kind,
// usually an OCPP action such as "Heartbeat"; AlertType is the event type
// emitted on a match.
type Rule struct {
	Name            string                   `mapstructure:"name" json:"name"`
	EventType       string                   `mapstructure:"event_type" json:"event_type"`
	Threshold       int                      `mapstructure:"threshold" json:"threshold"`
	WindowSeconds   int                      `mapstructure:"window_seconds" json:"window_seconds"`
	CooldownSeconds int                      `mapstructure:"cooldown_seconds" json:"cooldown_seconds,omitempty"`
	StationScope    bool                     `mapstructure:"station_scope" json:"station_scope"`
	Severity        domain.SecuritySeverity  `mapstructure:"severity" json:"severity"`
	Description     string                   `mapstructure:"description" json:"description,omitempty"`
	AlertType       domain.SecurityEventType `mapstructure:"alert_type" json:"alert_type,omitempty"`
}

var validSeverities = map[domain.SecuritySeverity]bool{
	domain.SeverityInfo:     true,
	domain.SeverityWarning:  true,
	domain.SeverityCritical: true,
}

var validAlertTypes = map[domain.SecurityEventType]bool{
	domain.SecurityAuthFailure:          true,
	domain.SecurityDuplicateTransaction: true,
	domain.SecurityMalformedMessage:     true,
	domain.SecurityHeartbeatFlood:       true,
	domain.SecurityUnauthorizedCommand:  true,
}

// normalizeRule fills defaults and rejects unusable rules. The cooldown
// defaults to the window, the severity to warning.
func normalizeRule(r Rule) (Rule, error) {
	if r.Name == "" {
		return r, fmt.Errorf("rule name is required")
	}
	if r.EventType == "" {
		return r, fmt.Errorf("rule %q: event_type is required", r.Name)
	}
	if r.Threshold <= 0 {
		return r, fmt.Errorf("rule %q: threshold must be positive", r.Name)
	}
	if r.WindowSeconds <= 0 {
		return r, fmt.Errorf("rule %q: window_seconds must be positive", r.Name)
	}
	if r.CooldownSeconds <= 0 {
		r.CooldownSeconds = r.WindowSeconds
	}
	if r.Severity == "" {
		r.Severity = domain.SeverityWarning
	}
	if !validSeverities[r.Severity] {
		return r, fmt.Errorf("rule %q: unknown severity %q", r.Name, r.Severity)
	}
	if r.AlertType != "" && !validAlertTypes[r.AlertType] {
		return r, fmt.Errorf("rule %q: unknown alert_type %q", r.Name, r.AlertType)
	}
	return r, nil
}

// alertTypeFor maps a rule to the event type it emits when no explicit
// alert_type is configured.
func alertTypeFor(r Rule) domain.SecurityEventType {
	if r.AlertType != "" {
		return r.AlertType
	}
	if r.EventType == "Authorize" {
		return domain.SecurityAuthFailure
	}
	return domain.SecurityHeartbeatFlood
}

// DefaultRules is the built-in detection set used when the config carries
// none.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:          "heartbeat-flood",
			EventType:     "Heartbeat",
			Threshold:     20,
			WindowSeconds: 10,
			StationScope:  true,
			Severity:      domain.SeverityWarning,
			Description:   "heartbeat rate above limit",
			AlertType:     domain.SecurityHeartbeatFlood,
		},
		{
			Name:          "auth-storm",
			EventType:     "Authorize",
			Threshold:     30,
			WindowSeconds: 60,
			StationScope:  true,
			Severity:      domain.SeverityWarning,
			Description:   "authorize rate above limit",
			AlertType:     domain.SecurityAuthFailure,
		},
	}
}

type rulesFile struct {
	Rules []Rule `mapstructure:"rules"`
}

// LoadRules reads a standalone detection-rules file (YAML or JSON with a
// top-level `rules` list).
func LoadRules(path string) ([]Rule, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	var file rulesFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	out := make([]Rule, 0, len(file.Rules))
	for i, r := range file.Rules {
		nr, err := normalizeRule(r)
		if err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
		out = append(out, nr)
	}
	return out, nil
}

type firedKey struct {
	rule      string
	stationID string
}

// Evaluator sweeps the flow tracker on a fixed interval and emits derived
// events for rules whose threshold is exceeded. A rule fires at most once
// per cooldown for each station (or globally).
type Evaluator struct {
	tracker *FlowTracker
	emit    func(domain.SecurityEvent)
	log     *zap.Logger

	mu        sync.Mutex
	rules     []Rule
	lastFired map[firedKey]time.Time
}

// NewEvaluator validates rules and keeps the usable ones; rejected rules
// are logged and skipped so one bad entry cannot disable detection.
func NewEvaluator(tracker *FlowTracker, emit func(domain.SecurityEvent), rules []Rule, log *zap.Logger) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Evaluator{
		tracker:   tracker,
		emit:      emit,
		log:       log,
		lastFired: make(map[firedKey]time.Time),
	}
	for _, r := range rules {
		nr, err := normalizeRule(r)
		if err != nil {
			log.Warn("detection rule rejected", zap.String("rule", r.Name), zap.Error(err))
			continue
		}
		e.rules = append(e.rules, nr)
	}
	if len(e.rules) > 0 {
		log.Info("detection rules loaded", zap.Int("count", len(e.rules)))
	}
	return e
}

// Rules returns a copy of the active rule set.
func (e *Evaluator) Rules() []Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Replace swaps the rule set atomically. It fails on the first invalid
// rule and leaves the current set untouched.
func (e *Evaluator) Replace(rules []Rule) error {
	next := make([]Rule, 0, len(rules))
	for i, r := range rules {
		nr, err := normalizeRule(r)
		if err != nil {
			return fmt.Errorf("rules[%d]: %w", i, err)
		}
		next = append(next, nr)
	}
	e.mu.Lock()
	e.rules = next
	e.mu.Unlock()
	e.log.Info("detection rules replaced", zap.Int("count", len(next)))
	return nil
}

// Run sweeps the tracker every interval until ctx is cancelled.
func (e *Evaluator) Run(ctx context.Context) {
	ticker := time.NewTicker(evalInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Evaluate(time.Now())
		}
	}
}

// Evaluate applies every rule against the tracker at the given instant.
func (e *Evaluator) Evaluate(now time.Time) {
	e.mu.Lock()
	rules := make([]Rule, len(e.rules))
	copy(rules, e.rules)
	e.mu.Unlock()

	for _, rule := range rules {
		window := time.Duration(rule.WindowSeconds) * time.Second
		if rule.StationScope {
			for _, id := range e.tracker.stationsWith(rule.EventType) {
				count := e.tracker.countAt(rule.EventType, window, id, now)
				if count > rule.Threshold {
					e.fire(rule, id, count, now)
				}
			}
			continue
		}
		count := e.tracker.countAt(rule.EventType, window, "", now)
		if count > rule.Threshold {
			e.fire(rule, "", count, now)
		}
	}
}

func (e *Evaluator) fire(rule Rule, stationID string, count int, now time.Time) {
	key := firedKey{rule: rule.Name, stationID: stationID}
	cooldown := time.Duration(rule.CooldownSeconds) * time.Second

	e.mu.Lock()
	if last, ok := e.lastFired[key]; ok && now.Sub(last) < cooldown {
		e.mu.Unlock()
		return
	}
	e.lastFired[key] = now
	e.mu.Unlock()

	label := stationID
	if label == "" {
		label = "GLOBAL"
	}
	e.emit(domain.SecurityEvent{
		StationID: label,
		Type:      alertTypeFor(rule),
		Severity:  rule.Severity,
		Message:   fmt.Sprintf("%s: %s (%d/%d in %ds)", rule.Name, rule.Description, count, rule.Threshold, rule.WindowSeconds),
		Timestamp: now.UTC(),
	})
	e.log.Warn("detection rule matched",
		zap.String("rule", rule.Name),
		zap.String("station_id", label),
		zap.Int("count", count),
	)
}
