package fleet

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-swarm/internal/domain"
)

// FaultRule arms a fault against one station or, with station id "*", the
// whole fleet. Probability is rolled once per evaluation tick per matching
// station; a one-shot rule is retired after its first firing.
type FaultRule struct {
	ID          int              `json:"id"`
	StationID   string           `json:"station_id"`
	Kind        domain.FaultKind `json:"kind"`
	Probability float64          `json:"probability"`
	OneShot     bool             `json:"one_shot"`
	CreatedAt   time.Time        `json:"created_at"`
	FiredCount  int              `json:"fired_count"`
}

// Injector holds the fleet's fault rules.
type Injector struct {
	log *zap.Logger

	mu    sync.Mutex
	seq   int
	rules []*FaultRule
	rng   *rand.Rand
}

func NewInjector(log *zap.Logger) *Injector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Injector{
		log: log,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Add validates and registers a rule, returning it with its assigned id.
// A zero probability means "always fire".
func (in *Injector) Add(rule FaultRule) (FaultRule, error) {
	switch rule.Kind {
	case domain.FaultDisconnect, domain.FaultTimeout, domain.FaultDropMessage, domain.FaultCorruptPayload:
	default:
		return FaultRule{}, &ValidationError{Field: "kind", Reason: "unknown fault kind " + string(rule.Kind)}
	}
	if rule.StationID == "" {
		return FaultRule{}, &ValidationError{Field: "station_id", Reason: "must not be empty (use * for all stations)"}
	}
	if rule.Probability < 0 || rule.Probability > 1 {
		return FaultRule{}, &ValidationError{Field: "probability", Reason: "must be within [0, 1]"}
	}
	if rule.Probability == 0 {
		rule.Probability = 1
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	in.seq++
	rule.ID = in.seq
	rule.CreatedAt = time.Now().UTC()
	rule.FiredCount = 0
	stored := rule
	in.rules = append(in.rules, &stored)

	in.log.Info("fault rule registered",
		zap.Int("rule_id", rule.ID),
		zap.String("station_id", rule.StationID),
		zap.String("kind", string(rule.Kind)),
		zap.Float64("probability", rule.Probability),
		zap.Bool("one_shot", rule.OneShot),
	)
	return rule, nil
}

// Remove retires a rule by id.
func (in *Injector) Remove(id int) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	for i, r := range in.rules {
		if r.ID == id {
			in.rules = append(in.rules[:i], in.rules[i+1:]...)
			return true
		}
	}
	return false
}

// Rules returns a copy of the registered rules, oldest first.
func (in *Injector) Rules() []FaultRule {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]FaultRule, 0, len(in.rules))
	for _, r := range in.rules {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Empty reports whether no rules are registered.
func (in *Injector) Empty() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.rules) == 0
}

// Fire rolls every rule matching stationID once and returns the fault
// kinds that fired. Fired one-shot rules are retired.
func (in *Injector) Fire(stationID string) []domain.FaultKind {
	in.mu.Lock()
	defer in.mu.Unlock()

	var fired []domain.FaultKind
	kept := in.rules[:0]
	for _, r := range in.rules {
		if r.StationID != "*" && r.StationID != stationID {
			kept = append(kept, r)
			continue
		}
		if in.rng.Float64() >= r.Probability {
			kept = append(kept, r)
			continue
		}
		fired = append(fired, r.Kind)
		r.FiredCount++
		if !r.OneShot {
			kept = append(kept, r)
		}
	}
	in.rules = kept
	return fired
}
