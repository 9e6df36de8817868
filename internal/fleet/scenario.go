package fleet

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-swarm/internal/domain"
	"github.com/seu-repo/ocpp-swarm/internal/ports"
)

// ScenarioStep is one timed action in a scenario script. Scripts are YAML
// or JSON files with a top-level `steps` list:
//
//	name: evening-peak
//	steps:
//	  - at_seconds: 0
//	    action: scale_stations
//	    params: {new_total: 5, profile: busy}
//	  - at_seconds: 30
//	    action: set_price
//	    params: {value: 28.5}
type ScenarioStep struct {
	At     float64                `mapstructure:"at_seconds" json:"at_seconds"`
	Action string                 `mapstructure:"action" json:"action"`
	Params map[string]interface{} `mapstructure:"params" json:"params"`
}

type scenarioFile struct {
	Name  string         `mapstructure:"name"`
	Steps []ScenarioStep `mapstructure:"steps"`
}

var scenarioActions = map[string]bool{
	"start_stations": true,
	"stop_stations":  true,
	"set_price":      true,
	"apply_profile":  true,
	"clear_profile":  true,
	"scale_stations": true,
	"inject_fault":   true,
}

// LoadScenario parses and validates a scenario file, returning its steps
// sorted by offset.
func LoadScenario(path string) (string, []ScenarioStep, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return "", nil, fmt.Errorf("read scenario: %w", err)
	}
	var file scenarioFile
	if err := v.Unmarshal(&file); err != nil {
		return "", nil, fmt.Errorf("parse scenario: %w", err)
	}
	if len(file.Steps) == 0 {
		return "", nil, &ValidationError{Field: "steps", Reason: "scenario has no steps"}
	}
	for i, step := range file.Steps {
		if err := validateStep(i, step); err != nil {
			return "", nil, err
		}
	}
	steps := make([]ScenarioStep, len(file.Steps))
	copy(steps, file.Steps)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].At < steps[j].At })
	return file.Name, steps, nil
}

func validateStep(idx int, step ScenarioStep) error {
	field := fmt.Sprintf("steps[%d]", idx)
	if step.At < 0 {
		return &ValidationError{Field: field, Reason: "at_seconds must not be negative"}
	}
	if !scenarioActions[step.Action] {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("unsupported action %q", step.Action)}
	}
	need := func(keys ...string) error {
		for _, key := range keys {
			if _, ok := step.Params[key]; !ok {
				return &ValidationError{Field: field, Reason: fmt.Sprintf("%s requires %q", step.Action, key)}
			}
		}
		return nil
	}
	switch step.Action {
	case "start_stations":
		return need("count")
	case "scale_stations":
		if _, ok := step.Params["new_total"]; !ok {
			return need("count")
		}
	case "stop_stations":
		if _, hasIDs := step.Params["ids"]; !hasIDs {
			return need("count")
		}
	case "set_price":
		return need("value")
	case "apply_profile":
		return need("station_id", "scenario")
	case "clear_profile":
		return need("station_id")
	case "inject_fault":
		return need("station_id", "kind")
	}
	return nil
}

// RunnerStatus reports scenario progress to the control plane.
type RunnerStatus struct {
	Scenario  string     `json:"scenario,omitempty"`
	Loaded    int        `json:"loaded"`
	Executed  int        `json:"executed"`
	Running   bool       `json:"running"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	LastStep  string     `json:"last_step,omitempty"`
	Errors    []string   `json:"errors,omitempty"`
}

// Runner executes a loaded scenario against the fleet manager, one step at
// a time at each step's offset.
type Runner struct {
	mgr *Manager
	log *zap.Logger

	mu        sync.Mutex
	name      string
	steps     []ScenarioStep
	executed  int
	running   bool
	startedAt time.Time
	lastStep  string
	errs      []string
	cancel    context.CancelFunc
}

func NewRunner(mgr *Manager, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{mgr: mgr, log: log}
}

// Load replaces the current scenario. It fails while one is running.
func (r *Runner) Load(path string) (RunnerStatus, error) {
	name, steps, err := LoadScenario(path)
	if err != nil {
		return RunnerStatus{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return RunnerStatus{}, &ValidationError{Field: "scenario", Reason: "a scenario is already running"}
	}
	if name == "" {
		name = path
	}
	r.name = name
	r.steps = steps
	r.executed = 0
	r.lastStep = ""
	r.errs = nil
	return r.statusLocked(), nil
}

// Start begins executing the loaded scenario in the background.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return &ValidationError{Field: "scenario", Reason: "a scenario is already running"}
	}
	if len(r.steps) == 0 {
		return &ValidationError{Field: "scenario", Reason: "no scenario loaded"}
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.executed = 0
	r.errs = nil
	r.startedAt = time.Now().UTC()
	steps := make([]ScenarioStep, len(r.steps))
	copy(steps, r.steps)

	r.log.Info("scenario started",
		zap.String("scenario", r.name),
		zap.Int("steps", len(steps)),
	)
	go r.run(runCtx, steps)
	return nil
}

// Stop aborts a running scenario.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Status returns the runner's progress.
func (r *Runner) Status() RunnerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked()
}

func (r *Runner) statusLocked() RunnerStatus {
	st := RunnerStatus{
		Scenario: r.name,
		Loaded:   len(r.steps),
		Executed: r.executed,
		Running:  r.running,
		LastStep: r.lastStep,
		Errors:   append([]string(nil), r.errs...),
	}
	if !r.startedAt.IsZero() {
		t := r.startedAt
		st.StartedAt = &t
	}
	return st
}

func (r *Runner) run(ctx context.Context, steps []ScenarioStep) {
	defer func() {
		r.mu.Lock()
		r.running = false
		r.cancel = nil
		r.mu.Unlock()
		r.log.Info("scenario finished", zap.String("scenario", r.name))
	}()

	elapsed := 0.0
	for _, step := range steps {
		wait := step.At - elapsed
		if wait > 0 {
			timer := time.NewTimer(time.Duration(wait * float64(time.Second)))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		elapsed = step.At

		desc := fmt.Sprintf("%s@%.0fs", step.Action, step.At)
		err := r.execute(ctx, step)

		r.mu.Lock()
		r.executed++
		r.lastStep = desc
		if err != nil {
			r.errs = append(r.errs, fmt.Sprintf("%s: %v", desc, err))
		}
		r.mu.Unlock()

		if err != nil {
			r.log.Warn("scenario step failed",
				zap.String("scenario", r.name),
				zap.String("step", desc),
				zap.Error(err),
			)
		} else {
			r.log.Info("scenario step executed",
				zap.String("scenario", r.name),
				zap.String("step", desc),
			)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (r *Runner) execute(ctx context.Context, step ScenarioStep) error {
	p := step.Params
	switch step.Action {
	case "start_stations":
		count, _ := intParam(p, "count")
		profile, _ := stringParam(p, "profile")
		_, err := r.mgr.Scale(count, profile)
		return err

	case "scale_stations":
		total, ok := intParam(p, "new_total")
		if !ok {
			total, _ = intParam(p, "count")
		}
		profile, _ := stringParam(p, "profile")
		_, err := r.mgr.Scale(total, profile)
		return err

	case "stop_stations":
		if ids := stringsParam(p, "ids"); len(ids) > 0 {
			for _, id := range ids {
				if _, err := r.mgr.StopStation(id); err != nil {
					return err
				}
			}
			return nil
		}
		count, _ := intParam(p, "count")
		for _, id := range r.mgr.StationIDs() {
			if count <= 0 {
				break
			}
			if _, err := r.mgr.StopStation(id); err != nil {
				return err
			}
			count--
		}
		return nil

	case "set_price":
		value, ok := numberParam(p, "value")
		if !ok {
			return &ValidationError{Field: "value", Reason: "must be a number"}
		}
		return r.mgr.SetPrice(value)

	case "apply_profile":
		stationID, _ := stringParam(p, "station_id")
		scenario, _ := stringParam(p, "scenario")
		_, err := r.mgr.SendTestProfile(ctx, stationID, scenario, testParamsFrom(p))
		return err

	case "clear_profile":
		stationID, _ := stringParam(p, "station_id")
		var filters ports.ClearFilters
		if id, ok := intParam(p, "profile_id"); ok {
			filters.ProfileID = &id
		}
		if c, ok := intParam(p, "connector_id"); ok {
			filters.ConnectorID = &c
		}
		if purpose, ok := stringParam(p, "purpose"); ok {
			filters.Purpose = purpose
		}
		_, err := r.mgr.ClearChargingProfile(ctx, stationID, filters)
		return err

	case "inject_fault":
		stationID, _ := stringParam(p, "station_id")
		kind, _ := stringParam(p, "kind")
		rule := FaultRule{
			StationID: stationID,
			Kind:      domain.FaultKind(kind),
			OneShot:   true,
		}
		if prob, ok := numberParam(p, "probability"); ok {
			rule.Probability = prob
		}
		if oneShot, ok := boolParam(p, "one_shot"); ok {
			rule.OneShot = oneShot
		}
		_, err := r.mgr.Faults().Add(rule)
		return err
	}
	return fmt.Errorf("unsupported action %q", step.Action)
}

// testParamsFrom lifts scenario params into the smart-charging DTO.
func testParamsFrom(p map[string]interface{}) ports.TestProfileParams {
	var out ports.TestProfileParams
	if v, ok := intParam(p, "connector_id"); ok {
		out.ConnectorID = v
	}
	if v, ok := numberParam(p, "max_power_w"); ok {
		out.MaxPowerW = &v
	}
	if v, ok := numberParam(p, "off_peak_w"); ok {
		out.OffPeakW = &v
	}
	if v, ok := numberParam(p, "peak_w"); ok {
		out.PeakW = &v
	}
	if v, ok := intParam(p, "peak_start_hour"); ok {
		out.PeakStartHour = &v
	}
	if v, ok := intParam(p, "peak_end_hour"); ok {
		out.PeakEndHour = &v
	}
	if v, ok := intParam(p, "transaction_id"); ok {
		out.TransactionID = &v
	}
	if v, ok := numberParam(p, "max_energy_wh"); ok {
		out.MaxEnergyWh = &v
	}
	if v, ok := intParam(p, "duration_seconds"); ok {
		out.DurationSeconds = &v
	}
	if v, ok := numberParam(p, "power_limit_w"); ok {
		out.PowerLimitW = &v
	}
	return out
}

func numberParam(p map[string]interface{}, key string) (float64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func intParam(p map[string]interface{}, key string) (int, bool) {
	f, ok := numberParam(p, key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func stringParam(p map[string]interface{}, key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func boolParam(p map[string]interface{}, key string) (bool, bool) {
	v, ok := p[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func stringsParam(p map[string]interface{}, key string) []string {
	v, ok := p[key]
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return list
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
