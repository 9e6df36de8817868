// Package policy decides whether a station should charge right now. It is a
// pure function over the caller-supplied state, rules, and environment; it
// never reads the clock and never logs.
package policy

import "fmt"

// Action is the verdict for a prospective charging session.
type Action string

const (
	ActionCharge Action = "charge"
	ActionWait   Action = "wait"
	ActionPause  Action = "pause"
)

// TickAction is the verdict for an in-flight meter tick.
type TickAction string

const (
	TickContinue TickAction = "continue"
	TickStop     TickAction = "stop"
)

// StationState is the station-side input to a decision.
type StationState struct {
	EnergyDispensedKWh float64
	Charging           bool
	SessionActive      bool
}

// Rules are the smart-charging parameters from the station's behavior profile.
type Rules struct {
	ChargeIfPriceBelow float64
	MaxEnergyKWh       float64
	AllowPeakHours     bool
	PeakHours          []int
}

// Env is the environment input: the current price and the hour of day.
type Env struct {
	CurrentPrice float64
	Hour         int
}

// Decision carries the action plus a human-readable reason suitable for the
// station log.
type Decision struct {
	Action Action
	Reason string
}

// TickDecision is the refined per-meter-tick verdict.
type TickDecision struct {
	Action TickAction
	Reason string
}

// InPeakHours reports whether hour falls in the rule set's peak hours.
func (r Rules) InPeakHours(hour int) bool {
	for _, h := range r.PeakHours {
		if h == hour {
			return true
		}
	}
	return false
}

// Evaluate applies the decision priority: energy cap, then price, then peak
// hours. The price comparison is strictly greater-than, so a price exactly at
// the threshold still charges.
func Evaluate(state StationState, rules Rules, env Env) Decision {
	if state.EnergyDispensedKWh >= rules.MaxEnergyKWh {
		return Decision{
			Action: ActionPause,
			Reason: fmt.Sprintf("Energy cap reached (%.1f/%.1f kWh)", state.EnergyDispensedKWh, rules.MaxEnergyKWh),
		}
	}

	if env.CurrentPrice > rules.ChargeIfPriceBelow {
		return Decision{
			Action: ActionWait,
			Reason: fmt.Sprintf("Price too high (%.2f > %.2f)", env.CurrentPrice, rules.ChargeIfPriceBelow),
		}
	}

	if rules.InPeakHours(env.Hour) && !rules.AllowPeakHours {
		return Decision{
			Action: ActionWait,
			Reason: fmt.Sprintf("Peak hour block (hour %d)", env.Hour),
		}
	}

	return Decision{Action: ActionCharge, Reason: "Conditions OK"}
}

// EvaluateMeterTick refines the energy check to watt-hour granularity for use
// inside the meter loop and maps the session verdict onto continue/stop.
func EvaluateMeterTick(state StationState, rules Rules, env Env, currentEnergyWh, maxEnergyWh float64) TickDecision {
	state.EnergyDispensedKWh = currentEnergyWh / 1000.0
	rules.MaxEnergyKWh = maxEnergyWh / 1000.0

	d := Evaluate(state, rules, env)
	if d.Action == ActionCharge {
		return TickDecision{Action: TickContinue, Reason: d.Reason}
	}
	return TickDecision{Action: TickStop, Reason: d.Reason}
}
