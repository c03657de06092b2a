package logic

import (
	"math"
	"time"
)

// TriggerConfig configures the trigger condition and the global cooldown.
type TriggerConfig struct {
	// LessThanTriggers fires when smoothed <= threshold; otherwise smoothed >= threshold.
	LessThanTriggers bool
	ThresholdCm      float64
	// RetriggerCooldown is the minimum time between any two triggers from any sensor.
	RetriggerCooldown time.Duration
	// MinConsecutiveSamples required before firing. Values below 1 mean 1.
	MinConsecutiveSamples int
}

// Decision is the outcome of evaluating one smoothed sample.
type Decision int

const (
	// NotReached: the debounce streak has not reached the threshold.
	NotReached Decision = iota
	// Fired: the streak reached the threshold and the global gate allowed it.
	Fired
	// Suppressed: the streak reached the threshold inside the global cooldown.
	Suppressed
)

// TriggerEvaluator applies the debounce streak per sensor and a single
// cooldown gate shared by all sensors.
type TriggerEvaluator struct {
	cfg            TriggerConfig
	lastAnyTrigger time.Time // zero = never fired
}

// NewTriggerEvaluator creates an evaluator with an open gate.
func NewTriggerEvaluator(cfg TriggerConfig) *TriggerEvaluator {
	return &TriggerEvaluator{cfg: cfg}
}

// Condition reports whether a smoothed distance satisfies the trigger condition.
func (e *TriggerEvaluator) Condition(smoothedCm float64) bool {
	if e.cfg.LessThanTriggers {
		return smoothedCm <= e.cfg.ThresholdCm
	}
	return smoothedCm >= e.cfg.ThresholdCm
}

// Evaluate updates the sensor's streak with a smoothed sample observed at now.
// Reaching the debounce threshold always resets the streak, whether the
// cooldown let the trigger through or not.
func (e *TriggerEvaluator) Evaluate(s *SensorState, smoothedCm float64, now time.Time) Decision {
	if !e.Condition(smoothedCm) {
		s.ConsecutiveTrue = 0
		return NotReached
	}

	s.ConsecutiveTrue++
	if s.ConsecutiveTrue < max(1, e.cfg.MinConsecutiveSamples) {
		return NotReached
	}

	s.ConsecutiveTrue = 0
	if !e.gateOpen(now) {
		return Suppressed
	}
	e.lastAnyTrigger = now
	return Fired
}

// EvaluateLegacy passes a legacy literal through the global gate only.
func (e *TriggerEvaluator) EvaluateLegacy(now time.Time) Decision {
	if !e.gateOpen(now) {
		return Suppressed
	}
	e.lastAnyTrigger = now
	return Fired
}

// LastTrigger returns the time of the last accepted trigger (zero if none).
func (e *TriggerEvaluator) LastTrigger() time.Time {
	return e.lastAnyTrigger
}

func (e *TriggerEvaluator) gateOpen(now time.Time) bool {
	if e.lastAnyTrigger.IsZero() {
		return true
	}
	return now.Sub(e.lastAnyTrigger) >= e.cfg.RetriggerCooldown
}

// legacyDistance is reported for legacy triggers, which carry no measurement.
var legacyDistance = math.NaN()
