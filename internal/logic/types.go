// Package logic contains the pure presence-detection and level logic.
// This package has NO external dependencies (no serial ports, MQTT, GPIO, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"strings"
	"time"
)

// Unit is the unit in which a device prints its numeric readings.
type Unit string

const (
	Millimeters Unit = "mm"
	Centimeters Unit = "cm"
)

// ParseUnit accepts "mm", "cm" and their long forms, case-insensitively.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mm", "millimeters", "millimetres":
		return Millimeters, nil
	case "cm", "centimeters", "centimetres":
		return Centimeters, nil
	}
	return "", fmt.Errorf("unknown unit %q (want mm or cm)", s)
}

// ToCentimeters normalizes a value printed in unit u.
func (u Unit) ToCentimeters(v float64) float64 {
	if u == Millimeters {
		return v / 10
	}
	return v
}

// LegacySensorID is the sensor id reported for legacy literal triggers.
const LegacySensorID = "(legacy)"

// Reading is a single parsed distance sample.
type Reading struct {
	SensorID   string
	DistanceCm float64
	Time       time.Time // arrival time at the ingestion side
}

// SensorState tracks smoothing and debounce state for a single sensor.
type SensorState struct {
	ID string
	// Current smoothed distance
	SmoothedCm float64
	// Whether at least one sample has been seen
	HasValue bool
	// Timestamp of the last smoothed sample
	LastSampleTime time.Time
	// Consecutive processed samples that satisfied the trigger condition
	ConsecutiveTrue int

	LastRawCm float64
	Samples   int
}

// Sample is the outcome of smoothing one reading.
type Sample struct {
	SensorID   string
	RawCm      float64
	InputCm    float64 // after the anti-glitch cap
	SmoothedCm float64
	Time       time.Time
}

// Trigger is an accepted presence trigger.
type Trigger struct {
	Time       time.Time
	SensorID   string
	DistanceCm float64 // NaN for legacy triggers
	Legacy     bool
	// Any is set on the first trigger of a tick; only those reach "any" subscribers.
	Any bool
}

// Direction of a discrete level change.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
	DirectionNone Direction = "NONE"
)

// LevelEventType identifies a level controller output.
type LevelEventType string

const (
	EventLevelChanged     LevelEventType = "LEVEL_CHANGED"
	EventLockoutChanged   LevelEventType = "LOCKOUT_CHANGED"
	EventHoldPhaseChanged LevelEventType = "HOLD_PHASE_CHANGED"
	EventHoldAtMax        LevelEventType = "HOLD_AT_MAX"
)

// LevelEvent is emitted by a LevelController.
type LevelEvent struct {
	Timestamp time.Time
	Indicator string
	Type      LevelEventType

	// LEVEL_CHANGED
	Prev      int
	Index     int
	Direction Direction

	// LOCKOUT_CHANGED, HOLD_PHASE_CHANGED
	Active bool

	// Audio cue for the transition, if the level defines one
	Cue string
}

// EventCounts tracks the number of each event since startup.
type EventCounts struct {
	Triggers       int
	LegacyTriggers int
	Suppressed     int
	LevelUps       int
	LevelDowns     int
	Lockouts       int
	ManualPulses   int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
