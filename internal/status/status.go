// Package status provides a thread-safe status tracker for the presence-meter daemon.
// It is written by the processing loop and read by HTTP handlers and MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/presence-meter/internal/logic"
)

// maxRecentTriggers bounds the trigger history kept for display.
const maxRecentTriggers = 20

// Config contains daemon configuration for display.
type Config struct {
	Source          string
	TickMs          int64
	ThresholdCm     float64
	LessThan        bool
	CooldownMs      int64
	SmoothingMs     int64
	MinConsecutive  int
	PresenceTimeout int64 // ms
	HeartbeatMs     int64
	Broker          string
	TopicPrefix     string
	HTTPAddr        string
}

// SourceState reports the line source.
type SourceState struct {
	Kind  string
	Open  bool
	Error string // open or read failure, if any
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type; safe to use after the lock is released.
type Snapshot struct {
	Sensors        []logic.SensorState
	Indicators     []logic.LevelState
	RecentTriggers []logic.Trigger // newest last
	Counts         logic.EventCounts
	Source         SourceState
	StartTime      time.Time
	Now            time.Time
	MQTTConnected  bool
	Config         Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
			Source:    SourceState{Kind: cfg.Source},
		},
		now: time.Now,
	}
}

// Update replaces sensor and indicator state and counters.
// Called from runLoop on every tick. The slices must not be modified afterwards.
func (t *Tracker) Update(sensors []logic.SensorState, indicators []logic.LevelState, counts logic.EventCounts) {
	t.mu.Lock()
	t.snap.Sensors = sensors
	t.snap.Indicators = indicators
	t.snap.Counts = counts
	t.mu.Unlock()
}

// RecordTriggers appends accepted triggers to the bounded history.
func (t *Tracker) RecordTriggers(triggers []logic.Trigger) {
	if len(triggers) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	recent := append(append([]logic.Trigger(nil), t.snap.RecentTriggers...), triggers...)
	if len(recent) > maxRecentTriggers {
		recent = recent[len(recent)-maxRecentTriggers:]
	}
	t.snap.RecentTriggers = recent
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetSource records whether the line source is open and why not.
func (t *Tracker) SetSource(open bool, err error) {
	t.mu.Lock()
	t.snap.Source.Open = open
	t.snap.Source.Error = ""
	if err != nil {
		t.snap.Source.Error = err.Error()
	}
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
