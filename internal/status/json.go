package status

import (
	"encoding/json"
	"math"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event          string          `json:"event,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	UptimeSeconds  int64           `json:"uptime_seconds"`
	StartTime      string          `json:"start_time"`
	Timestamp      string          `json:"timestamp"`
	Source         SourceJSON      `json:"source"`
	MQTT           MQTTStatus      `json:"mqtt"`
	Counts         CountsJSON      `json:"event_counts"`
	Sensors        []SensorJSON    `json:"sensors"`
	Indicators     []IndicatorJSON `json:"indicators"`
	RecentTriggers []TriggerJSON   `json:"recent_triggers,omitempty"`
	Config         ConfigJSON      `json:"config"`
}

// SourceJSON reports the line source.
type SourceJSON struct {
	Kind  string `json:"kind"`
	Open  bool   `json:"open"`
	Error string `json:"error,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Triggers       int `json:"triggers"`
	LegacyTriggers int `json:"legacy_triggers"`
	Suppressed     int `json:"suppressed"`
	LevelUps       int `json:"level_ups"`
	LevelDowns     int `json:"level_downs"`
	Lockouts       int `json:"lockouts"`
	ManualPulses   int `json:"manual_pulses"`
}

// SensorJSON is one sensor's smoothing state.
type SensorJSON struct {
	ID         string  `json:"id"`
	SmoothedCm float64 `json:"smoothed_cm"`
	LastRawCm  float64 `json:"last_raw_cm"`
	Samples    int     `json:"samples"`
	Streak     int     `json:"streak"`
	LastSample string  `json:"last_sample"`
}

// IndicatorJSON is one level controller's state.
type IndicatorJSON struct {
	Name      string  `json:"name"`
	Level     float64 `json:"level"`
	Index     int     `json:"index"`
	MaxIndex  int     `json:"max_index"`
	Present   bool    `json:"present"`
	Lockout   bool    `json:"lockout"`
	HoldPhase bool    `json:"hold_phase"`
	HoldUntil string  `json:"hold_until,omitempty"`
	LastPulse string  `json:"last_pulse,omitempty"`
}

// TriggerJSON is one recent trigger.
type TriggerJSON struct {
	Timestamp  string   `json:"timestamp"`
	Sensor     string   `json:"sensor"`
	DistanceCm *float64 `json:"distance_cm,omitempty"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Source            string  `json:"source"`
	TickMs            int64   `json:"tick_ms"`
	ThresholdCm       float64 `json:"threshold_cm"`
	LessThan          bool    `json:"less_than"`
	CooldownMs        int64   `json:"cooldown_ms"`
	SmoothingMs       int64   `json:"smoothing_ms"`
	MinConsecutive    int     `json:"min_consecutive"`
	PresenceTimeoutMs int64   `json:"presence_timeout_ms"`
	HeartbeatMs       int64   `json:"heartbeat_ms"`
	Broker            string  `json:"broker"`
	TopicPrefix       string  `json:"topic_prefix"`
	HTTPAddr          string  `json:"http_addr"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func formatOptionalTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Source:        SourceJSON{Kind: snap.Source.Kind, Open: snap.Source.Open, Error: snap.Source.Error},
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Triggers:       snap.Counts.Triggers,
			LegacyTriggers: snap.Counts.LegacyTriggers,
			Suppressed:     snap.Counts.Suppressed,
			LevelUps:       snap.Counts.LevelUps,
			LevelDowns:     snap.Counts.LevelDowns,
			Lockouts:       snap.Counts.Lockouts,
			ManualPulses:   snap.Counts.ManualPulses,
		},
		Sensors:    make([]SensorJSON, 0, len(snap.Sensors)),
		Indicators: make([]IndicatorJSON, 0, len(snap.Indicators)),
		Config: ConfigJSON{
			Source:            snap.Config.Source,
			TickMs:            snap.Config.TickMs,
			ThresholdCm:       snap.Config.ThresholdCm,
			LessThan:          snap.Config.LessThan,
			CooldownMs:        snap.Config.CooldownMs,
			SmoothingMs:       snap.Config.SmoothingMs,
			MinConsecutive:    snap.Config.MinConsecutive,
			PresenceTimeoutMs: snap.Config.PresenceTimeout,
			HeartbeatMs:       snap.Config.HeartbeatMs,
			Broker:            snap.Config.Broker,
			TopicPrefix:       snap.Config.TopicPrefix,
			HTTPAddr:          snap.Config.HTTPAddr,
		},
	}

	for _, s := range snap.Sensors {
		inner.Sensors = append(inner.Sensors, SensorJSON{
			ID:         s.ID,
			SmoothedCm: round2(s.SmoothedCm),
			LastRawCm:  round2(s.LastRawCm),
			Samples:    s.Samples,
			Streak:     s.ConsecutiveTrue,
			LastSample: formatOptionalTime(s.LastSampleTime),
		})
	}
	for _, l := range snap.Indicators {
		ij := IndicatorJSON{
			Name:      l.Name,
			Level:     round2(l.Level),
			Index:     l.Index,
			MaxIndex:  l.MaxIndex,
			Present:   l.Present,
			Lockout:   l.Lockout,
			HoldPhase: l.HoldPhase,
			LastPulse: formatOptionalTime(l.LastPulse),
		}
		if l.HoldPhase {
			ij.HoldUntil = formatOptionalTime(l.HoldUntil)
		}
		inner.Indicators = append(inner.Indicators, ij)
	}
	for _, t := range snap.RecentTriggers {
		tj := TriggerJSON{Timestamp: formatOptionalTime(t.Time), Sensor: t.SensorID}
		if !t.Legacy && !math.IsNaN(t.DistanceCm) {
			d := round2(t.DistanceCm)
			tj.DistanceCm = &d
		}
		inner.RecentTriggers = append(inner.RecentTriggers, tj)
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
// Recent triggers are left out to keep retained messages small.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	inner.RecentTriggers = nil

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
