package logic

import "time"

// Heartbeat decides when a periodic liveness event is due.
type Heartbeat struct {
	startTime     time.Time
	lastHeartbeat time.Time
}

// NewHeartbeat creates a Heartbeat. The startTime is used for calculating uptime.
func NewHeartbeat(startTime time.Time) *Heartbeat {
	return &Heartbeat{
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Check returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not
// elapsed, or if interval is <= 0 (disabled).
func (h *Heartbeat) Check(now time.Time, interval time.Duration, counts EventCounts) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if now.Sub(h.lastHeartbeat) < interval {
		return nil
	}

	h.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(h.startTime),
		Counts:    counts,
	}
}

// Add sums two sets of counters.
func (c EventCounts) Add(o EventCounts) EventCounts {
	return EventCounts{
		Triggers:       c.Triggers + o.Triggers,
		LegacyTriggers: c.LegacyTriggers + o.LegacyTriggers,
		Suppressed:     c.Suppressed + o.Suppressed,
		LevelUps:       c.LevelUps + o.LevelUps,
		LevelDowns:     c.LevelDowns + o.LevelDowns,
		Lockouts:       c.Lockouts + o.Lockouts,
		ManualPulses:   c.ManualPulses + o.ManualPulses,
	}
}
