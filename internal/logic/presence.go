package logic

import "time"

// PresenceGate remembers the most recent presence pulse.
type PresenceGate struct {
	lastPulse time.Time
}

// RegisterPulse records a pulse at now.
func (g *PresenceGate) RegisterPulse(now time.Time) {
	g.lastPulse = now
}

// IsPresent reports whether the last pulse is at most timeout old.
func (g *PresenceGate) IsPresent(now time.Time, timeout time.Duration) bool {
	if g.lastPulse.IsZero() {
		return false
	}
	return now.Sub(g.lastPulse) <= timeout
}

// LastPulse returns the time of the last pulse (zero if none).
func (g *PresenceGate) LastPulse() time.Time {
	return g.lastPulse
}
