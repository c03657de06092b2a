package logic

import "time"

// ManualPulser turns a push button into presence pulses.
// With HoldToRepeat a held button pulses every RepeatInterval; otherwise
// only the press edge pulses.
type ManualPulser struct {
	HoldToRepeat   bool
	RepeatInterval time.Duration

	wasPressed  bool
	nextPulseAt time.Time
}

// Process takes the current button state and reports whether to pulse.
func (m *ManualPulser) Process(pressed bool, now time.Time) bool {
	defer func() { m.wasPressed = pressed }()

	if !m.HoldToRepeat {
		return pressed && !m.wasPressed
	}

	if !pressed {
		// next hold fires immediately
		m.nextPulseAt = time.Time{}
		return false
	}
	if now.Before(m.nextPulseAt) {
		return false
	}
	m.nextPulseAt = now.Add(m.RepeatInterval)
	return true
}
