package indicator

import (
	"sync"

	"github.com/sweeney/presence-meter/internal/logic"
	"github.com/sweeney/presence-meter/internal/pipeline"
)

// maxMonitorTriggers bounds the trigger list shown in the terminal.
const maxMonitorTriggers = 8

// View is a copy of the state the terminal monitor draws.
type View struct {
	Levels   []logic.LevelState
	Sensors  []logic.SensorState
	Triggers []logic.Trigger
	Counts   logic.EventCounts
	Blink    map[string]bool
}

// Monitor collects engine output for the terminal view. Observe is called on
// the processing goroutine; Snapshot from the UI goroutine.
type Monitor struct {
	blinkHz float64

	mu       sync.Mutex
	view     View
	blinkers map[string]*Blinker
}

// NewMonitor creates an empty Monitor whose hold-phase blinkers run at blinkHz.
func NewMonitor(blinkHz float64) *Monitor {
	return &Monitor{
		blinkHz:  blinkHz,
		view:     View{Blink: make(map[string]bool)},
		blinkers: make(map[string]*Blinker),
	}
}

// Observe records one engine step together with the resulting state.
func (m *Monitor) Observe(step pipeline.Step, levels []logic.LevelState, sensors []logic.SensorState, counts logic.EventCounts) {
	m.mu.Lock()
	m.view.Levels = levels
	m.view.Sensors = sensors
	m.view.Counts = counts
	if len(step.Triggers) > 0 {
		recent := append(append([]logic.Trigger(nil), m.view.Triggers...), step.Triggers...)
		if len(recent) > maxMonitorTriggers {
			recent = recent[len(recent)-maxMonitorTriggers:]
		}
		m.view.Triggers = recent
	}
	m.mu.Unlock()

	for _, ev := range step.Levels {
		if ev.Type == logic.EventHoldPhaseChanged {
			m.blinker(ev.Indicator).Handle(ev)
		}
	}
}

func (m *Monitor) blinker(name string) *Blinker {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blinkers[name]
	if !ok {
		b = NewBlinker(name, m.blinkHz, func(on bool) {
			m.mu.Lock()
			m.view.Blink[name] = on
			m.mu.Unlock()
		})
		m.blinkers[name] = b
	}
	return b
}

// Snapshot returns a copy of the current view.
func (m *Monitor) Snapshot() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.view
	v.Triggers = append([]logic.Trigger(nil), m.view.Triggers...)
	v.Blink = make(map[string]bool, len(m.view.Blink))
	for k, on := range m.view.Blink {
		v.Blink[k] = on
	}
	return v
}

// Close stops every blinker.
func (m *Monitor) Close() {
	m.mu.Lock()
	blinkers := make([]*Blinker, 0, len(m.blinkers))
	for _, b := range m.blinkers {
		blinkers = append(blinkers, b)
	}
	m.mu.Unlock()

	for _, b := range blinkers {
		b.Stop()
	}
}
