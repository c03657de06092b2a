// Package indicator renders level controllers for people: a blinking output
// during the hold phase, lipgloss battery bars and a bubbletea live monitor.
package indicator

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sweeney/presence-meter/internal/gpio"
	"github.com/sweeney/presence-meter/internal/logic"
)

// Blinker toggles an output while an indicator is in its hold phase.
// The output flips every half period and is switched off on Stop.
type Blinker struct {
	indicator string
	half      time.Duration // 0 = steady on
	out       func(on bool)

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewBlinker creates a stopped Blinker for one indicator ("" follows every
// indicator). hz <= 0 keeps the output steadily on instead of blinking.
func NewBlinker(indicator string, hz float64, out func(on bool)) *Blinker {
	b := &Blinker{indicator: indicator, out: out}
	if hz > 0 {
		b.half = time.Duration(0.5 / hz * float64(time.Second))
	}
	return b
}

// Handle starts or stops blinking on HOLD_PHASE_CHANGED events for this indicator.
func (b *Blinker) Handle(ev logic.LevelEvent) {
	if ev.Type != logic.EventHoldPhaseChanged {
		return
	}
	if b.indicator != "" && !strings.EqualFold(b.indicator, ev.Indicator) {
		return
	}
	if ev.Active {
		b.Start()
	} else {
		b.Stop()
	}
}

// Start begins blinking. It does nothing if already running.
func (b *Blinker) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stop != nil {
		return
	}
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	go b.run(b.stop, b.done)
}

// Stop ends blinking and waits until the output is off.
func (b *Blinker) Stop() {
	b.mu.Lock()
	stop, done := b.stop, b.done
	b.stop, b.done = nil, nil
	b.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Running reports whether the blink goroutine is active.
func (b *Blinker) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stop != nil
}

func (b *Blinker) run(stop, done chan struct{}) {
	defer close(done)
	defer b.out(false)

	if b.half <= 0 {
		b.out(true)
		<-stop
		return
	}

	ticker := time.NewTicker(b.half)
	defer ticker.Stop()

	on := false
	for {
		on = !on
		b.out(on)
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// LEDOutput adapts a GPIO LED to a Blinker output. Failures are logged.
func LEDOutput(led gpio.LED, logger *slog.Logger) func(on bool) {
	return func(on bool) {
		if err := led.Set(on); err != nil {
			logger.Warn("failed to set hold LED", "on", on, "error", err)
		}
	}
}
