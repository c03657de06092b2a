package pipeline

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sweeney/presence-meter/internal/logic"
)

// EngineConfig holds debug switches for the processing goroutine.
type EngineConfig struct {
	// LogTriggers logs every accepted trigger at info level.
	LogTriggers bool
	// LogPerSensor logs raw, capped and smoothed values of every sample at debug level.
	LogPerSensor bool
}

// Step is everything that happened during one tick.
type Step struct {
	Time     time.Time
	Samples  []logic.Sample
	Triggers []logic.Trigger
	Levels   []logic.LevelEvent
	Pulses   int
	Failed   int // items that panicked or were rejected
}

// Engine is the processing context. It owns the Processor and the level
// controllers; only Subscribe is safe to call from other goroutines.
type Engine struct {
	queue       *Queue
	processor   *logic.Processor
	controllers []*logic.LevelController
	cfg         EngineConfig
	logger      *slog.Logger

	mu     sync.Mutex
	nextID uint64
	subs   []stepSub

	manualPulses int
	started      bool
}

type stepSub struct {
	id uint64
	fn func(Step)
}

// NewEngine wires controllers to p. Controllers should have been created with p as their source.
func NewEngine(q *Queue, p *logic.Processor, controllers []*logic.LevelController, cfg EngineConfig, logger *slog.Logger) *Engine {
	return &Engine{
		queue:       q,
		processor:   p,
		controllers: controllers,
		cfg:         cfg,
		logger:      logger,
	}
}

// Start enables every controller and publishes the initial level of each.
func (e *Engine) Start(now time.Time) Step {
	step := Step{Time: now}
	if e.started {
		return step
	}
	e.started = true
	for _, c := range e.controllers {
		step.Levels = append(step.Levels, c.Enable(now)...)
	}
	e.fanOut(step)
	return step
}

// Stop unsubscribes every controller from the processor.
func (e *Engine) Stop() {
	for _, c := range e.controllers {
		c.Disable()
	}
	e.started = false
}

// Step drains the queue in arrival order, then ticks each controller once.
// A failing item is logged and skipped.
func (e *Engine) Step(now time.Time) Step {
	step := Step{Time: now}

	for _, item := range e.queue.Drain() {
		if err := e.process(item, now, &step); err != nil {
			step.Failed++
			e.logger.Warn("dropping queued item", "kind", item.Kind, "origin", item.Origin, "error", err)
		}
	}

	for _, c := range e.controllers {
		step.Levels = append(step.Levels, c.Tick(now)...)
	}

	e.fanOut(step)
	return step
}

func (e *Engine) process(item Item, now time.Time, step *Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	switch item.Kind {
	case ItemReading:
		sample, trig := e.processor.Process(item.Reading, now)
		step.Samples = append(step.Samples, sample)
		if e.cfg.LogPerSensor {
			e.logger.Debug("sample", "sensor", sample.SensorID, "raw_cm", sample.RawCm,
				"input_cm", sample.InputCm, "smoothed_cm", sample.SmoothedCm)
		}
		if trig != nil {
			e.addTrigger(step, *trig)
		}
	case ItemLegacy:
		if trig := e.processor.ProcessLegacy(now); trig != nil {
			e.addTrigger(step, *trig)
		}
	case ItemPulse:
		e.manualPulses++
		step.Pulses++
		for _, c := range e.controllers {
			c.RegisterPresencePulse(now)
		}
	case ItemSetLevel:
		matched := false
		for _, c := range e.controllers {
			if item.Indicator == "" || strings.EqualFold(item.Indicator, c.Name()) {
				matched = true
				step.Levels = append(step.Levels, c.SetLevelInstant(item.Index, now)...)
			}
		}
		if !matched {
			return fmt.Errorf("unknown indicator %q", item.Indicator)
		}
	default:
		return fmt.Errorf("unknown item kind %d", item.Kind)
	}
	return nil
}

func (e *Engine) addTrigger(step *Step, t logic.Trigger) {
	step.Triggers = append(step.Triggers, t)
	if e.cfg.LogTriggers {
		e.logger.Info("trigger", "sensor", t.SensorID, "distance_cm", t.DistanceCm, "legacy", t.Legacy, "any", t.Any)
	}
}

// Subscribe registers fn to receive every Step on the processing goroutine.
// fn must not block.
func (e *Engine) Subscribe(fn func(Step)) (unsubscribe func()) {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.subs = append(e.subs, stepSub{id: id, fn: fn})
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			for i, s := range e.subs {
				if s.id == id {
					e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (e *Engine) fanOut(step Step) {
	e.mu.Lock()
	subs := make([]stepSub, len(e.subs))
	copy(subs, e.subs)
	e.mu.Unlock()

	for _, s := range subs {
		s.fn(step)
	}
}

// Counts sums trigger, level and manual pulse counters.
func (e *Engine) Counts() logic.EventCounts {
	counts := e.processor.Counts()
	for _, c := range e.controllers {
		counts = counts.Add(c.Counts())
	}
	counts.ManualPulses += e.manualPulses
	return counts
}

// Levels returns the state of every controller in configuration order.
func (e *Engine) Levels() []logic.LevelState {
	states := make([]logic.LevelState, len(e.controllers))
	for i, c := range e.controllers {
		states[i] = c.State()
	}
	return states
}

// Sensors returns the state of every sensor seen so far.
func (e *Engine) Sensors() []logic.SensorState {
	return e.processor.Sensors()
}

// AverageSmoothed returns the mean smoothed distance across sensors.
func (e *Engine) AverageSmoothed() (float64, bool) {
	return e.processor.AverageSmoothed()
}
