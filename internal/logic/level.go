package logic

import (
	"fmt"
	"math"
	"time"
)

// LevelDef describes one discrete level of an indicator and the audio cues
// played when it is entered.
type LevelDef struct {
	Label        string `yaml:"label"`
	EnterUpCue   string `yaml:"enter_up_cue"`
	EnterDownCue string `yaml:"enter_down_cue"`
	HoldAtMaxCue string `yaml:"hold_at_max_cue"`
}

// DefaultLevels returns maxIndex+1 levels labelled "0".."maxIndex" with no cues.
// A negative maxIndex yields no levels.
func DefaultLevels(maxIndex int) []LevelDef {
	if maxIndex < 0 {
		return nil
	}
	levels := make([]LevelDef, maxIndex+1)
	for i := range levels {
		levels[i].Label = fmt.Sprint(i)
	}
	return levels
}

// LevelConfig configures one LevelController.
type LevelConfig struct {
	Name string
	// Levels in ascending order. Empty levels make the controller inert.
	Levels []LevelDef
	// PresenceTimeout is how long a pulse keeps presence active.
	PresenceTimeout time.Duration
	// HoldAtMax is how long the level stays pinned at max once reached.
	HoldAtMax time.Duration
	// FillSpeed and DrainSpeed are in levels per second.
	FillSpeed  float64
	DrainSpeed float64
}

// MaxIndex returns the highest level index, or -1 without levels.
func (c LevelConfig) MaxIndex() int {
	return len(c.Levels) - 1
}

// LevelState is a point-in-time view of a controller.
type LevelState struct {
	Name      string
	Level     float64
	Index     int
	MaxIndex  int
	Lockout   bool
	HoldPhase bool
	HoldUntil time.Time
	Present   bool
	LastPulse time.Time
}

// LevelController turns presence pulses into a ramped level with a
// hold-at-max phase and a lockout that drains to zero before accepting input again.
// Not safe for concurrent use; owned by the processing goroutine.
type LevelController struct {
	cfg         LevelConfig
	src         TriggerSource
	unsubscribe func()

	gate        PresenceGate
	level       float64
	lockout     bool
	holdPhase   bool
	holdUntil   time.Time
	lastApplied int
	present     bool

	lastTick time.Time
	ticked   bool
	counts   EventCounts
}

// NewLevelController creates a controller at level 0. src may be nil when
// pulses are only registered manually.
func NewLevelController(cfg LevelConfig, src TriggerSource) *LevelController {
	return &LevelController{
		cfg:         cfg,
		src:         src,
		lastApplied: -1,
	}
}

// Name returns the configured indicator name.
func (c *LevelController) Name() string {
	return c.cfg.Name
}

// Enable subscribes to the trigger source and applies the current level.
func (c *LevelController) Enable(now time.Time) []LevelEvent {
	if c.src != nil && c.unsubscribe == nil {
		c.unsubscribe = c.src.SubscribeAny(func(t Trigger) {
			c.RegisterPresencePulse(t.Time)
		})
	}
	if !c.valid() {
		return nil
	}
	return c.apply(now, false, nil)
}

// Disable unsubscribes from the trigger source.
func (c *LevelController) Disable() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

// RegisterPresencePulse marks presence at now. Pulses are ignored during lockout.
func (c *LevelController) RegisterPresencePulse(now time.Time) bool {
	if c.lockout {
		return false
	}
	c.gate.RegisterPulse(now)
	return true
}

// Tick advances the state machine to now and returns the resulting events.
func (c *LevelController) Tick(now time.Time) []LevelEvent {
	if !c.valid() {
		return nil
	}

	dt := 0.0
	if c.ticked {
		dt = math.Max(0, now.Sub(c.lastTick).Seconds())
	}
	c.lastTick = now
	c.ticked = true

	maxLevel := float64(c.cfg.MaxIndex())
	var events []LevelEvent

	if c.lockout {
		c.present = false
		if now.Before(c.holdUntil) {
			c.level = maxLevel
			return c.apply(now, false, events)
		}

		if c.holdPhase {
			c.holdPhase = false
			events = append(events, c.event(now, EventHoldPhaseChanged, false))
		}

		c.level = math.Max(0, c.level-c.cfg.DrainSpeed*dt)
		events = c.apply(now, false, events)
		if c.level <= 0 {
			c.lockout = false
			events = append(events, c.event(now, EventLockoutChanged, false))
		}
		return events
	}

	c.present = c.gate.IsPresent(now, c.cfg.PresenceTimeout)
	if c.present {
		if c.level < maxLevel {
			c.level = math.Min(maxLevel, c.level+c.cfg.FillSpeed*dt)
			events = c.apply(now, false, events)
		}
		// Reached max, or already there without being in lockout
		if c.level >= maxLevel {
			events = c.enterHold(now, events)
		}
		return events
	}

	if c.level > 0 {
		c.level = math.Max(0, c.level-c.cfg.DrainSpeed*dt)
	}
	return c.apply(now, false, events)
}

// SetLevelInstant jumps to index without ramping and always re-applies it.
func (c *LevelController) SetLevelInstant(index int, now time.Time) []LevelEvent {
	if !c.valid() {
		return nil
	}
	c.level = float64(clampIndex(index, c.cfg.MaxIndex()))
	return c.apply(now, true, nil)
}

func (c *LevelController) enterHold(now time.Time, events []LevelEvent) []LevelEvent {
	if c.lockout {
		return events
	}
	c.lockout = true
	c.holdPhase = true
	c.holdUntil = now.Add(c.cfg.HoldAtMax)
	c.counts.Lockouts++

	hold := c.event(now, EventHoldAtMax, true)
	hold.Index = c.cfg.MaxIndex()
	hold.Cue = c.cfg.Levels[c.cfg.MaxIndex()].HoldAtMaxCue

	return append(events,
		c.event(now, EventLockoutChanged, true),
		c.event(now, EventHoldPhaseChanged, true),
		hold,
	)
}

// apply projects the continuous level onto a discrete index and reports a
// change once per index, or on every call when forced.
func (c *LevelController) apply(now time.Time, force bool, events []LevelEvent) []LevelEvent {
	idx := c.Index()
	if !force && idx == c.lastApplied {
		return events
	}

	prev := c.lastApplied
	e := c.event(now, EventLevelChanged, false)
	e.Prev = prev
	e.Index = idx
	e.Direction = DirectionNone
	def := c.cfg.Levels[idx]
	switch {
	case idx > prev:
		e.Direction = DirectionUp
		e.Cue = def.EnterUpCue
		c.counts.LevelUps++
	case idx < prev:
		e.Direction = DirectionDown
		e.Cue = def.EnterDownCue
		c.counts.LevelDowns++
	}

	c.lastApplied = idx
	return append(events, e)
}

func (c *LevelController) event(now time.Time, typ LevelEventType, active bool) LevelEvent {
	return LevelEvent{
		Timestamp: now,
		Indicator: c.cfg.Name,
		Type:      typ,
		Active:    active,
	}
}

func (c *LevelController) valid() bool {
	return len(c.cfg.Levels) > 0
}

// Index returns round(clamp(level)). Halves round to even.
func (c *LevelController) Index() int {
	return clampIndex(int(math.RoundToEven(c.level)), c.cfg.MaxIndex())
}

// Level returns the continuous level.
func (c *LevelController) Level() float64 {
	return c.level
}

// IsLockout reports whether the controller ignores presence.
func (c *LevelController) IsLockout() bool {
	return c.lockout
}

// IsHoldPhase reports whether the level is pinned at max.
func (c *LevelController) IsHoldPhase() bool {
	return c.holdPhase
}

// Counts returns level event counters since startup.
func (c *LevelController) Counts() EventCounts {
	return c.counts
}

// State returns a snapshot of the controller.
func (c *LevelController) State() LevelState {
	return LevelState{
		Name:      c.cfg.Name,
		Level:     c.level,
		Index:     c.Index(),
		MaxIndex:  c.cfg.MaxIndex(),
		Lockout:   c.lockout,
		HoldPhase: c.holdPhase,
		HoldUntil: c.holdUntil,
		Present:   c.present,
		LastPulse: c.gate.LastPulse(),
	}
}

func clampIndex(i, maxIndex int) int {
	if i < 0 {
		return 0
	}
	if i > maxIndex {
		return maxIndex
	}
	return i
}
