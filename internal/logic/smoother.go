package logic

import (
	"math"
	"sort"
	"strings"
	"time"
)

// minSmoothingStep bounds dt and tau away from zero.
const minSmoothingStep = 100 * time.Microsecond

// SmootherConfig configures per-sensor smoothing.
type SmootherConfig struct {
	// Smoothing is the EMA time constant. Values at or below 100µs disable smoothing.
	Smoothing time.Duration
	// MaxStepPerSampleCm caps the per-sample jump before smoothing. 0 = no cap.
	MaxStepPerSampleCm float64
}

// Smoother keeps one time-based exponential moving average per sensor.
// Sensor ids are matched case-insensitively; the first spelling seen is kept.
type Smoother struct {
	cfg     SmootherConfig
	sensors map[string]*SensorState
}

// NewSmoother creates an empty Smoother.
func NewSmoother(cfg SmootherConfig) *Smoother {
	return &Smoother{
		cfg:     cfg,
		sensors: make(map[string]*SensorState),
	}
}

// Update feeds a raw sample taken at t and returns the smoothed result.
func (sm *Smoother) Update(sensorID string, rawCm float64, t time.Time) Sample {
	s := sm.state(sensorID)

	// Anti-glitch: cap the jump before smoothing
	input := rawCm
	if s.HasValue && sm.cfg.MaxStepPerSampleCm > 0 {
		delta := input - s.SmoothedCm
		if math.Abs(delta) > sm.cfg.MaxStepPerSampleCm {
			input = s.SmoothedCm + math.Copysign(sm.cfg.MaxStepPerSampleCm, delta)
		}
	}

	if s.HasValue {
		next := s.SmoothedCm + alpha(t.Sub(s.LastSampleTime), sm.cfg.Smoothing)*(input-s.SmoothedCm)
		if math.IsNaN(next) || math.IsInf(next, 0) {
			// Overflowed; restart from the input
			next = input
		}
		s.SmoothedCm = next
	} else {
		s.SmoothedCm = input
	}
	s.LastSampleTime = t
	s.HasValue = true
	s.LastRawCm = rawCm
	s.Samples++

	return Sample{
		SensorID:   s.ID,
		RawCm:      rawCm,
		InputCm:    input,
		SmoothedCm: s.SmoothedCm,
		Time:       t,
	}
}

// alpha returns 1 - exp(-dt/tau), or 1 when smoothing is disabled.
func alpha(dt, tau time.Duration) float64 {
	if tau <= minSmoothingStep {
		return 1
	}
	if dt < minSmoothingStep {
		dt = minSmoothingStep
	}
	return 1 - math.Exp(-dt.Seconds()/tau.Seconds())
}

func (sm *Smoother) state(sensorID string) *SensorState {
	key := strings.ToLower(sensorID)
	s, ok := sm.sensors[key]
	if !ok {
		s = &SensorState{ID: sensorID}
		sm.sensors[key] = s
	}
	return s
}

// Lookup returns the state for a sensor, if it has been seen.
func (sm *Smoother) Lookup(sensorID string) (*SensorState, bool) {
	s, ok := sm.sensors[strings.ToLower(sensorID)]
	return s, ok
}

// Smoothed returns the smoothed distance of a sensor that has a value.
func (sm *Smoother) Smoothed(sensorID string) (float64, bool) {
	s, ok := sm.Lookup(sensorID)
	if !ok || !s.HasValue {
		return 0, false
	}
	return s.SmoothedCm, true
}

// AverageSmoothed returns the mean smoothed distance over all sensors with a value.
func (sm *Smoother) AverageSmoothed() (float64, bool) {
	var sum float64
	var n int
	for _, s := range sm.sensors {
		if s.HasValue {
			sum += s.SmoothedCm
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// States returns copies of all sensor states ordered by id.
func (sm *Smoother) States() []SensorState {
	out := make([]SensorState, 0, len(sm.sensors))
	for _, s := range sm.sensors {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].ID) < strings.ToLower(out[j].ID)
	})
	return out
}
