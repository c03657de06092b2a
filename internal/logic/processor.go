package logic

import "time"

// ProcessorConfig bundles smoothing and trigger settings.
type ProcessorConfig struct {
	Smoother SmootherConfig
	Trigger  TriggerConfig
}

// Processor is the sensor stream processor: it smooths readings, evaluates
// triggers and publishes accepted ones to its subscribers.
// Not safe for concurrent use; it is owned by the processing goroutine.
// Subscriptions may be added or removed from any goroutine.
type Processor struct {
	smoother *Smoother
	trigger  *TriggerEvaluator
	hub      TriggerHub

	anyClaimedAt time.Time
	anyClaimed   bool
	counts       EventCounts
}

// NewProcessor creates a Processor with no sensor state.
func NewProcessor(cfg ProcessorConfig) *Processor {
	return &Processor{
		smoother: NewSmoother(cfg.Smoother),
		trigger:  NewTriggerEvaluator(cfg.Trigger),
	}
}

// SubscribeAny implements TriggerSource.
func (p *Processor) SubscribeAny(fn func(Trigger)) func() {
	return p.hub.SubscribeAny(fn)
}

// SubscribeSensor implements TriggerSource.
func (p *Processor) SubscribeSensor(sensorID string, fn func(Trigger)) func() {
	return p.hub.SubscribeSensor(sensorID, fn)
}

// Subscribers returns the number of active subscriptions.
func (p *Processor) Subscribers() int {
	return p.hub.Len()
}

// Process smooths one reading and evaluates it against the trigger at now.
// The returned trigger is nil unless one fired.
func (p *Processor) Process(r Reading, now time.Time) (Sample, *Trigger) {
	sample := p.smoother.Update(r.SensorID, r.DistanceCm, r.Time)
	state, _ := p.smoother.Lookup(r.SensorID)

	switch p.trigger.Evaluate(state, sample.SmoothedCm, now) {
	case Fired:
		t := Trigger{
			Time:       now,
			SensorID:   sample.SensorID,
			DistanceCm: sample.SmoothedCm,
			Any:        p.claimAny(now),
		}
		p.counts.Triggers++
		p.hub.Publish(t)
		return sample, &t
	case Suppressed:
		p.counts.Suppressed++
	}
	return sample, nil
}

// ProcessLegacy handles a legacy literal line. It only has to pass the global cooldown.
func (p *Processor) ProcessLegacy(now time.Time) *Trigger {
	if p.trigger.EvaluateLegacy(now) != Fired {
		p.counts.Suppressed++
		return nil
	}
	t := Trigger{
		Time:       now,
		SensorID:   LegacySensorID,
		DistanceCm: legacyDistance,
		Legacy:     true,
		Any:        p.claimAny(now),
	}
	p.counts.LegacyTriggers++
	p.hub.Publish(t)
	return &t
}

// claimAny returns true for the first trigger observed at a given tick time.
func (p *Processor) claimAny(now time.Time) bool {
	if p.anyClaimed && p.anyClaimedAt.Equal(now) {
		return false
	}
	p.anyClaimed = true
	p.anyClaimedAt = now
	return true
}

// Smoothed returns the current smoothed distance of a sensor.
func (p *Processor) Smoothed(sensorID string) (float64, bool) {
	return p.smoother.Smoothed(sensorID)
}

// AverageSmoothed returns the mean smoothed distance across sensors.
func (p *Processor) AverageSmoothed() (float64, bool) {
	return p.smoother.AverageSmoothed()
}

// Sensors returns a copy of every sensor's state.
func (p *Processor) Sensors() []SensorState {
	return p.smoother.States()
}

// Counts returns trigger counters since startup.
func (p *Processor) Counts() EventCounts {
	return p.counts
}
