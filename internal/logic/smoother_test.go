package logic

import (
	"math"
	"testing"
	"time"
)

func TestSmootherFirstSamplePassesThrough(t *testing.T) {
	sm := NewSmoother(SmootherConfig{Smoothing: 250 * time.Millisecond})
	s := sm.Update("A", 80, parseTime)
	if s.SmoothedCm != 80 {
		t.Errorf("expected first sample to pass through, got %v", s.SmoothedCm)
	}
}

func TestSmootherDisabledPassesThrough(t *testing.T) {
	sm := NewSmoother(SmootherConfig{Smoothing: 0})
	sm.Update("A", 80, parseTime)
	s := sm.Update("A", 20, parseTime.Add(10*time.Millisecond))
	if s.SmoothedCm != 20 {
		t.Errorf("expected no smoothing with tau=0, got %v", s.SmoothedCm)
	}
}

func TestSmootherTimeBasedAlpha(t *testing.T) {
	tau := 250 * time.Millisecond
	sm := NewSmoother(SmootherConfig{Smoothing: tau})
	sm.Update("A", 100, parseTime)

	s := sm.Update("A", 0, parseTime.Add(tau))
	want := 100 * math.Exp(-1)
	if math.Abs(s.SmoothedCm-want) > 1e-9 {
		t.Errorf("after one tau: got %v, want %v", s.SmoothedCm, want)
	}
}

func TestSmootherRateIndependent(t *testing.T) {
	// Two 50ms steps must land where one 100ms step lands.
	tau := 200 * time.Millisecond
	fast := NewSmoother(SmootherConfig{Smoothing: tau})
	slow := NewSmoother(SmootherConfig{Smoothing: tau})

	fast.Update("A", 100, parseTime)
	slow.Update("A", 100, parseTime)

	fast.Update("A", 0, parseTime.Add(50*time.Millisecond))
	f := fast.Update("A", 0, parseTime.Add(100*time.Millisecond))
	s := slow.Update("A", 0, parseTime.Add(100*time.Millisecond))

	if math.Abs(f.SmoothedCm-s.SmoothedCm) > 1e-9 {
		t.Errorf("expected cadence independence, got %v vs %v", f.SmoothedCm, s.SmoothedCm)
	}
}

func TestSmootherZeroDtIsTiny(t *testing.T) {
	sm := NewSmoother(SmootherConfig{Smoothing: 250 * time.Millisecond})
	sm.Update("A", 100, parseTime)
	s := sm.Update("A", 0, parseTime)
	// dt is clamped to 100µs, so the value barely moves
	if s.SmoothedCm < 99.9 || s.SmoothedCm >= 100 {
		t.Errorf("expected a tiny step for dt=0, got %v", s.SmoothedCm)
	}
}

func TestSmootherConvexCombination(t *testing.T) {
	inputs := []float64{50, 120, 10, 75, 300, 42, 42, 5, 180}
	sm := NewSmoother(SmootherConfig{Smoothing: 300 * time.Millisecond})

	lo, hi := math.Inf(1), math.Inf(-1)
	for i, v := range inputs {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		s := sm.Update("A", v, parseTime.Add(time.Duration(i*37)*time.Millisecond))
		if s.SmoothedCm < lo-1e-9 || s.SmoothedCm > hi+1e-9 {
			t.Errorf("sample %d: smoothed %v outside [%v, %v]", i, s.SmoothedCm, lo, hi)
		}
	}
}

func TestSmootherAntiGlitchCap(t *testing.T) {
	const capCm = 5.0
	sm := NewSmoother(SmootherConfig{Smoothing: 0, MaxStepPerSampleCm: capCm})
	sm.Update("A", 100, parseTime)

	inputs := []float64{0, 1000, -500, 100, 99}
	prev := 100.0
	for i, v := range inputs {
		s := sm.Update("A", v, parseTime.Add(time.Duration(i+1)*100*time.Millisecond))
		if math.Abs(s.SmoothedCm-prev) > capCm+1e-9 {
			t.Errorf("sample %d: step %v exceeds cap %v", i, s.SmoothedCm-prev, capCm)
		}
		prev = s.SmoothedCm
	}

	first := NewSmoother(SmootherConfig{MaxStepPerSampleCm: capCm})
	if s := first.Update("B", 500, parseTime); s.SmoothedCm != 500 {
		t.Errorf("cap must not apply to the first sample, got %v", s.SmoothedCm)
	}
}

func TestSmootherCapAppliesBeforeSmoothing(t *testing.T) {
	sm := NewSmoother(SmootherConfig{Smoothing: 250 * time.Millisecond, MaxStepPerSampleCm: 10})
	sm.Update("A", 100, parseTime)
	s := sm.Update("A", 0, parseTime.Add(time.Second))
	if s.InputCm != 90 {
		t.Errorf("expected capped input 90, got %v", s.InputCm)
	}
	if s.RawCm != 0 {
		t.Errorf("expected raw 0, got %v", s.RawCm)
	}
}

func TestSmootherStaysFiniteOnHugeSwings(t *testing.T) {
	sm := NewSmoother(SmootherConfig{Smoothing: 250 * time.Millisecond})
	sm.Update("A", 1.7e308, parseTime)

	s := sm.Update("A", -1.7e308, parseTime.Add(100*time.Millisecond))
	if math.IsNaN(s.SmoothedCm) || math.IsInf(s.SmoothedCm, 0) {
		t.Fatalf("expected a finite value after the swing, got %v", s.SmoothedCm)
	}

	s = sm.Update("A", 50, parseTime.Add(200*time.Millisecond))
	if math.IsNaN(s.SmoothedCm) || math.IsInf(s.SmoothedCm, 0) {
		t.Errorf("expected the sensor to recover, got %v", s.SmoothedCm)
	}
}

func TestSmootherCaseInsensitiveIDs(t *testing.T) {
	sm := NewSmoother(SmootherConfig{})
	sm.Update("Left", 10, parseTime)
	s := sm.Update("LEFT", 20, parseTime.Add(time.Second))

	if s.SensorID != "Left" {
		t.Errorf("expected first spelling to be kept, got %q", s.SensorID)
	}
	if len(sm.States()) != 1 {
		t.Errorf("expected one sensor state, got %d", len(sm.States()))
	}
	if v, ok := sm.Smoothed("left"); !ok || v != 20 {
		t.Errorf("Smoothed(left) = %v, %v", v, ok)
	}
}

func TestSmootherAverage(t *testing.T) {
	sm := NewSmoother(SmootherConfig{})
	if _, ok := sm.AverageSmoothed(); ok {
		t.Error("expected no average without sensors")
	}
	sm.Update("A", 10, parseTime)
	sm.Update("B", 30, parseTime)
	if avg, ok := sm.AverageSmoothed(); !ok || avg != 20 {
		t.Errorf("average = %v, %v; want 20, true", avg, ok)
	}
	if _, ok := sm.Smoothed("C"); ok {
		t.Error("expected unknown sensor to report no value")
	}
}
