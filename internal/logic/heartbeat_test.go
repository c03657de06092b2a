package logic

import (
	"testing"
	"time"
)

func TestHeartbeatDisabled(t *testing.T) {
	h := NewHeartbeat(parseTime)
	if hb := h.Check(parseTime.Add(time.Hour), 0, EventCounts{}); hb != nil {
		t.Errorf("expected nil with interval 0, got %+v", hb)
	}
}

func TestHeartbeatInterval(t *testing.T) {
	h := NewHeartbeat(parseTime)
	interval := 15 * time.Minute

	if hb := h.Check(parseTime.Add(14*time.Minute), interval, EventCounts{}); hb != nil {
		t.Fatal("expected no heartbeat before interval")
	}

	counts := EventCounts{Triggers: 3, Lockouts: 1}
	now := parseTime.Add(interval)
	hb := h.Check(now, interval, counts)
	if hb == nil {
		t.Fatal("expected heartbeat at interval")
	}
	if hb.Uptime != interval {
		t.Errorf("uptime: got %v, want %v", hb.Uptime, interval)
	}
	if hb.Counts != counts {
		t.Errorf("counts: got %+v, want %+v", hb.Counts, counts)
	}
	if !hb.Timestamp.Equal(now) {
		t.Errorf("timestamp: got %v, want %v", hb.Timestamp, now)
	}

	if hb := h.Check(now.Add(time.Minute), interval, counts); hb != nil {
		t.Error("expected the interval to restart after a heartbeat")
	}
	if hb := h.Check(now.Add(interval), interval, counts); hb == nil || hb.Uptime != 2*interval {
		t.Errorf("expected second heartbeat with 30m uptime, got %+v", hb)
	}
}

func TestEventCountsAdd(t *testing.T) {
	a := EventCounts{Triggers: 1, LegacyTriggers: 2, Suppressed: 3, LevelUps: 4}
	b := EventCounts{Triggers: 10, LevelDowns: 5, Lockouts: 6, ManualPulses: 7}
	got := a.Add(b)
	want := EventCounts{Triggers: 11, LegacyTriggers: 2, Suppressed: 3, LevelUps: 4, LevelDowns: 5, Lockouts: 6, ManualPulses: 7}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
