package status

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/presence-meter/internal/logic"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		Source:      "serial",
		TickMs:      20,
		ThresholdCm: 50,
		LessThan:    true,
		CooldownMs:  500,
		Broker:      "tcp://localhost:1883",
		TopicPrefix: "presence/meter",
		HTTPAddr:    ":8080",
	}
}

func TestNewTracker(t *testing.T) {
	tr := NewTracker(start, testConfig())

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.TickMs != 20 {
		t.Errorf("Config.TickMs: got %d, want 20", snap.Config.TickMs)
	}
	if snap.Source.Kind != "serial" || snap.Source.Open {
		t.Errorf("unexpected source state: %+v", snap.Source)
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(start, Config{})
	tr.Update(
		[]logic.SensorState{{ID: "A", SmoothedCm: 42, HasValue: true}},
		[]logic.LevelState{{Name: "battery", Index: 2, MaxIndex: 5}},
		logic.EventCounts{Triggers: 3, Lockouts: 1},
	)

	snap := tr.Snapshot()
	if len(snap.Sensors) != 1 || snap.Sensors[0].ID != "A" {
		t.Errorf("unexpected sensors: %+v", snap.Sensors)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Index != 2 {
		t.Errorf("unexpected indicators: %+v", snap.Indicators)
	}
	if snap.Counts.Triggers != 3 || snap.Counts.Lockouts != 1 {
		t.Errorf("unexpected counts: %+v", snap.Counts)
	}
}

func TestSetSource(t *testing.T) {
	tr := NewTracker(start, testConfig())

	tr.SetSource(false, errors.New("open serial /dev/ttyUSB0: no such file"))
	if s := tr.Snapshot().Source; s.Open || !strings.Contains(s.Error, "no such file") {
		t.Errorf("unexpected source state: %+v", s)
	}

	tr.SetSource(true, nil)
	if s := tr.Snapshot().Source; !s.Open || s.Error != "" {
		t.Errorf("unexpected source state: %+v", s)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(start, Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}
	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestRecordTriggersBounded(t *testing.T) {
	tr := NewTracker(start, Config{})
	tr.RecordTriggers(nil)

	for i := 0; i < maxRecentTriggers+5; i++ {
		tr.RecordTriggers([]logic.Trigger{{SensorID: "A", DistanceCm: float64(i), Time: start.Add(time.Duration(i) * time.Second)}})
	}

	recent := tr.Snapshot().RecentTriggers
	if len(recent) != maxRecentTriggers {
		t.Fatalf("expected %d triggers, got %d", maxRecentTriggers, len(recent))
	}
	if recent[0].DistanceCm != 5 || recent[len(recent)-1].DistanceCm != float64(maxRecentTriggers+4) {
		t.Errorf("expected oldest dropped, got first=%v last=%v", recent[0].DistanceCm, recent[len(recent)-1].DistanceCm)
	}
}

func TestSnapshotUptime(t *testing.T) {
	snap := Snapshot{StartTime: start, Now: start.Add(15 * time.Minute)}
	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(start, Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(start, Config{})
	tr.RecordTriggers([]logic.Trigger{{SensorID: "A"}})
	snap1 := tr.Snapshot()

	tr.RecordTriggers([]logic.Trigger{{SensorID: "B"}})
	tr.Update(nil, nil, logic.EventCounts{Triggers: 9})

	if len(snap1.RecentTriggers) != 1 {
		t.Error("snapshot should be a copy; triggers were modified")
	}
	if snap1.Counts.Triggers != 0 {
		t.Error("snapshot should be a copy; counts were modified")
	}
}

func fullSnapshot() Snapshot {
	return Snapshot{
		Sensors: []logic.SensorState{
			{ID: "A", SmoothedCm: 38.456, LastRawCm: 37, Samples: 12, ConsecutiveTrue: 1, LastSampleTime: start.Add(time.Minute)},
		},
		Indicators: []logic.LevelState{
			{Name: "battery", Level: 2.346, Index: 2, MaxIndex: 5, Present: true, LastPulse: start.Add(time.Minute)},
			{Name: "door", Level: 5, Index: 5, MaxIndex: 5, Lockout: true, HoldPhase: true, HoldUntil: start.Add(2 * time.Minute)},
		},
		RecentTriggers: []logic.Trigger{
			{Time: start.Add(time.Minute), SensorID: "A", DistanceCm: 38.456},
			{Time: start.Add(time.Minute), SensorID: logic.LegacySensorID, DistanceCm: math.NaN(), Legacy: true},
		},
		Counts:        logic.EventCounts{Triggers: 5, Suppressed: 2, Lockouts: 1, ManualPulses: 3},
		Source:        SourceState{Kind: "serial", Open: true},
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        testConfig(),
	}
}

func TestFormatJSON(t *testing.T) {
	data := FormatJSON(fullSnapshot())

	var sj StatusJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, data)
	}
	s := sj.Status

	if s.Event != "" || s.Reason != "" {
		t.Error("web JSON should not carry event or reason")
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if !s.MQTT.Connected || s.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("unexpected MQTT status: %+v", s.MQTT)
	}
	if !s.Source.Open || s.Source.Kind != "serial" {
		t.Errorf("unexpected source: %+v", s.Source)
	}
	if s.Counts.Triggers != 5 || s.Counts.ManualPulses != 3 {
		t.Errorf("unexpected counts: %+v", s.Counts)
	}
	if len(s.Sensors) != 1 || s.Sensors[0].SmoothedCm != 38.46 || s.Sensors[0].Streak != 1 {
		t.Errorf("unexpected sensors: %+v", s.Sensors)
	}
	if len(s.Indicators) != 2 {
		t.Fatalf("expected 2 indicators, got %d", len(s.Indicators))
	}
	if s.Indicators[0].Level != 2.35 || s.Indicators[0].HoldUntil != "" {
		t.Errorf("unexpected indicator: %+v", s.Indicators[0])
	}
	if !s.Indicators[1].HoldPhase || s.Indicators[1].HoldUntil == "" {
		t.Errorf("hold phase indicator should report hold_until: %+v", s.Indicators[1])
	}
	if len(s.RecentTriggers) != 2 || s.RecentTriggers[1].DistanceCm != nil {
		t.Errorf("unexpected recent triggers: %+v", s.RecentTriggers)
	}
	if s.Config.TickMs != 20 || s.Config.TopicPrefix != "presence/meter" {
		t.Errorf("unexpected config: %+v", s.Config)
	}
}

func TestFormatJSONEmptyListsNotNull(t *testing.T) {
	data := FormatJSON(Snapshot{StartTime: start, Now: start})
	if !strings.Contains(string(data), `"sensors": []`) || !strings.Contains(string(data), `"indicators": []`) {
		t.Errorf("expected empty arrays:\n%s", data)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	data := FormatStatusEvent(fullSnapshot(), "SHUTDOWN", "SIGTERM")

	if strings.Contains(string(data), "\n") {
		t.Error("status event should be compact")
	}

	var sj StatusJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if sj.Status.Event != "SHUTDOWN" || sj.Status.Reason != "SIGTERM" {
		t.Errorf("unexpected event/reason: %q/%q", sj.Status.Event, sj.Status.Reason)
	}
	if sj.Status.RecentTriggers != nil {
		t.Error("status events should not carry recent triggers")
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	data := FormatStatusEvent(fullSnapshot(), "STARTUP", "")

	var raw map[string]map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, exists := raw["status"]["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(start, Config{})
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Update([]logic.SensorState{{ID: "A", Samples: j}}, nil, logic.EventCounts{Triggers: j})
				tr.RecordTriggers([]logic.Trigger{{SensorID: "A"}})
				tr.SetMQTTConnected(j%2 == 0)
			}
		}(i)
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				FormatJSON(tr.Snapshot())
			}
		}()
	}
	wg.Wait()
}
