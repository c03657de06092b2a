package logic

import (
	"testing"
	"time"
)

var parseTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func defaultParserConfig() ParserConfig {
	return ParserConfig{
		LegacyTrueLiteral: "true",
		DefaultSensorID:   "DEFAULT",
		Unit:              Centimeters,
	}
}

func TestParseLegacyLiteral(t *testing.T) {
	for _, line := range []string{"true", "TRUE", "  True  "} {
		res := ParseLine(line, defaultParserConfig(), parseTime)
		if res.Kind != ParseLegacy {
			t.Errorf("%q: expected legacy, got %s", line, res.Kind)
		}
		if len(res.Readings) != 0 {
			t.Errorf("%q: expected no readings, got %d", line, len(res.Readings))
		}
	}
}

func TestParseLegacyLiteralDisabled(t *testing.T) {
	cfg := defaultParserConfig()
	cfg.LegacyTrueLiteral = ""

	res := ParseLine("true", cfg, parseTime)
	if res.Kind != ParseUnrecognized {
		t.Errorf("expected unrecognized with empty literal, got %s", res.Kind)
	}
}

func TestParseSingleNumeric(t *testing.T) {
	res := ParseLine("42.5", defaultParserConfig(), parseTime)
	if res.Kind != ParseSingle {
		t.Fatalf("expected single, got %s", res.Kind)
	}
	if len(res.Readings) != 1 {
		t.Fatalf("expected 1 reading, got %d", len(res.Readings))
	}
	r := res.Readings[0]
	if r.SensorID != "DEFAULT" {
		t.Errorf("sensor: got %q, want DEFAULT", r.SensorID)
	}
	if r.DistanceCm != 42.5 {
		t.Errorf("distance: got %v, want 42.5", r.DistanceCm)
	}
	if !r.Time.Equal(parseTime) {
		t.Errorf("time: got %v, want %v", r.Time, parseTime)
	}
}

func TestParseMillimeters(t *testing.T) {
	cfg := defaultParserConfig()
	cfg.Unit = Millimeters

	res := ParseLine("455", cfg, parseTime)
	if res.Kind != ParseSingle || res.Readings[0].DistanceCm != 45.5 {
		t.Errorf("expected 45.5cm, got %+v", res)
	}

	res = ParseLine("A=300,B=1200", cfg, parseTime)
	if len(res.Readings) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(res.Readings))
	}
	if res.Readings[0].DistanceCm != 30 || res.Readings[1].DistanceCm != 120 {
		t.Errorf("expected 30cm and 120cm, got %v and %v", res.Readings[0].DistanceCm, res.Readings[1].DistanceCm)
	}
}

func TestParseKeyValueSeparators(t *testing.T) {
	tests := []struct {
		line string
		want []Reading
	}{
		{"A=30,B=80", []Reading{{SensorID: "A", DistanceCm: 30}, {SensorID: "B", DistanceCm: 80}}},
		{"A=30 B=80", []Reading{{SensorID: "A", DistanceCm: 30}, {SensorID: "B", DistanceCm: 80}}},
		{"A=30, B=80,,C=1", []Reading{{SensorID: "A", DistanceCm: 30}, {SensorID: "B", DistanceCm: 80}, {SensorID: "C", DistanceCm: 1}}},
		{"left=12.5", []Reading{{SensorID: "left", DistanceCm: 12.5}}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			res := ParseLine(tt.line, defaultParserConfig(), parseTime)
			if res.Kind != ParseKeyValue {
				t.Fatalf("expected key-value, got %s", res.Kind)
			}
			if len(res.Readings) != len(tt.want) {
				t.Fatalf("expected %d readings, got %d", len(tt.want), len(res.Readings))
			}
			for i, w := range tt.want {
				got := res.Readings[i]
				if got.SensorID != w.SensorID || got.DistanceCm != w.DistanceCm {
					t.Errorf("reading %d: got %s=%v, want %s=%v", i, got.SensorID, got.DistanceCm, w.SensorID, w.DistanceCm)
				}
			}
		})
	}
}

func TestParseBadTokensDroppedIndividually(t *testing.T) {
	res := ParseLine("A=abc,B=80,C=1=2,=5,D", defaultParserConfig(), parseTime)
	if res.Kind != ParseKeyValue {
		t.Fatalf("expected key-value, got %s", res.Kind)
	}
	if len(res.Readings) != 1 {
		t.Fatalf("expected 1 reading, got %d", len(res.Readings))
	}
	if res.Readings[0].SensorID != "B" || res.Readings[0].DistanceCm != 80 {
		t.Errorf("unexpected reading: %+v", res.Readings[0])
	}
}

func TestParseNonFiniteRejected(t *testing.T) {
	for _, line := range []string{"NaN", "Inf", "A=NaN", "A=-Inf"} {
		res := ParseLine(line, defaultParserConfig(), parseTime)
		if res.Kind != ParseUnrecognized {
			t.Errorf("%q: expected unrecognized, got %s", line, res.Kind)
		}
	}
}

func TestParseOutOfRangeRejected(t *testing.T) {
	for _, line := range []string{"1.7e308", "A=-1.7e308", "A=1000001"} {
		res := ParseLine(line, defaultParserConfig(), parseTime)
		if res.Kind != ParseUnrecognized {
			t.Errorf("%q: expected unrecognized, got %s", line, res.Kind)
		}
	}

	res := ParseLine("A=-1.7e308,B=1000000", defaultParserConfig(), parseTime)
	if res.Kind != ParseKeyValue || len(res.Readings) != 1 {
		t.Fatalf("expected only B to survive, got %+v", res)
	}
	if res.Readings[0].SensorID != "B" || res.Readings[0].DistanceCm != MaxRawDistance {
		t.Errorf("unexpected reading: %+v", res.Readings[0])
	}
}

func TestParseWhitelist(t *testing.T) {
	cfg := defaultParserConfig()
	cfg.AllowedSensorIDs = []string{"a", "B"}

	res := ParseLine("A=10,b=20,C=30", cfg, parseTime)
	if len(res.Readings) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(res.Readings))
	}
	if res.Readings[0].SensorID != "A" || res.Readings[1].SensorID != "b" {
		t.Errorf("unexpected ids: %q, %q", res.Readings[0].SensorID, res.Readings[1].SensorID)
	}
}

func TestParseAllFilteredFallsThrough(t *testing.T) {
	cfg := defaultParserConfig()
	cfg.AllowedSensorIDs = []string{"A"}

	// Every pair is filtered and the line is not a number either
	res := ParseLine("C=30", cfg, parseTime)
	if res.Kind != ParseUnrecognized {
		t.Errorf("expected unrecognized, got %s", res.Kind)
	}
}

func TestParseUnrecognizedAndEmpty(t *testing.T) {
	if res := ParseLine("hello world", defaultParserConfig(), parseTime); res.Kind != ParseUnrecognized {
		t.Errorf("expected unrecognized, got %s", res.Kind)
	}
	if res := ParseLine("   ", defaultParserConfig(), parseTime); res.Kind != ParseEmpty {
		t.Errorf("expected empty, got %s", res.Kind)
	}
}

func TestParseUnit(t *testing.T) {
	tests := []struct {
		in      string
		want    Unit
		wantErr bool
	}{
		{"mm", Millimeters, false},
		{"Millimeters", Millimeters, false},
		{"cm", Centimeters, false},
		{"CENTIMETERS", Centimeters, false},
		{"inches", "", true},
	}
	for _, tt := range tests {
		got, err := ParseUnit(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseUnit(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseUnit(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
