package logic

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// ParserConfig controls how raw lines are interpreted.
type ParserConfig struct {
	LegacyTrueLiteral string
	DefaultSensorID   string
	Unit              Unit
	// AllowedSensorIDs is an optional whitelist; empty accepts any key.
	AllowedSensorIDs []string
}

// ParseKind classifies a parsed line.
type ParseKind int

const (
	ParseEmpty ParseKind = iota
	ParseLegacy
	ParseKeyValue
	ParseSingle
	ParseUnrecognized
)

func (k ParseKind) String() string {
	switch k {
	case ParseEmpty:
		return "empty"
	case ParseLegacy:
		return "legacy"
	case ParseKeyValue:
		return "key-value"
	case ParseSingle:
		return "single"
	default:
		return "unrecognized"
	}
}

// ParseResult is the outcome of ParseLine.
type ParseResult struct {
	Kind     ParseKind
	Readings []Reading
}

// ParseLine interprets one line from a device. Lines are trimmed before matching.
// Readings are stamped with now and normalized to centimeters.
func ParseLine(line string, cfg ParserConfig, now time.Time) ParseResult {
	line = strings.TrimSpace(line)
	if line == "" {
		return ParseResult{Kind: ParseEmpty}
	}

	if cfg.LegacyTrueLiteral != "" && strings.EqualFold(line, cfg.LegacyTrueLiteral) {
		return ParseResult{Kind: ParseLegacy}
	}

	if readings := parseKeyValues(line, cfg, now); len(readings) > 0 {
		return ParseResult{Kind: ParseKeyValue, Readings: readings}
	}

	if v, ok := parseNumber(line); ok {
		return ParseResult{
			Kind: ParseSingle,
			Readings: []Reading{{
				SensorID:   cfg.DefaultSensorID,
				DistanceCm: cfg.Unit.ToCentimeters(v),
				Time:       now,
			}},
		}
	}

	return ParseResult{Kind: ParseUnrecognized}
}

// parseKeyValues handles "A=123,B=456" and "A=123 B=456" lines.
// Invalid tokens are skipped without affecting the rest of the line.
func parseKeyValues(line string, cfg ParserConfig, now time.Time) []Reading {
	if !strings.Contains(line, "=") {
		return nil
	}

	tokens := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' '
	})

	var readings []Reading
	for _, tok := range tokens {
		kv := strings.Split(tok, "=")
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		val := strings.TrimSpace(kv[1])
		if key == "" || !allowed(key, cfg.AllowedSensorIDs) {
			continue
		}
		v, ok := parseNumber(val)
		if !ok {
			continue
		}
		readings = append(readings, Reading{
			SensorID:   key,
			DistanceCm: cfg.Unit.ToCentimeters(v),
			Time:       now,
		})
	}
	return readings
}

func allowed(key string, whitelist []string) bool {
	if len(whitelist) == 0 {
		return true
	}
	for _, id := range whitelist {
		if strings.EqualFold(id, key) {
			return true
		}
	}
	return false
}

// MaxRawDistance bounds the magnitude of a parsed distance in input units.
const MaxRawDistance = 1e6

// parseNumber rejects NaN, infinities and values beyond MaxRawDistance,
// which would poison the smoothing state.
func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.Abs(v) > MaxRawDistance {
		return 0, false
	}
	return v, true
}
