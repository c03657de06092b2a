package indicator

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sweeney/presence-meter/internal/logic"
)

// Colors
var (
	ColorLow     = lipgloss.Color("#FF3300")
	ColorMid     = lipgloss.Color("#FFCC00")
	ColorHigh    = lipgloss.Color("#00CC33")
	ColorBlink   = lipgloss.Color("#FFFFFF")
	ColorEmpty   = lipgloss.Color("#3A3A3A")
	ColorDim     = lipgloss.Color("#777777")
	ColorLockout = lipgloss.Color("#5F87FF")
)

var (
	styleTitle = lipgloss.NewStyle().Bold(true)
	styleDim   = lipgloss.NewStyle().Foreground(ColorDim)
	styleEmpty = lipgloss.NewStyle().Foreground(ColorEmpty)
	styleTag   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	styleCell  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

const (
	segmentFull  = "█"
	segmentEmpty = "░"
	batteryNub   = "▌"
)

// fillColor picks a color for the filled part by fill fraction.
func fillColor(index, maxIndex int) lipgloss.Color {
	if maxIndex <= 0 {
		return ColorHigh
	}
	switch f := float64(index) / float64(maxIndex); {
	case f < 0.34:
		return ColorLow
	case f < 0.67:
		return ColorMid
	default:
		return ColorHigh
	}
}

// RenderBattery draws one indicator as a battery with one segment per level
// above zero. blinkOn highlights the filled segments during the hold phase.
func RenderBattery(s logic.LevelState, blinkOn bool) string {
	segments := s.MaxIndex
	if segments < 1 {
		segments = 1
	}
	filled := s.Index
	if filled > segments {
		filled = segments
	}
	if filled < 0 {
		filled = 0
	}

	color := fillColor(s.Index, s.MaxIndex)
	if s.HoldPhase && blinkOn {
		color = ColorBlink
	}
	bar := lipgloss.NewStyle().Foreground(color).Render(strings.Repeat(segmentFull, filled)) +
		styleEmpty.Render(strings.Repeat(segmentEmpty, segments-filled)) +
		styleDim.Render(batteryNub)

	header := styleTitle.Render(s.Name) + " " + styleDim.Render(fmt.Sprintf("%d/%d", s.Index, s.MaxIndex))
	lines := []string{header, bar, renderTags(s)}
	return styleCell.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderTags(s logic.LevelState) string {
	var tags []string
	if s.HoldPhase {
		tags = append(tags, styleTag.Foreground(ColorMid).Render("HOLD"))
	}
	if s.Lockout {
		tags = append(tags, styleTag.Foreground(ColorLockout).Render("LOCKOUT"))
	}
	if s.Present {
		tags = append(tags, styleTag.Foreground(ColorHigh).Render("PRESENT"))
	}
	if len(tags) == 0 {
		return styleDim.Render(fmt.Sprintf("level %.2f", s.Level))
	}
	return strings.Join(tags, "")
}

// RenderBatteries lays indicators out side by side.
func RenderBatteries(states []logic.LevelState, blink map[string]bool) string {
	if len(states) == 0 {
		return styleDim.Render("no indicators configured")
	}
	cells := make([]string, len(states))
	for i, s := range states {
		cells[i] = RenderBattery(s, blink[s.Name])
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cells...)
}

// RenderSensors lists smoothed distances, one sensor per line.
func RenderSensors(sensors []logic.SensorState) string {
	if len(sensors) == 0 {
		return styleDim.Render("waiting for readings...")
	}
	lines := make([]string, len(sensors))
	for i, s := range sensors {
		smoothed := "-"
		if s.HasValue && !math.IsNaN(s.SmoothedCm) {
			smoothed = fmt.Sprintf("%6.1f cm", s.SmoothedCm)
		}
		lines[i] = fmt.Sprintf("%-10s %s  %s", s.ID, smoothed,
			styleDim.Render(fmt.Sprintf("raw %.1f  n=%d", s.LastRawCm, s.Samples)))
	}
	return strings.Join(lines, "\n")
}

// RenderTriggers lists recent triggers, newest first.
func RenderTriggers(triggers []logic.Trigger) string {
	if len(triggers) == 0 {
		return styleDim.Render("no triggers yet")
	}
	lines := make([]string, 0, len(triggers))
	for i := len(triggers) - 1; i >= 0; i-- {
		t := triggers[i]
		what := "legacy"
		if !t.Legacy {
			what = fmt.Sprintf("%.1f cm", t.DistanceCm)
		}
		lines = append(lines, fmt.Sprintf("%s  %-10s %s", t.Time.Format("15:04:05.000"), t.SensorID, what))
	}
	return strings.Join(lines, "\n")
}
