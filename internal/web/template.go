package web

import (
	"fmt"
	"html/template"
	"io"
	"math"
	"strings"
	"time"

	"github.com/sweeney/presence-meter/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"bar": func(index, maxIndex int) string {
		if maxIndex <= 0 {
			return "[#]"
		}
		return "[" + strings.Repeat("#", index) + strings.Repeat(".", maxIndex-index) + "]"
	},
	"cm": func(v float64) string {
		if math.IsNaN(v) {
			return "-"
		}
		return fmt.Sprintf("%.1f", v)
	},
	"clock": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("15:04:05.000")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="2">
<title>Presence Meter</title>
<style>
body { font-family: monospace; max-width: 700px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.bar { font-weight: bold; }
.hold { color: #c60; }
.lockout { color: #888; }
.present { color: green; }
.connected { color: green; }
.disconnected { color: red; }
form { display: inline; }
</style>
</head>
<body>
<h1>Presence Meter</h1>

<h2>Indicators</h2>
<table>
<tr><th>Name</th><th>Level</th><th>State</th><th>Last pulse</th></tr>
{{range .Indicators}}<tr>
<td>{{.Name}}</td>
<td class="bar">{{bar .Index .MaxIndex}} {{.Index}}/{{.MaxIndex}}</td>
<td>{{if .HoldPhase}}<span class="hold">hold</span>{{else if .Lockout}}<span class="lockout">lockout</span>{{else if .Present}}<span class="present">present</span>{{else}}idle{{end}}</td>
<td>{{clock .LastPulse}}</td>
</tr>{{else}}<tr><td colspan="4">no indicators configured</td></tr>{{end}}
</table>
{{if .Controls}}<form method="post" action="/pulse"><button type="submit">Pulse</button></form>{{end}}

<h2>Sensors</h2>
<table>
<tr><th>Sensor</th><th>Smoothed (cm)</th><th>Raw (cm)</th><th>Samples</th><th>Last sample</th></tr>
{{range .Sensors}}<tr><td>{{.ID}}</td><td>{{cm .SmoothedCm}}</td><td>{{cm .LastRawCm}}</td><td>{{.Samples}}</td><td>{{clock .LastSampleTime}}</td></tr>
{{else}}<tr><td colspan="5">no readings yet</td></tr>{{end}}
</table>

{{if .RecentTriggers}}<h2>Recent Triggers</h2>
<table>
{{range .RecentTriggers}}<tr><td>{{clock .Time}}</td><td>{{.SensorID}}</td><td>{{if .Legacy}}legacy{{else}}{{cm .DistanceCm}} cm{{end}}</td></tr>
{{end}}</table>{{end}}

<h2>Event Counts</h2>
<table>
<tr><th>Triggers</th><td>{{.Counts.Triggers}}</td></tr>
<tr><th>Legacy triggers</th><td>{{.Counts.LegacyTriggers}}</td></tr>
<tr><th>Suppressed</th><td>{{.Counts.Suppressed}}</td></tr>
<tr><th>Level ups / downs</th><td>{{.Counts.LevelUps}} / {{.Counts.LevelDowns}}</td></tr>
<tr><th>Lockouts</th><td>{{.Counts.Lockouts}}</td></tr>
<tr><th>Manual pulses</th><td>{{.Counts.ManualPulses}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>Source</th><td>{{.Source.Kind}} {{if .Source.Open}}<span class="connected">open</span>{{else}}<span class="disconnected">closed</span>{{end}}{{if .Source.Error}} ({{.Source.Error}}){{end}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Threshold</th><td>{{if .Config.LessThan}}&le;{{else}}&ge;{{end}} {{.Config.ThresholdCm}} cm</td></tr>
<tr><th>Cooldown</th><td>{{.Config.CooldownMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, controls bool) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime   time.Duration
		Controls bool
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Controls: controls,
	}
	indexTmpl.Execute(w, data)
}
