package web

import (
	"html/template"
	"io"
	"log"
	"strconv"
	"time"

	"github.com/sweeney/irrigator/internal/gpio"
	"github.com/sweeney/irrigator/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"human": status.FormatDuration,
	"utc": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
	"pin": func(p int) string {
		if p == gpio.NoPin {
			return "disabled"
		}
		return "GPIO " + strconv.Itoa(p)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="30">
<title>Irrigator</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.watering { color: #06c; font-weight: bold; }
.idle { color: #888; }
.fault { color: red; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Irrigator</h1>

<h2>State</h2>
<table>
<tr><th>State</th><td id="state" class="{{if .Watering}}watering{{else}}idle{{end}}">{{.State}}</td></tr>
<tr><th>Since</th><td>{{utc .Since}}</td></tr>
{{if .Watering}}<tr><th>Stops in</th><td>{{human .StopsIn}}</td></tr>
{{end}}<tr><th>Next watering in</th><td>{{human .NextWatering}}</td></tr>
<tr><th>Last start</th><td>{{utc .LastStart}}</td></tr>
<tr><th>Last stop</th><td>{{utc .LastStop}}</td></tr>
{{if .Fault}}<tr><th>Last fault</th><td class="fault">{{.Fault}}</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counts</h2>
<table>
<tr><th>Starts</th><td>{{.Counts.Starts}}</td></tr>
<tr><th>Stops</th><td>{{.Counts.Stops}}</td></tr>
<tr><th>Ignored starts</th><td>{{.Counts.IgnoredStarts}}</td></tr>
<tr><th>Ignored stops</th><td>{{.Counts.IgnoredStops}}</td></tr>
<tr><th>Actuator faults</th><td>{{.Counts.Faults}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{human .Uptime}}</td></tr>
<tr><th>Started</th><td>{{utc .StartTime}}</td></tr>
<tr><th>Interval</th><td>{{human .Config.Interval}}</td></tr>
<tr><th>Duration</th><td>{{human .Config.Duration}}</td></tr>
<tr><th>Tick</th><td>{{.Config.Tick}}</td></tr>
<tr><th>Motor</th><td>{{pin .Config.PinMotor}}</td></tr>
<tr><th>Indicator</th><td>{{pin .Config.PinLight}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot exposes derived values as methods; the template wants fields.
	data := struct {
		status.Snapshot
		Uptime       time.Duration
		Watering     bool
		StopsIn      time.Duration
		NextWatering time.Duration
	}{
		Snapshot:     snap,
		Uptime:       snap.Uptime(),
		Watering:     snap.Watering(),
		StopsIn:      snap.StopsIn(),
		NextWatering: snap.NextWatering(),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("web: render index: %v", err)
	}
}
