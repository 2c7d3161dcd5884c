package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/dcf77-receiver/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		switch {
		case days > 0:
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		case h > 0:
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		case m > 0:
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"utc": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format(time.RFC3339)
	},
	"bit": func(v bool) int {
		if v {
			return 1
		}
		return 0
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>DCF77 Receiver</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; font-weight: bold; }
.bad { color: red; }
.pending { color: orange; }
#bits { word-break: break-all; }
</style>
</head>
<body>
<h1>DCF77 Receiver</h1>

<h2>Decoder</h2>
<table>
<tr><th>State</th><td id="state">{{.State}}</td></tr>
<tr><th>Second</th><td id="second">{{.Second}}</td></tr>
<tr><th>Synced</th><td class="{{if .Synced}}ok{{else}}pending{{end}}">{{if .Synced}}yes{{else}}waiting for minute gap{{end}}</td></tr>
<tr><th>Last bit</th><td id="last-bit">{{with .LastBit}}{{if .Faulty}}faulty{{else}}{{bit .Value}}{{end}} @ {{.Second}}{{else}}none{{end}}</td></tr>
<tr><th>Bits</th><td id="bits"></td></tr>
</table>

<h2>Last Minute</h2>
<table>
{{with .LastMinute}}<tr><th>Result</th><td id="minute" class="{{if .Valid}}ok{{else}}bad{{end}}">{{if .Valid}}{{.Time}}{{else}}{{.Err}}{{end}}</td></tr>
<tr><th>Bits</th><td>{{.Bits}}</td></tr>
<tr><th>Telegram</th><td>{{printf "%015x" .Telegram}}</td></tr>{{else}}<tr><th>Result</th><td id="minute" class="pending">none yet</td></tr>{{end}}
<tr><th>Last valid</th><td>{{utc .LastValid}}</td></tr>
</table>

<h2>Counts</h2>
<table>
<tr><th>Bits</th><td>{{.Counts.Bits}}</td></tr>
<tr><th>Faulty bits</th><td>{{.Counts.FaultyBits}}</td></tr>
<tr><th>Minutes</th><td>{{.Counts.Minutes}}</td></tr>
<tr><th>Valid</th><td>{{.Counts.ValidMinutes}}</td></tr>
<tr><th>Invalid</th><td>{{.Counts.InvalidMinutes}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}ok{{else}}bad{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Input</th><td>{{if .Config.Simulate}}simulated{{else}}{{.Config.Chip}} pin {{.Config.Pin}}{{if .Config.Invert}} (inverted){{end}}{{end}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{utc .StartTime}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
<script>
(function() {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var bits = document.getElementById("bits");
  var ws = new WebSocket(proto + location.host + "/live");
  ws.onmessage = function(ev) {
    var m;
    try { m = JSON.parse(ev.data); } catch (e) { return; }
    if (m.type === "BIT" || m.type === "FAULTY_BIT") {
      if (m.second === 0) { bits.textContent = ""; }
      var v = m.type === "BIT" ? String(m.value) : "?";
      bits.textContent += v;
      document.getElementById("second").textContent = m.second + 1;
      document.getElementById("last-bit").textContent = (m.type === "BIT" ? v : "faulty") + " @ " + m.second;
    } else if (m.type === "MINUTE") {
      var el = document.getElementById("minute");
      el.textContent = m.valid ? m.time : m.error;
      el.className = m.valid ? "ok" : "bad";
      bits.textContent = "";
    }
  };
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("http: render index: %v", err)
	}
}
