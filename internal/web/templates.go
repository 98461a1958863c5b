package web

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/user/topomon/internal/daemon"
	"github.com/user/topomon/internal/model"
	"github.com/user/topomon/internal/report"
	"github.com/user/topomon/internal/storage"
	"github.com/user/topomon/internal/topology"
)

var dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>topomon</title>
    <script src="https://cdn.jsdelivr.net/npm/mermaid/dist/mermaid.min.js"></script>
    <style>
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body { font-family: ui-monospace, monospace; background: #0a0f0a; color: #00cc33; padding: 24px; }
        h1, h2 { color: #00ff41; margin-bottom: 12px; }
        section { background: rgba(0, 40, 0, 0.4); border: 1px solid #1a4a1a; border-radius: 6px; padding: 16px; margin-bottom: 20px; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 6px 8px; border-bottom: 1px solid #1a4a1a; }
        .critical { color: #ff3333; }
        .warning { color: #ffaa00; }
        .pill { display: inline-block; margin-right: 16px; }
        .mermaid { background: #f5f5f5; border-radius: 4px; padding: 8px; }
    </style>
</head>
<body>
    <h1>topomon</h1>
    <section>
        <span class="pill">daemon: {{if .Running}}running{{else}}stopped{{end}}</span>
        {{range $status, $n := .Counts}}<span class="pill">{{$status}}: {{$n}}</span>{{end}}
        <span class="pill"><a href="/report">report</a></span>
        <span class="pill"><a href="/export.xlsx">export</a></span>
    </section>
    <section>
        <h2>Topology ({{.Kind}})</h2>
        <pre class="mermaid">{{.Diagram}}</pre>
    </section>
    <section>
        <h2>Active Alerts</h2>
        {{if .Alerts}}
        <table>
            <tr><th>Severity</th><th>Type</th><th>Message</th><th>Since</th><th>Ack</th></tr>
            {{range .Alerts}}
            <tr class="{{.Severity}}">
                <td>{{.Severity}}</td><td>{{.Type}}</td><td>{{.Message}}</td>
                <td>{{.TriggeredAt.Format "2006-01-02 15:04"}}</td>
                <td>{{.AcknowledgedBy}}{{if .IsSuppressed}} (suppressed){{end}}</td>
            </tr>
            {{end}}
        </table>
        {{else}}
        <p>No active alerts.</p>
        {{end}}
    </section>
    <script>mermaid.initialize({ startOnLoad: true });</script>
</body>
</html>`

var dashboardTemplate = template.Must(template.New("dashboard.html").Parse(dashboardHTML))

type dashboardData struct {
	Running bool
	Counts  map[model.DeviceStatus]int
	Kind    topology.ViewKind
	Diagram string
	Alerts  []model.Alert
}

// Dashboard serves the overview page.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	data := dashboardData{}
	data.Running, _ = daemon.CheckRunning(h.config.DataDir)
	data.Counts, _ = h.devices.CountByStatus()
	data.Alerts, _ = h.alerts.List(storage.AlertFilter{ActiveOnly: true})

	topo, err := h.topology.View(topology.ViewOverview, 0)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	data.Kind = topo.Kind
	diagram := report.TopologyDiagram(topo)
	diagram = strings.TrimPrefix(diagram, "```mermaid\n")
	data.Diagram = strings.TrimSuffix(diagram, "```\n")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTemplate.Execute(w, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
