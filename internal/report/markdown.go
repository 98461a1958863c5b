package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/user/topomon/internal/model"
	"github.com/user/topomon/internal/util"
)

var statusOrder = []model.DeviceStatus{
	model.StatusManaged,
	model.StatusOffline,
	model.StatusUnknown,
	model.StatusUnmanaged,
	model.StatusExcluded,
}

// FormatMarkdown renders the report as markdown.
func FormatMarkdown(data *Data) string {
	var sb strings.Builder

	sb.WriteString("# Network Topology Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n", data.GeneratedAt.Format(time.RFC3339)))
	if !data.Since.IsZero() {
		sb.WriteString(fmt.Sprintf("Alerts since: %s\n", data.Since.Format(time.RFC3339)))
	}
	sb.WriteString("\n")

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Status | Devices |\n|---|---|\n")
	for _, s := range statusOrder {
		sb.WriteString(fmt.Sprintf("| %s | %d |\n", s, data.StatusCounts[s]))
	}
	sb.WriteString(fmt.Sprintf("\nLinks: %d, active alerts: %d\n\n", len(data.Links), len(data.ActiveAlerts)))

	if data.Topology != nil {
		sb.WriteString(fmt.Sprintf("## Topology (%s view)\n\n", data.Topology.Kind))
		sb.WriteString(TopologyDiagram(data.Topology))
		sb.WriteString("\n")
	}

	if len(data.BusyLinks) > 0 {
		sb.WriteString("## Busiest Links\n\n")
		sb.WriteString("| Link | Bandwidth | In | Out | Ports |\n|---|---|---|---|---|\n")
		for _, l := range data.BusyLinks {
			sb.WriteString(fmt.Sprintf("| %s | %s | %.1f%% | %.1f%% | %d |\n",
				data.LinkName(l), FormatMbps(l.TotalBandwidthMbps),
				l.UtilizationInPercent, l.UtilizationOutPercent, len(l.PortPairs)))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Active Alerts\n\n")
	if len(data.ActiveAlerts) == 0 {
		sb.WriteString("No active alerts.\n\n")
	} else {
		sb.WriteString("| Severity | Target | Type | Message | Since | Ack |\n|---|---|---|---|---|---|\n")
		for _, a := range data.ActiveAlerts {
			ack := ""
			if a.AcknowledgedBy != "" {
				ack = a.AcknowledgedBy
			}
			if a.IsSuppressed {
				ack += " (suppressed)"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s |\n",
				a.Severity, data.TargetName(a), a.Type, escapeCell(a.Message),
				a.TriggeredAt.Format("2006-01-02 15:04"), strings.TrimSpace(ack)))
		}
		sb.WriteString("\n")
	}

	resolved := 0
	for _, a := range data.RecentAlerts {
		if !a.IsActive {
			resolved++
		}
	}
	if resolved > 0 {
		sb.WriteString("## Resolved Alerts\n\n")
		sb.WriteString("| Target | Type | Triggered | Recovered |\n|---|---|---|---|\n")
		for _, a := range data.RecentAlerts {
			if a.IsActive || a.RecoveredAt == nil {
				continue
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				data.TargetName(a), a.Type,
				a.TriggeredAt.Format("2006-01-02 15:04"), a.RecoveredAt.Format("2006-01-02 15:04")))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// WriteMarkdownFile writes the report into dir and returns its path.
func WriteMarkdownFile(data *Data, dir string) (string, error) {
	if err := util.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("failed to create report dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("topomon-report-%s.md", data.GeneratedAt.Format("20060102-150405")))
	if err := os.WriteFile(path, []byte(FormatMarkdown(data)), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
