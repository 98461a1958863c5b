package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/user/topomon/internal/daemon"
	"github.com/user/topomon/internal/model"
	"github.com/user/topomon/internal/report"
)

const maxRows = 10

// DashboardData holds data for the dashboard view.
type DashboardData struct {
	Report *report.Data
	Daemon *daemon.StatusFile
}

type pane int

const (
	paneAlerts pane = iota
	paneLinks
)

// Dashboard is the main dashboard view.
type Dashboard struct {
	data   *DashboardData
	pane   pane
	width  int
	height int
}

// NewDashboard creates a new dashboard.
func NewDashboard(data *DashboardData, width, height int) *Dashboard {
	return &Dashboard{
		data:   data,
		width:  width,
		height: height,
	}
}

// SetSize updates the dashboard size.
func (d *Dashboard) SetSize(width, height int) {
	d.width = width
	d.height = height
}

// Toggle switches between the alert and link panes.
func (d *Dashboard) Toggle() {
	if d.pane == paneAlerts {
		d.pane = paneLinks
	} else {
		d.pane = paneAlerts
	}
}

// View renders the dashboard.
func (d *Dashboard) View() string {
	var sb strings.Builder

	sb.WriteString(HeaderStyle.Width(d.width).Render("Topomon Dashboard"))
	sb.WriteString("\n\n")
	sb.WriteString(d.renderDaemonSection())
	sb.WriteString("\n")
	sb.WriteString(d.renderInventorySection())
	sb.WriteString("\n")
	if d.pane == paneAlerts {
		sb.WriteString(d.renderAlertsSection())
	} else {
		sb.WriteString(d.renderLinksSection())
	}
	sb.WriteString("\n")
	sb.WriteString(HelpStyle.Render("Press 'tab' to switch pane • 'r' to refresh • 'q' to quit"))

	return sb.String()
}

func (d *Dashboard) sectionWidth() int {
	if w := d.width - 4; w >= 40 {
		return w
	}
	return 40
}

func (d *Dashboard) section(title, content string) string {
	return SectionStyle.Width(d.sectionWidth()).Render(SectionTitleStyle.Render(title) + "\n" + content)
}

func (d *Dashboard) renderDaemonSection() string {
	st := d.data.Daemon
	if st == nil || !st.Running {
		return d.section("Daemon", RenderStatus(false, "", "not running"))
	}

	lines := []string{
		LabelStyle.Render("Status:") + " " + RenderStatus(true, fmt.Sprintf("running (PID %d)", st.PID), ""),
		LabelStyle.Render("Uptime:") + " " + ValueStyle.Render(st.Uptime),
		LabelStyle.Render("Discovery:") + " " + RenderStatus(st.DiscoveryRunning, "enabled", "disabled"),
	}
	if c := st.LastCycle; c != nil {
		lines = append(lines, LabelStyle.Render("Last poll:")+" "+ValueStyle.Render(fmt.Sprintf(
			"%d/%d devices ok, %d links, %s", c.Succeeded, c.Devices, c.MergedLinks, c.Duration.Round(time.Millisecond))))
	}
	if st.DroppedEvents > 0 {
		lines = append(lines, LabelStyle.Render("Dropped:")+" "+WarningStyle.Render(fmt.Sprintf("%d notifications", st.DroppedEvents)))
	}
	return d.section("Daemon", strings.Join(lines, "\n"))
}

func (d *Dashboard) renderInventorySection() string {
	r := d.data.Report
	total := len(r.Devices)
	statuses := []model.DeviceStatus{
		model.StatusManaged, model.StatusOffline, model.StatusUnknown,
		model.StatusUnmanaged, model.StatusExcluded,
	}

	var lines []string
	for _, s := range statuses {
		n := r.StatusCounts[s]
		if n == 0 && s != model.StatusManaged && s != model.StatusOffline {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %s %s",
			LabelStyle.Render(string(s)+":"),
			StatusStyle(s).Render(fmt.Sprintf("%4d", n)),
			RenderBar(n, total, 20)))
	}
	lines = append(lines, fmt.Sprintf("%s %s",
		LabelStyle.Render("Links:"), ValueStyle.Render(fmt.Sprintf("%d", len(r.Links)))))

	return d.section(fmt.Sprintf("Devices (%d)", total), strings.Join(lines, "\n"))
}

func (d *Dashboard) renderAlertsSection() string {
	r := d.data.Report
	title := fmt.Sprintf("Active Alerts (%d)", len(r.ActiveAlerts))
	if len(r.ActiveAlerts) == 0 {
		return d.section(title, SuccessStyle.Render("No active alerts"))
	}

	rows := []string{
		fmt.Sprintf("%-9s %-22s %-10s %s", "Severity", "Target", "Since", "Message"),
		strings.Repeat("─", 60),
	}
	for i, a := range r.ActiveAlerts {
		if i == maxRows {
			rows = append(rows, DimStyle.Render(fmt.Sprintf("... and %d more", len(r.ActiveAlerts)-maxRows)))
			break
		}
		sev := SeverityStyle(a.Severity).Render(fmt.Sprintf("%-9s", a.Severity))
		if a.IsSuppressed {
			sev = DimStyle.Render(fmt.Sprintf("%-9s", "muted"))
		}
		rows = append(rows, fmt.Sprintf("%s %-22s %-10s %s",
			sev, truncate(r.TargetName(a), 22), a.TriggeredAt.Format("01-02 15:04"), a.Message))
	}
	return d.section(title, strings.Join(rows, "\n"))
}

func (d *Dashboard) renderLinksSection() string {
	r := d.data.Report
	if len(r.BusyLinks) == 0 {
		return d.section("Busiest Links", DimStyle.Render("No links merged yet"))
	}

	rows := []string{
		fmt.Sprintf("%-30s %-8s %-28s %s", "Link", "Speed", "In", "Out"),
		strings.Repeat("─", 70),
	}
	for _, l := range r.BusyLinks {
		rows = append(rows, fmt.Sprintf("%-30s %-8s %s %5.1f%% %5.1f%%",
			truncate(r.LinkName(l), 30),
			report.FormatMbps(l.TotalBandwidthMbps),
			RenderBar(int(l.UtilizationInPercent), 100, 20),
			l.UtilizationInPercent, l.UtilizationOutPercent))
	}
	return d.section("Busiest Links", strings.Join(rows, "\n"))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
