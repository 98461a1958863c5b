package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/user/topomon/internal/daemon"
	"github.com/user/topomon/internal/model"
	"github.com/user/topomon/internal/report"
)

func sampleData() *DashboardData {
	links := []model.MergedLink{{ID: 1, DeviceAID: 1, DeviceBID: 2, TotalBandwidthMbps: 10000, UtilizationInPercent: 72.5, UtilizationOutPercent: 3}}
	return &DashboardData{
		Report: &report.Data{
			Devices: []model.Device{
				{ID: 1, Hostname: "core1", Status: model.StatusManaged},
				{ID: 2, Hostname: "acc1", Status: model.StatusOffline},
			},
			StatusCounts: map[model.DeviceStatus]int{model.StatusManaged: 1, model.StatusOffline: 1},
			Hostnames:    map[int64]string{1: "core1", 2: "acc1"},
			Links:        links,
			BusyLinks:    links,
			ActiveAlerts: []model.Alert{{
				ID:          7,
				Target:      model.DeviceTarget(2),
				Severity:    model.SeverityCritical,
				Message:     "Device acc1 (10.0.0.2) is offline",
				IsActive:    true,
				TriggeredAt: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
			}},
		},
		Daemon: &daemon.StatusFile{
			Running: true, PID: 4242, Uptime: "1h0m0s", DiscoveryRunning: true,
			LastCycle: &daemon.CycleStats{Devices: 2, Succeeded: 1, Failed: 1, MergedLinks: 1},
		},
	}
}

func TestDashboardView(t *testing.T) {
	d := NewDashboard(sampleData(), 160, 50)

	out := d.View()
	for _, want := range []string{"running (PID 4242)", "1/2 devices ok", "Devices (2)", "Active Alerts (1)", "acc1", "is offline"} {
		if !strings.Contains(out, want) {
			t.Errorf("alerts pane missing %q", want)
		}
	}

	d.Toggle()
	out = d.View()
	for _, want := range []string{"Busiest Links", "core1 <-> acc1", "10G", "72.5%"} {
		if !strings.Contains(out, want) {
			t.Errorf("links pane missing %q", want)
		}
	}
}

func TestDashboardEmpty(t *testing.T) {
	data := &DashboardData{Report: &report.Data{StatusCounts: map[model.DeviceStatus]int{}}}
	d := NewDashboard(data, 120, 40)

	out := d.View()
	for _, want := range []string{"not running", "No active alerts"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}
	d.Toggle()
	if !strings.Contains(d.View(), "No links merged yet") {
		t.Error("links pane missing empty notice")
	}
}

func TestModelUpdate(t *testing.T) {
	calls := 0
	m := newModel(func() (*DashboardData, error) {
		calls++
		return sampleData(), nil
	})

	next, _ := m.Update(tea.WindowSizeMsg{Width: 150, Height: 40})
	m = next.(dashboardModel)
	if !strings.Contains(m.View(), "Loading") {
		t.Errorf("view before data = %q", m.View())
	}

	msg := loadData(m.load)()
	next, cmd := m.Update(msg)
	m = next.(dashboardModel)
	if !m.ready || cmd == nil || calls != 1 {
		t.Fatalf("ready=%v cmd=%v calls=%d", m.ready, cmd != nil, calls)
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(dashboardModel)
	if m.dashboard.pane != paneLinks {
		t.Error("tab did not switch pane")
	}

	next, _ = m.Update(dataMsg{Data: sampleData()})
	m = next.(dashboardModel)
	if m.dashboard.pane != paneLinks {
		t.Error("refresh reset the selected pane")
	}

	next, _ = m.Update(errMsg{errors.New("database is locked")})
	m = next.(dashboardModel)
	if !strings.Contains(m.View(), "database is locked") {
		t.Error("error not rendered")
	}

	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}); cmd == nil {
		t.Error("q did not quit")
	}
}
