// Package report renders topology and alert reports as markdown, Mermaid
// diagrams and Excel workbooks.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/user/topomon/internal/model"
	"github.com/user/topomon/internal/storage"
	"github.com/user/topomon/internal/topology"
	"github.com/user/topomon/internal/util"
)

// topLinkCount bounds the busiest-links table.
const topLinkCount = 10

// Generator creates reports.
type Generator struct {
	db       *storage.DB
	config   *util.Config
	topology *topology.Engine
	devices  *storage.DeviceStorage
	links    *storage.LinkStorage
	alerts   *storage.AlertStorage
	now      func() time.Time
}

// NewGenerator creates a new report generator.
func NewGenerator(db *storage.DB, cfg *util.Config) *Generator {
	return &Generator{
		db:       db,
		config:   cfg,
		topology: topology.NewEngine(db),
		devices:  storage.NewDeviceStorage(db),
		links:    storage.NewLinkStorage(db),
		alerts:   storage.NewAlertStorage(db),
		now:      time.Now,
	}
}

// Options selects what a report covers.
type Options struct {
	Since   time.Time
	View    topology.ViewKind
	GroupID int64
}

// Data holds all data for a report.
type Data struct {
	GeneratedAt time.Time
	Since       time.Time

	Devices      []model.Device
	StatusCounts map[model.DeviceStatus]int
	Hostnames    map[int64]string

	Topology  *topology.Topology
	Links     []model.MergedLink
	BusyLinks []model.MergedLink

	ActiveAlerts []model.Alert
	RecentAlerts []model.Alert
}

// LinkName names a link by its endpoints.
func (d *Data) LinkName(l model.MergedLink) string {
	return fmt.Sprintf("%s <-> %s", d.hostname(l.DeviceAID), d.hostname(l.DeviceBID))
}

// TargetName names the device or link an alert is about.
func (d *Data) TargetName(a model.Alert) string {
	if id, ok := a.Target.DeviceID(); ok {
		return d.hostname(id)
	}
	if id, ok := a.Target.LinkID(); ok {
		for _, l := range d.Links {
			if l.ID == id {
				return d.LinkName(l)
			}
		}
	}
	return a.Target.Key()
}

func (d *Data) hostname(id int64) string {
	if name, ok := d.Hostnames[id]; ok {
		return name
	}
	return fmt.Sprintf("device-%d", id)
}

// Generate collects the report data.
func (g *Generator) Generate(opts Options) (*Data, error) {
	data := &Data{
		GeneratedAt: g.now(),
		Since:       opts.Since,
		Hostnames:   make(map[int64]string),
	}

	devices, err := g.devices.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	data.Devices = devices
	for _, d := range devices {
		data.Hostnames[d.ID] = d.Hostname
	}

	data.StatusCounts, err = g.devices.CountByStatus()
	if err != nil {
		return nil, fmt.Errorf("failed to count devices: %w", err)
	}

	data.Links, err = g.links.ListMerged()
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	data.BusyLinks = busiest(data.Links, topLinkCount)

	view := opts.View
	if view == "" {
		view = topology.ViewFull
	}
	data.Topology, err = g.topology.View(view, opts.GroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s view: %w", view, err)
	}

	data.ActiveAlerts, err = g.alerts.ListActive()
	if err != nil {
		return nil, fmt.Errorf("failed to list active alerts: %w", err)
	}

	filter := storage.AlertFilter{Limit: 500}
	if !opts.Since.IsZero() {
		since := opts.Since
		filter.Since = &since
	}
	data.RecentAlerts, err = g.alerts.List(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}

	return data, nil
}

// busiest returns up to n non-excluded links by peak utilization.
func busiest(links []model.MergedLink, n int) []model.MergedLink {
	var out []model.MergedLink
	for _, l := range links {
		if !l.IsExcluded {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PeakUtilization() > out[j].PeakUtilization()
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
