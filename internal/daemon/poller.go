package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/user/topomon/internal/alert"
	"github.com/user/topomon/internal/model"
	"github.com/user/topomon/internal/notify"
	"github.com/user/topomon/internal/snmp"
	"github.com/user/topomon/internal/storage"
	"github.com/user/topomon/internal/topology"
	"github.com/user/topomon/internal/util"
)

// Prober is the part of the SNMP collector the orchestrator uses.
type Prober interface {
	PollDevice(ctx context.Context, t snmp.Target) *snmp.PollResult
	GetIdentity(ctx context.Context, t snmp.Target) *snmp.Identity
}

// CycleStats summarizes one poll cycle.
type CycleStats struct {
	Devices     int           `json:"devices"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	NewLinks    int           `json:"new_links"`
	Onboarded   int           `json:"onboarded"`
	MergedLinks int           `json:"merged_links"`
	Transitions int           `json:"alert_transitions"`
	Duration    time.Duration `json:"duration"`
}

// Poller runs poll cycles: every pollable device is polled under a
// concurrency limit, then links are merged and alerts checked.
type Poller struct {
	devices  *storage.DeviceStorage
	links    *storage.LinkStorage
	prober   Prober
	topology *topology.Engine
	alerts   *alert.Engine
	notifier notify.Publisher

	mu          sync.RWMutex
	snmp        util.SNMPConfig
	concurrency int

	lookupHost func(ctx context.Context, host string) ([]string, error)
}

// NewPoller creates a poller. notifier may be nil.
func NewPoller(db *storage.DB, prober Prober, topo *topology.Engine, alerts *alert.Engine, notifier notify.Publisher, cfg *util.Config) *Poller {
	return &Poller{
		devices:     storage.NewDeviceStorage(db),
		links:       storage.NewLinkStorage(db),
		prober:      prober,
		topology:    topo,
		alerts:      alerts,
		notifier:    notifier,
		snmp:        cfg.SNMP,
		concurrency: cfg.Poll.Concurrency,
		lookupHost:  net.DefaultResolver.LookupHost,
	}
}

// Configure applies new SNMP defaults and poll concurrency.
func (p *Poller) Configure(cfg *util.Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snmp = cfg.SNMP
	p.concurrency = cfg.Poll.Concurrency
}

func (p *Poller) settings() (util.SNMPConfig, int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snmp, p.concurrency
}

// DefaultCredentials converts the configured SNMP defaults.
func DefaultCredentials(c util.SNMPConfig) model.Credentials {
	return model.Credentials{
		Version:   c.Version,
		Community: c.Community,
		V3User:    c.V3User,
		V3Auth:    c.V3AuthKey,
		V3Priv:    c.V3PrivKey,
	}
}

// targetFor builds the SNMP target of a device, falling back to the
// configured default credentials.
func targetFor(d *model.Device, cfg util.SNMPConfig) snmp.Target {
	cred := d.Credentials
	if cred.IsZero() {
		cred = DefaultCredentials(cfg)
	}
	return snmp.Target{
		Address:     d.IP,
		Credentials: cred,
		Timeout:     cfg.Timeout,
		Retries:     cfg.Retries,
	}
}

// RunCycle polls every device once, then merges links and checks alerts.
// A failed device never aborts the cycle.
func (p *Poller) RunCycle(ctx context.Context) (*CycleStats, error) {
	start := time.Now()
	cfg, limit := p.settings()
	if limit <= 0 {
		limit = 1
	}

	devices, err := p.devices.ListPollable()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	util.Info("Poll cycle starting for %d devices", len(devices))

	stats := &CycleStats{Devices: len(devices)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range devices {
		d := &devices[i]
		g.Go(func() error {
			res := p.pollOne(gctx, d, cfg)
			mu.Lock()
			defer mu.Unlock()
			if res.ok {
				stats.Succeeded++
			} else {
				stats.Failed++
			}
			stats.NewLinks += res.newLinks
			stats.Onboarded += res.onboarded
			return nil
		})
	}
	g.Wait()

	merged, err := p.topology.MergeLinks()
	if err != nil {
		return stats, fmt.Errorf("link merge failed: %w", err)
	}
	stats.MergedLinks = len(merged)

	result, err := p.alerts.Check()
	if err != nil {
		return stats, fmt.Errorf("alert check failed: %w", err)
	}
	stats.Transitions = len(result.Transitions)
	stats.Duration = time.Since(start)

	util.Info("Poll cycle complete: %d ok, %d failed, %d new links, %d onboarded, %d merged links, %d alert transitions in %s",
		stats.Succeeded, stats.Failed, stats.NewLinks, stats.Onboarded, stats.MergedLinks, stats.Transitions,
		stats.Duration.Round(time.Millisecond))
	return stats, nil
}

type pollOutcome struct {
	ok        bool
	newLinks  int
	onboarded int
}

func (p *Poller) pollOne(ctx context.Context, d *model.Device, cfg util.SNMPConfig) pollOutcome {
	target := targetFor(d, cfg)
	res := p.prober.PollDevice(ctx, target)
	if res == nil || !res.Success {
		util.Warn("Device %s (%s) did not respond", d.Hostname, d.IP)
		if err := p.devices.SetStatus(d.ID, model.StatusOffline); err != nil {
			util.Warn("Failed to mark %s offline: %v", d.Hostname, err)
		}
		return pollOutcome{}
	}

	out := pollOutcome{ok: true}
	if err := p.devices.UpdateHealth(d.ID, res.Identity.Vendor, res.Metrics.CPUPercent, res.Metrics.MemoryPercent, res.Identity.UptimeSeconds); err != nil {
		util.Warn("Failed to update health of %s: %v", d.Hostname, err)
	}

	if err := p.saveSamples(d.ID, res); err != nil {
		util.Warn("Failed to save interface samples of %s: %v", d.Hostname, err)
	}

	for _, n := range res.Neighbors {
		inserted, err := p.links.UpsertRaw(&model.RawLink{
			LocalDeviceID:   d.ID,
			LocalPort:       n.LocalPort,
			LocalPortIndex:  n.LocalPortIndex,
			RemoteHostname:  n.RemoteHostname,
			RemotePort:      n.RemotePort,
			RemoteChassisID: n.RemoteChassisID,
			Protocol:        n.Protocol,
		})
		if err != nil {
			util.Warn("Failed to store neighbor %s of %s: %v", n.RemoteHostname, d.Hostname, err)
			continue
		}
		if !inserted {
			continue
		}
		out.newLinks++
		if d.AutoDiscover && p.onboard(ctx, d, n, target.Credentials, cfg) {
			out.onboarded++
		}
	}
	util.Debug("Polled %s: %d neighbors, %d interfaces", d.Hostname, len(res.Neighbors), len(res.Interfaces))
	return out
}

func (p *Poller) saveSamples(deviceID int64, res *snmp.PollResult) error {
	if len(res.Interfaces) == 0 {
		return nil
	}
	prev, err := p.links.Samples(deviceID)
	if err != nil {
		return err
	}
	samples := make([]model.InterfaceSample, 0, len(res.Interfaces))
	for _, iface := range res.Interfaces {
		samples = append(samples, model.InterfaceSample{
			DeviceID:  deviceID,
			PortIndex: iface.Index,
			PortName:  iface.Name,
			SpeedMbps: iface.SpeedMbps,
			InOctets:  iface.InOctets,
			OutOctets: iface.OutOctets,
			SampledAt: res.PolledAt.UTC(),
		})
	}
	topology.ComputeRates(prev, samples)
	return p.links.SaveSamples(samples)
}

// onboard adds a newly seen neighbor as a device. The address comes from
// the chassis id when it is an IPv4 address, else from name resolution.
// The identity probe is best effort: a silent neighbor is still added.
func (p *Poller) onboard(ctx context.Context, parent *model.Device, n snmp.Neighbor, cred model.Credentials, cfg util.SNMPConfig) bool {
	if n.RemoteHostname == "" {
		return false
	}
	if _, err := p.devices.GetByHostname(n.RemoteHostname); err == nil {
		return false
	} else if !errors.Is(err, model.ErrNotFound) {
		util.Warn("Failed to look up neighbor %s: %v", n.RemoteHostname, err)
		return false
	}

	addr := p.neighborAddress(ctx, n)
	if addr == "" {
		util.Debug("No address for neighbor %s, skipping onboarding", n.RemoteHostname)
		return false
	}
	if _, err := p.devices.GetByIP(addr); err == nil {
		return false
	}

	dev := &model.Device{
		Hostname:     n.RemoteHostname,
		IP:           addr,
		Credentials:  cred,
		Type:         model.TypeAccess,
		ParentID:     &parent.ID,
		AutoDiscover: true,
		Status:       model.StatusUnknown,
	}
	id := p.prober.GetIdentity(ctx, snmp.Target{Address: addr, Credentials: cred, Timeout: cfg.Timeout, Retries: cfg.Retries})
	if id != nil {
		dev.Vendor = id.Vendor
		dev.Status = model.StatusManaged
	}

	if err := p.devices.Create(dev); err != nil {
		util.Warn("Failed to onboard neighbor %s: %v", n.RemoteHostname, err)
		return false
	}
	util.Info("Onboarded neighbor %s (%s) via %s", dev.Hostname, dev.IP, parent.Hostname)
	if p.notifier != nil {
		p.notifier.Publish(notify.DiscoveryEvent(model.AlertNewDeviceDiscovered, *dev, map[string]interface{}{
			"discovered_by": parent.Hostname,
			"protocol":      n.Protocol,
		}))
	}
	return true
}

func (p *Poller) neighborAddress(ctx context.Context, n snmp.Neighbor) string {
	if ip := net.ParseIP(n.RemoteChassisID); ip != nil && ip.To4() != nil {
		return ip.String()
	}
	if p.lookupHost == nil {
		return ""
	}
	lctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	addrs, err := p.lookupHost(lctx, n.RemoteHostname)
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			return ip.String()
		}
	}
	return ""
}
