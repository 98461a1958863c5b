package daemon

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/topomon/internal/alert"
	"github.com/user/topomon/internal/model"
	"github.com/user/topomon/internal/notify"
	"github.com/user/topomon/internal/snmp"
	"github.com/user/topomon/internal/storage"
	"github.com/user/topomon/internal/topology"
	"github.com/user/topomon/internal/util"
)

type fakeProber struct {
	polls      map[string]*snmp.PollResult
	identities map[string]*snmp.Identity
	identityN  atomic.Int64
}

func (f *fakeProber) PollDevice(ctx context.Context, t snmp.Target) *snmp.PollResult {
	if r, ok := f.polls[t.Address]; ok {
		return r
	}
	return &snmp.PollResult{Success: false}
}

func (f *fakeProber) GetIdentity(ctx context.Context, t snmp.Target) *snmp.Identity {
	f.identityN.Add(1)
	return f.identities[t.Address]
}

type capture struct {
	mu     sync.Mutex
	events []notify.Event
}

func (c *capture) Publish(e notify.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *capture) count(alertType model.AlertType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.AlertType == string(alertType) {
			n++
		}
	}
	return n
}

func testConfig(t *testing.T) *util.Config {
	t.Helper()
	cfg := util.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Poll.Concurrency = 4
	cfg.Discovery.ProbesPerSecond = 0
	return cfg
}

func openDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "daemon.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func addDevice(t *testing.T, db *storage.DB, d *model.Device) *model.Device {
	t.Helper()
	if d.Type == "" {
		d.Type = model.TypeAccess
	}
	if err := storage.NewDeviceStorage(db).Create(d); err != nil {
		t.Fatalf("create %s: %v", d.Hostname, err)
	}
	return d
}

func newTestPoller(t *testing.T, db *storage.DB, prober Prober, events *capture) *Poller {
	t.Helper()
	p := NewPoller(db, prober, topology.NewEngine(db), alert.NewEngine(db, events), events, testConfig(t))
	p.lookupHost = func(ctx context.Context, host string) ([]string, error) {
		return nil, errors.New("no such host")
	}
	return p
}

func success(neighbors ...snmp.Neighbor) *snmp.PollResult {
	return &snmp.PollResult{
		Success:   true,
		Identity:  &snmp.Identity{Vendor: "cisco_ios", UptimeSeconds: 100},
		Neighbors: neighbors,
		PolledAt:  time.Now(),
	}
}

func TestRunCycle(t *testing.T) {
	db := openDB(t)
	addDevice(t, db, &model.Device{Hostname: "core1", IP: "10.0.0.1", Type: model.TypeCore})
	addDevice(t, db, &model.Device{Hostname: "acc1", IP: "10.0.0.2"})
	dead := addDevice(t, db, &model.Device{Hostname: "dead", IP: "10.0.0.3"})
	addDevice(t, db, &model.Device{Hostname: "skipped", IP: "10.0.0.4", Status: model.StatusExcluded})

	prober := &fakeProber{polls: map[string]*snmp.PollResult{
		"10.0.0.1": success(snmp.Neighbor{LocalPort: "Gi0/1", RemoteHostname: "acc1", RemotePort: "Gi0/48", Protocol: "lldp"}),
		"10.0.0.2": success(snmp.Neighbor{LocalPort: "Gi0/48", RemoteHostname: "core1", RemotePort: "Gi0/1", Protocol: "cdp"}),
	}}
	events := &capture{}
	p := newTestPoller(t, db, prober, events)

	stats, err := p.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Devices != 3 || stats.Succeeded != 2 || stats.Failed != 1 {
		t.Errorf("stats = %+v, want 3 devices, 2 ok, 1 failed", stats)
	}
	if stats.NewLinks != 2 || stats.MergedLinks != 1 {
		t.Errorf("links: new=%d merged=%d, want 2 and 1", stats.NewLinks, stats.MergedLinks)
	}

	got, err := storage.NewDeviceStorage(db).Get(dead.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != model.StatusOffline {
		t.Errorf("dead status = %s, want offline", got.Status)
	}
	if _, err := storage.NewAlertStorage(db).GetActive(model.DeviceTarget(dead.ID), model.AlertDeviceOffline); err != nil {
		t.Errorf("offline alert missing: %v", err)
	}
	if events.count(model.AlertDeviceOffline) != 1 {
		t.Errorf("offline notifications = %d, want 1", events.count(model.AlertDeviceOffline))
	}

	// Seen links are not new on the next cycle.
	stats, err = p.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second RunCycle: %v", err)
	}
	if stats.NewLinks != 0 || stats.MergedLinks != 1 {
		t.Errorf("second cycle links: new=%d merged=%d", stats.NewLinks, stats.MergedLinks)
	}
	if events.count(model.AlertDeviceOffline) != 1 {
		t.Error("offline alert notified twice")
	}
}

func TestRunCycleNoDevices(t *testing.T) {
	p := newTestPoller(t, openDB(t), &fakeProber{}, &capture{})
	stats, err := p.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Devices != 0 || stats.MergedLinks != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestOnboardNeighbors(t *testing.T) {
	db := openDB(t)
	core := addDevice(t, db, &model.Device{Hostname: "core1", IP: "10.0.0.1", AutoDiscover: true})
	addDevice(t, db, &model.Device{Hostname: "manual", IP: "10.0.1.1"})

	prober := &fakeProber{
		polls: map[string]*snmp.PollResult{
			"10.0.0.1": success(
				snmp.Neighbor{LocalPort: "Gi0/1", RemoteHostname: "sw-chassis", RemoteChassisID: "10.0.0.50", Protocol: "lldp"},
				snmp.Neighbor{LocalPort: "Gi0/2", RemoteHostname: "sw-dns", RemoteChassisID: "00:11:22:33:44:55", Protocol: "lldp"},
				snmp.Neighbor{LocalPort: "Gi0/3", RemoteHostname: "sw-nowhere", RemoteChassisID: "aa:bb:cc:dd:ee:ff", Protocol: "cdp"},
			),
			"10.0.1.1": success(snmp.Neighbor{LocalPort: "Gi0/9", RemoteHostname: "not-onboarded", RemoteChassisID: "10.0.1.9"}),
		},
		identities: map[string]*snmp.Identity{"10.0.0.50": {Name: "sw-chassis", Vendor: "arista_eos"}},
	}
	events := &capture{}
	p := newTestPoller(t, db, prober, events)
	p.lookupHost = func(ctx context.Context, host string) ([]string, error) {
		if host == "sw-dns" {
			return []string{"fe80::1", "10.0.0.60"}, nil
		}
		return nil, errors.New("no such host")
	}

	stats, err := p.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if stats.Onboarded != 2 {
		t.Errorf("onboarded = %d, want 2", stats.Onboarded)
	}

	devices := storage.NewDeviceStorage(db)
	viaChassis, err := devices.GetByHostname("sw-chassis")
	if err != nil {
		t.Fatalf("sw-chassis not onboarded: %v", err)
	}
	if viaChassis.IP != "10.0.0.50" || viaChassis.Status != model.StatusManaged || viaChassis.Vendor != "arista_eos" {
		t.Errorf("sw-chassis = %+v", viaChassis)
	}
	if viaChassis.ParentID == nil || *viaChassis.ParentID != core.ID || !viaChassis.AutoDiscover {
		t.Errorf("sw-chassis parent/auto-discover not set: %+v", viaChassis)
	}

	viaDNS, err := devices.GetByHostname("sw-dns")
	if err != nil {
		t.Fatalf("sw-dns not onboarded: %v", err)
	}
	if viaDNS.IP != "10.0.0.60" || viaDNS.Status != model.StatusUnknown {
		t.Errorf("sw-dns = %+v, want 10.0.0.60 with unknown status", viaDNS)
	}

	for _, name := range []string{"sw-nowhere", "not-onboarded"} {
		if _, err := devices.GetByHostname(name); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("%s: err = %v, want ErrNotFound", name, err)
		}
	}
	if n := events.count(model.AlertNewDeviceDiscovered); n != 2 {
		t.Errorf("discovery events = %d, want 2", n)
	}
}

func TestExpandCIDR(t *testing.T) {
	tests := []struct {
		cidr  string
		limit int
		want  int
		first string
		last  string
	}{
		{"192.168.1.0/24", 0, 254, "192.168.1.1", "192.168.1.254"},
		{"192.168.1.77/24", 10, 10, "192.168.1.1", "192.168.1.10"},
		{"10.0.0.0/30", 0, 2, "10.0.0.1", "10.0.0.2"},
		{"10.0.0.0/31", 0, 2, "10.0.0.0", "10.0.0.1"},
		{"10.0.0.5/32", 0, 1, "10.0.0.5", "10.0.0.5"},
	}
	for _, tt := range tests {
		t.Run(tt.cidr, func(t *testing.T) {
			hosts, err := expandCIDR(tt.cidr, tt.limit)
			if err != nil {
				t.Fatalf("expandCIDR: %v", err)
			}
			if len(hosts) != tt.want {
				t.Fatalf("len = %d, want %d", len(hosts), tt.want)
			}
			if hosts[0] != tt.first || hosts[len(hosts)-1] != tt.last {
				t.Errorf("range = %s..%s, want %s..%s", hosts[0], hosts[len(hosts)-1], tt.first, tt.last)
			}
		})
	}

	for _, bad := range []string{"not-a-cidr", "2001:db8::/120", "10.0.0.0/33"} {
		if _, err := expandCIDR(bad, 0); err == nil {
			t.Errorf("expandCIDR(%q) succeeded", bad)
		}
	}
}

func TestScanSubnet(t *testing.T) {
	db := openDB(t)
	addDevice(t, db, &model.Device{Hostname: "known", IP: "10.9.0.3"})

	prober := &fakeProber{identities: map[string]*snmp.Identity{
		"10.9.0.2": {Name: "fresh", Vendor: "juniper_junos"},
		"10.9.0.3": {Name: "known", Vendor: "cisco_ios"},
	}}
	events := &capture{}
	cfg := testConfig(t)
	cfg.Discovery.BatchSize = 4
	s := NewSweeper(db, prober, events, cfg)

	res, err := s.ScanSubnet(context.Background(), "10.9.0.0/29")
	if err != nil {
		t.Fatalf("ScanSubnet: %v", err)
	}
	if res.Probed != 6 || res.Discovered != 2 || res.Added != 1 {
		t.Errorf("result = %+v, want probed 6, discovered 2, added 1", res)
	}

	fresh, err := storage.NewDeviceStorage(db).GetByIP("10.9.0.2")
	if err != nil {
		t.Fatalf("fresh device missing: %v", err)
	}
	if fresh.Hostname != "fresh" || fresh.Status != model.StatusManaged || !fresh.AutoDiscover {
		t.Errorf("fresh = %+v", fresh)
	}
	if fresh.Credentials.Community != cfg.SNMP.Community {
		t.Errorf("community = %q, want configured default", fresh.Credentials.Community)
	}
	if events.count(model.AlertNewDeviceDiscovered) != 1 {
		t.Errorf("discovery events = %d, want 1", events.count(model.AlertNewDeviceDiscovered))
	}
}

func TestSweepSkipsInvalidSubnet(t *testing.T) {
	cfg := testConfig(t)
	cfg.Discovery.Subnets = []string{"bogus", "10.8.0.0/30"}
	s := NewSweeper(openDB(t), &fakeProber{}, nil, cfg)

	results := s.Sweep(context.Background())
	if len(results) != 1 || results[0].Subnet != "10.8.0.0/30" || results[0].Probed != 2 {
		t.Errorf("results = %+v", results)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDiscoveryLoop(t *testing.T) {
	cfg := testConfig(t)
	cfg.Discovery.Subnets = []string{"10.7.0.0/30"}
	prober := &fakeProber{}
	s := NewSweeper(openDB(t), prober, nil, cfg)

	loop := NewDiscoveryLoop()
	if loop.Trigger() {
		t.Error("Trigger on a stopped loop returned true")
	}

	loop.Start(context.Background(), s, time.Hour)
	if !loop.Running() {
		t.Fatal("loop not running after Start")
	}
	waitFor(t, "initial sweep", func() bool {
		_, last := loop.LastResults()
		return !last.IsZero()
	})
	_, first := loop.LastResults()

	if !loop.Trigger() {
		t.Fatal("Trigger returned false")
	}
	waitFor(t, "triggered sweep", func() bool {
		_, last := loop.LastResults()
		return last.After(first)
	})
	if n := prober.identityN.Load(); n != 4 {
		t.Errorf("probes = %d, want 4", n)
	}

	loop.StopAndWait(time.Second)
	if loop.Running() || loop.Trigger() {
		t.Error("loop still active after stop")
	}
}

func TestSchedulerTriggerJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(ctx)
	s.initialDelay = time.Hour
	s.tick = 5 * time.Millisecond

	var runs atomic.Int64
	s.AddJob(&Job{Name: "work", Interval: time.Hour, Run: func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("boom")
	}})

	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	if s.TriggerJob("missing") {
		t.Error("TriggerJob on unknown job returned true")
	}
	if !s.TriggerJob("work") {
		t.Fatal("TriggerJob returned false")
	}
	waitFor(t, "job run", func() bool { return runs.Load() == 1 })
	waitFor(t, "job status", func() bool {
		st := s.GetJobStatuses()
		return len(st) == 1 && st[0].Runs == 1 && !st[0].Running
	})

	st := s.GetJobStatuses()[0]
	if st.ErrorCount != 1 || st.LastError != "boom" {
		t.Errorf("status = %+v", st)
	}
	if d := time.Until(st.NextRun); d > 31*time.Minute || d < 29*time.Minute {
		t.Errorf("retry in %s, want half the interval", d)
	}

	if !s.SetInterval("work", time.Minute) || s.SetInterval("work", 0) {
		t.Error("SetInterval validation wrong")
	}
	if s.GetJob("work").Interval != time.Minute {
		t.Error("interval not updated")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestApplyConfig(t *testing.T) {
	cfg := testConfig(t)
	d := newDaemon(cfg, openDB(t), &fakeProber{})
	t.Cleanup(func() {
		d.discovery.StopAndWait(time.Second)
		d.cancel()
	})
	d.registerJobs()
	d.running = true

	next := *cfg
	next.Poll.Interval = 42 * time.Second
	next.Discovery.Enabled = true
	next.Discovery.Subnets = []string{"10.6.0.0/30"}
	d.ApplyConfig(&next)

	if got := d.scheduler.GetJob(jobPoll).Interval; got != 42*time.Second {
		t.Errorf("poll interval = %s", got)
	}
	if !d.discovery.Running() || !d.TriggerDiscovery() {
		t.Fatal("discovery not started by config change")
	}

	if err := d.UpdateDiscovery(util.DiscoveryConfig{Enabled: true, Interval: time.Hour, Subnets: []string{"bad"}, BatchSize: 1, MaxHosts: 1, ProbeTimeout: time.Second}); err == nil {
		t.Error("invalid discovery settings accepted")
	}

	off := next.Discovery
	off.Enabled = false
	if err := d.UpdateDiscovery(off); err != nil {
		t.Fatalf("UpdateDiscovery: %v", err)
	}
	if d.discovery.Running() {
		t.Error("discovery still running after disable")
	}
	if st := d.Discovery(); st.Running || st.Settings.Enabled {
		t.Errorf("discovery status = %+v", st)
	}
}

func TestStatusFile(t *testing.T) {
	dir := t.TempDir()
	status := &DaemonStatus{
		Running:   true,
		PID:       4242,
		StartTime: time.Now().Add(-time.Minute),
		Uptime:    time.Minute,
		LastCycle: &CycleStats{Devices: 3, Succeeded: 2, Failed: 1},
		Jobs:      []JobStatus{{Name: jobPoll, Runs: 5}},
	}
	if err := WriteStatusFile(dir, status); err != nil {
		t.Fatalf("WriteStatusFile: %v", err)
	}
	sf, err := ReadStatusFile(dir)
	if err != nil {
		t.Fatalf("ReadStatusFile: %v", err)
	}
	if sf.PID != 4242 || sf.Uptime != "1m0s" || sf.LastCycle == nil || sf.LastCycle.Failed != 1 || len(sf.Jobs) != 1 {
		t.Errorf("status file = %+v", sf)
	}

	if running, _ := CheckRunning(dir); running {
		t.Error("CheckRunning without pid file reported running")
	}
}

func TestOneShotOperations(t *testing.T) {
	db := openDB(t)
	addDevice(t, db, &model.Device{Hostname: "core1", IP: "10.0.0.1"})

	prober := &fakeProber{
		polls:      map[string]*snmp.PollResult{"10.0.0.1": success()},
		identities: map[string]*snmp.Identity{"10.0.0.9": {Name: "sw9", Vendor: "arista_eos"}},
	}
	cfg := testConfig(t)
	cfg.Discovery.Subnets = []string{"10.0.0.8/30"}
	d := newDaemon(cfg, db, prober)
	t.Cleanup(d.cancel)

	stats, err := d.PollOnce(context.Background())
	if err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if stats.Devices != 1 || stats.Succeeded != 1 {
		t.Errorf("stats = %+v", stats)
	}

	if id := d.Probe(context.Background(), "10.0.0.9"); id == nil || id.Name != "sw9" {
		t.Errorf("probe = %+v", id)
	}
	if id := d.Probe(context.Background(), "10.0.0.10"); id != nil {
		t.Errorf("silent host answered: %+v", id)
	}

	d2 := newDaemon(cfg, db, prober)
	t.Cleanup(d2.cancel)
	results := d2.DiscoverOnce(context.Background())
	if len(results) != 1 || results[0].Added != 1 {
		t.Errorf("discover results = %+v", results)
	}
}
