// Package daemon runs the poll cycle, the discovery loop and the job
// scheduler as a background service.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/user/topomon/internal/alert"
	"github.com/user/topomon/internal/model"
	"github.com/user/topomon/internal/notify"
	"github.com/user/topomon/internal/snmp"
	"github.com/user/topomon/internal/storage"
	"github.com/user/topomon/internal/topology"
	"github.com/user/topomon/internal/util"
)

const pidFileName = "topomon.pid"

// Daemon manages the background service.
type Daemon struct {
	config     *util.Config
	db         *storage.DB
	prober     Prober
	topology   *topology.Engine
	alerts     *alert.Engine
	dispatcher *notify.Dispatcher
	poller     *Poller
	discovery  *DiscoveryLoop
	scheduler  *Scheduler
	pidFile    string
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	running    bool
	startTime  time.Time
	lastCycle  *CycleStats
	mu         sync.RWMutex
}

// New creates a daemon that polls devices over SNMP.
func New(cfg *util.Config) (*Daemon, error) {
	db, err := storage.Initialize(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	transport := snmp.NewGoSNMPTransport(cfg.SNMP.Port, cfg.SNMP.MaxRepetitions)
	return newDaemon(cfg, db, snmp.NewCollector(transport, cfg.SNMP.WalkMaxResults)), nil
}

func newDaemon(cfg *util.Config, db *storage.DB, prober Prober) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())

	dispatcher := notify.FromConfig(cfg.Notify)
	topo := topology.NewEngine(db)
	alerts := alert.NewEngine(db, dispatcher)

	d := &Daemon{
		config:     cfg,
		db:         db,
		prober:     prober,
		topology:   topo,
		alerts:     alerts,
		dispatcher: dispatcher,
		poller:     NewPoller(db, prober, topo, alerts, dispatcher, cfg),
		discovery:  NewDiscoveryLoop(),
		pidFile:    filepath.Join(cfg.DataDir, pidFileName),
		ctx:        ctx,
		cancel:     cancel,
	}
	d.scheduler = NewScheduler(ctx)
	return d
}

// Start starts the scheduler, the notification worker and, when enabled,
// the discovery loop.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon already running")
	}
	d.running = true
	d.startTime = time.Now()
	cfg := d.config
	d.mu.Unlock()

	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	util.Info("Daemon starting...")

	d.dispatcher.Start(d.ctx)
	d.registerJobs()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.scheduler.Run()
	}()

	if cfg.Discovery.Enabled {
		d.startDiscovery(cfg)
	}

	util.WatchConfig(d.ApplyConfig)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.handleSignals()
	}()

	util.Info("Daemon started with PID %d", os.Getpid())
	return nil
}

// Wait waits for the daemon to finish.
func (d *Daemon) Wait() {
	d.wg.Wait()
}

// Stop stops the daemon gracefully.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	util.Info("Daemon stopping...")

	d.discovery.StopAndWait(10 * time.Second)
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		util.Info("Daemon stopped gracefully")
	case <-time.After(30 * time.Second):
		util.Warn("Daemon stop timed out")
	}

	d.dispatcher.Close()
	d.removePIDFile()
	if d.db != nil {
		d.db.Close()
	}
	return nil
}

func (d *Daemon) handleSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		util.Info("Received signal: %v", sig)
		go d.Stop()
	case <-d.ctx.Done():
	}
}

func (d *Daemon) writePIDFile() error {
	return os.WriteFile(d.pidFile, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func (d *Daemon) removePIDFile() {
	os.Remove(d.pidFile)
}

// ApplyConfig switches the daemon to cfg. Poll settings apply from the
// next cycle; a discovery change restarts the discovery loop. Notification
// destinations are fixed for the life of the process.
func (d *Daemon) ApplyConfig(cfg *util.Config) {
	d.mu.Lock()
	prev := d.config
	d.config = cfg
	running := d.running
	d.mu.Unlock()

	util.GetLogger().SetLevel(util.ParseLevel(cfg.LogLevel))
	d.poller.Configure(cfg)
	d.scheduler.SetInterval(jobPoll, cfg.Poll.Interval)

	if !running || !prev.DiscoveryChanged(cfg) {
		return
	}
	if cfg.Discovery.Enabled {
		util.Info("Discovery settings changed, restarting discovery")
		d.startDiscovery(cfg)
	} else {
		d.discovery.Stop()
	}
}

// UpdateDiscovery replaces the discovery settings of the running config.
func (d *Daemon) UpdateDiscovery(settings util.DiscoveryConfig) error {
	d.mu.RLock()
	next := *d.config
	d.mu.RUnlock()

	next.Discovery = settings
	if err := next.Validate(); err != nil {
		return err
	}
	d.ApplyConfig(&next)
	return nil
}

func (d *Daemon) startDiscovery(cfg *util.Config) {
	sweeper := NewSweeper(d.db, d.prober, d.dispatcher, cfg)
	d.discovery.Start(d.ctx, sweeper, cfg.Discovery.Interval)
}

// TriggerDiscovery requests an immediate sweep. It returns false when
// discovery is disabled.
func (d *Daemon) TriggerDiscovery() bool {
	return d.discovery.Trigger()
}

// DiscoveryStatus describes the discovery loop.
type DiscoveryStatus struct {
	Settings    util.DiscoveryConfig `json:"settings"`
	Running     bool                 `json:"running"`
	LastRun     *time.Time           `json:"last_run,omitempty"`
	LastResults []model.ScanResult   `json:"last_results"`
}

// Discovery returns the discovery settings and the most recent results.
func (d *Daemon) Discovery() DiscoveryStatus {
	d.mu.RLock()
	settings := d.config.Discovery
	d.mu.RUnlock()

	results, last := d.discovery.LastResults()
	st := DiscoveryStatus{
		Settings:    settings,
		Running:     d.discovery.Running(),
		LastResults: results,
	}
	if !last.IsZero() {
		st.LastRun = &last
	}
	return st
}

// IsRunning returns whether the daemon is running.
func (d *Daemon) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// GetStatus returns the daemon status.
func (d *Daemon) GetStatus() *DaemonStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return &DaemonStatus{
		Running:   d.running,
		PID:       os.Getpid(),
		StartTime: d.startTime,
		Uptime:    time.Since(d.startTime),
		Jobs:      d.scheduler.GetJobStatuses(),
		LastCycle: d.lastCycle,
		Discovery: d.discovery.Running(),
		Dropped:   d.dispatcher.Dropped(),
	}
}

// DaemonStatus holds the current daemon status.
type DaemonStatus struct {
	Running   bool
	PID       int
	StartTime time.Time
	Uptime    time.Duration
	Jobs      []JobStatus
	LastCycle *CycleStats
	Discovery bool
	Dropped   int
}

// GetDB returns the database instance.
func (d *Daemon) GetDB() *storage.DB {
	return d.db
}

// GetConfig returns the configuration.
func (d *Daemon) GetConfig() *util.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// Topology returns the topology engine.
func (d *Daemon) Topology() *topology.Engine {
	return d.topology
}

// Alerts returns the alert engine.
func (d *Daemon) Alerts() *alert.Engine {
	return d.alerts
}
