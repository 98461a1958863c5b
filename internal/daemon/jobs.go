package daemon

import (
	"context"
	"time"

	"github.com/user/topomon/internal/model"
	"github.com/user/topomon/internal/snmp"
	"github.com/user/topomon/internal/util"
)

const (
	jobPoll   = "poll"
	jobStatus = "status"

	statusInterval = 30 * time.Second
)

// registerJobs registers the poll cycle and the status file writer.
func (d *Daemon) registerJobs() {
	d.scheduler.AddJob(&Job{
		Name:     jobPoll,
		Interval: d.GetConfig().Poll.Interval,
		Run:      d.runPoll,
	})

	d.scheduler.AddJob(&Job{
		Name:     jobStatus,
		Interval: statusInterval,
		Run:      d.runStatus,
	})
}

func (d *Daemon) runPoll(ctx context.Context) error {
	stats, err := d.poller.RunCycle(ctx)
	if stats != nil {
		d.mu.Lock()
		d.lastCycle = stats
		d.mu.Unlock()
	}
	if err != nil {
		return err
	}
	return d.runStatus(ctx)
}

func (d *Daemon) runStatus(ctx context.Context) error {
	if err := WriteStatusFile(d.GetConfig().DataDir, d.GetStatus()); err != nil {
		util.Warn("Failed to write status file: %v", err)
		return err
	}
	return nil
}

// TriggerPoll makes the poll job due immediately.
func (d *Daemon) TriggerPoll() bool {
	return d.scheduler.TriggerJob(jobPoll)
}

// PollOnce runs a single poll cycle outside the scheduler, delivering any
// notifications before it returns.
func (d *Daemon) PollOnce(ctx context.Context) (*CycleStats, error) {
	d.dispatcher.Start(ctx)
	defer d.dispatcher.Close()
	return d.poller.RunCycle(ctx)
}

// DiscoverOnce sweeps the configured subnets once, ignoring the enabled
// flag.
func (d *Daemon) DiscoverOnce(ctx context.Context) []model.ScanResult {
	d.dispatcher.Start(ctx)
	defer d.dispatcher.Close()
	return NewSweeper(d.db, d.prober, d.dispatcher, d.GetConfig()).Sweep(ctx)
}

// Probe asks addr for its identity using the default credentials. It
// returns nil when the host does not answer.
func (d *Daemon) Probe(ctx context.Context, addr string) *snmp.Identity {
	cfg := d.GetConfig().SNMP
	return d.prober.GetIdentity(ctx, snmp.Target{
		Address:     addr,
		Credentials: DefaultCredentials(cfg),
		Timeout:     cfg.Timeout,
		Retries:     cfg.Retries,
	})
}

// Close releases a daemon that was never started.
func (d *Daemon) Close() error {
	d.cancel()
	return d.db.Close()
}
