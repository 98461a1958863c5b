package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/topomon/internal/daemon"
)

var (
	discoverSubnets []string
	probeTimeout    time.Duration
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run one poll cycle",
	Long: `Poll every managed device once, merge links and evaluate alerts,
then exit. Notifications are delivered as in daemon mode.`,
	RunE: runPoll,
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Sweep subnets for SNMP devices once",
	Long: `Probe every host of the configured discovery subnets and add the
devices that answer. The enabled flag is ignored.

Examples:
  topomon discover
  topomon discover --subnet 10.0.0.0/24 --subnet 10.1.0.0/24`,
	RunE: runDiscover,
}

var probeCmd = &cobra.Command{
	Use:   "probe <address>",
	Short: "Query a host's SNMP identity",
	Long:  "Ask a host for sysName, sysDescr and sysUpTime using the default credentials.",
	Args:  cobra.ExactArgs(1),
	RunE:  runProbe,
}

func init() {
	discoverCmd.Flags().StringSliceVar(&discoverSubnets, "subnet", nil,
		"Subnet to sweep in CIDR notation (repeatable, default: discovery.subnets)")
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 0,
		"SNMP timeout (default: snmp.timeout)")
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runPoll(cmd *cobra.Command, args []string) error {
	if running, pid := daemon.CheckRunning(cfg.DataDir); running {
		fmt.Printf("Note: daemon is running (PID %d); this cycle runs alongside it\n", pid)
	}

	d, err := daemon.New(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := signalContext()
	defer cancel()

	stats, err := d.PollOnce(ctx)
	if stats != nil {
		fmt.Printf("Polled %d devices: %d ok, %d failed\n", stats.Devices, stats.Succeeded, stats.Failed)
		fmt.Printf("  New links: %d, onboarded: %d, merged links: %d\n", stats.NewLinks, stats.Onboarded, stats.MergedLinks)
		fmt.Printf("  Alert changes: %d in %s\n", stats.Transitions, stats.Duration.Round(time.Millisecond))
	}
	return err
}

func runDiscover(cmd *cobra.Command, args []string) error {
	run := *cfg
	if len(discoverSubnets) > 0 {
		run.Discovery.Subnets = discoverSubnets
		if err := run.Validate(); err != nil {
			return err
		}
	}
	if len(run.Discovery.Subnets) == 0 {
		return fmt.Errorf("no subnets configured; pass --subnet or set discovery.subnets")
	}

	d, err := daemon.New(&run)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := signalContext()
	defer cancel()

	for _, r := range d.DiscoverOnce(ctx) {
		fmt.Printf("%-18s probed %d, answered %d, added %d\n", r.Subnet, r.Probed, r.Discovered, r.Added)
	}
	return ctx.Err()
}

func runProbe(cmd *cobra.Command, args []string) error {
	addr := args[0]
	if _, _, err := net.SplitHostPort(addr); err != nil && net.ParseIP(addr) == nil {
		if _, err := net.LookupHost(addr); err != nil {
			return fmt.Errorf("cannot resolve %s: %w", addr, err)
		}
	}

	run := *cfg
	if probeTimeout > 0 {
		run.SNMP.Timeout = probeTimeout
	}
	d, err := daemon.New(&run)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := signalContext()
	defer cancel()

	id := d.Probe(ctx, addr)
	if id == nil {
		return fmt.Errorf("%s did not answer SNMP", addr)
	}
	printField("Name:", id.Name)
	printField("Vendor:", id.Vendor)
	printField("Uptime:", (time.Duration(id.UptimeSeconds) * time.Second).String())
	printField("Description:", id.Description)
	return nil
}
