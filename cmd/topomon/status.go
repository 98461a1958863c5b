package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/user/topomon/internal/daemon"
	"github.com/user/topomon/internal/model"
	"github.com/user/topomon/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  "Show the daemon state, the last poll cycle and inventory counts.",
	RunE:  runStatus,
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86"))

	goodStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	badStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

func printField(label, value string) {
	fmt.Printf("  %s %s\n", labelStyle.Render(label), valueStyle.Render(value))
}

func runStatus(cmd *cobra.Command, args []string) error {
	running, pid := daemon.CheckRunning(cfg.DataDir)

	fmt.Println(titleStyle.Render("Topomon Status"))

	fmt.Print(labelStyle.Render("Daemon: "))
	if running {
		fmt.Println(goodStyle.Render(fmt.Sprintf("Running (PID %d)", pid)))
	} else {
		fmt.Println(badStyle.Render("Stopped"))
	}

	if sf, err := daemon.ReadStatusFile(cfg.DataDir); err == nil && running {
		printField("Started:", sf.StartTime)
		printField("Uptime:", sf.Uptime)
		discovery := "disabled"
		if sf.DiscoveryRunning {
			discovery = "enabled"
		}
		printField("Discovery:", discovery)
		if sf.DroppedEvents > 0 {
			printField("Dropped notifications:", fmt.Sprintf("%d", sf.DroppedEvents))
		}

		if c := sf.LastCycle; c != nil {
			fmt.Println()
			fmt.Println(titleStyle.Render("Last Poll Cycle"))
			printField("Devices:", fmt.Sprintf("%d (%d ok, %d failed)", c.Devices, c.Succeeded, c.Failed))
			printField("New links:", fmt.Sprintf("%d", c.NewLinks))
			printField("Onboarded:", fmt.Sprintf("%d", c.Onboarded))
			printField("Merged links:", fmt.Sprintf("%d", c.MergedLinks))
			printField("Alert changes:", fmt.Sprintf("%d", c.Transitions))
			printField("Duration:", c.Duration.String())
		}

		if len(sf.Jobs) > 0 {
			fmt.Println()
			fmt.Println(titleStyle.Render("Jobs"))

			for _, job := range sf.Jobs {
				state := "idle"
				if job.Running {
					state = "running"
				}
				line := fmt.Sprintf("%s (every %s, runs: %d, errors: %d, next: %s)",
					state, job.Interval, job.Runs, job.ErrorCount, job.NextRun.Format("15:04:05"))
				fmt.Printf("  %s: %s\n", labelStyle.Render(job.Name), valueStyle.Render(line))
				if job.LastError != "" {
					fmt.Printf("    %s\n", badStyle.Render(job.LastError))
				}
			}
		}
	}

	db, err := storage.Initialize(cfg.DataDir)
	if err != nil {
		return nil
	}
	defer db.Close()

	fmt.Println()
	fmt.Println(titleStyle.Render("Inventory"))

	if counts, err := storage.NewDeviceStorage(db).CountByStatus(); err == nil {
		for _, s := range []model.DeviceStatus{model.StatusManaged, model.StatusOffline, model.StatusUnknown, model.StatusUnmanaged, model.StatusExcluded} {
			if n := counts[s]; n > 0 {
				printField(string(s)+":", fmt.Sprintf("%d", n))
			}
		}
	}
	if links, err := storage.NewLinkStorage(db).ListMerged(); err == nil {
		printField("Links:", fmt.Sprintf("%d", len(links)))
	}
	if active, err := storage.NewAlertStorage(db).ListActive(); err == nil {
		style := goodStyle
		if len(active) > 0 {
			style = badStyle
		}
		fmt.Printf("  %s %s\n", labelStyle.Render("Active alerts:"), style.Render(fmt.Sprintf("%d", len(active))))
	}

	return nil
}
