package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/topomon/internal/report"
	"github.com/user/topomon/internal/storage"
	"github.com/user/topomon/internal/topology"
)

var (
	reportLast    string
	reportView    string
	reportGroup   int64
	reportOutput  string
	reportMermaid bool
	exportOutput  string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a topology report",
	Long: `Generate a Markdown report with a Mermaid topology diagram, the busiest
links and the alerts raised in the selected time range.

Examples:
  topomon report --last 24h
  topomon report --last 7d --view full
  topomon report --view group --group 3 --mermaid
  topomon report --output -`,
	RunE: runReport,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the inventory to Excel",
	Long: `Export devices, links and alerts to an .xlsx workbook.

Examples:
  topomon export
  topomon export --last 7d --output inventory.xlsx`,
	RunE: runExport,
}

func init() {
	reportCmd.Flags().StringVar(&reportLast, "last", "24h",
		"Time range (e.g., 1h, 24h, 7d, 2w)")
	reportCmd.Flags().StringVar(&reportView, "view", "full",
		"Topology view (overview, group, full)")
	reportCmd.Flags().Int64Var(&reportGroup, "group", 0,
		"Group id for the group view")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "",
		"Output file path, - for stdout (default: auto-generated)")
	reportCmd.Flags().BoolVar(&reportMermaid, "mermaid", false,
		"Print only the Mermaid diagram")

	exportCmd.Flags().StringVar(&reportLast, "last", "24h",
		"Time range for the alerts sheet")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "",
		"Output file path (default: report_output_dir/topomon-inventory-<time>.xlsx)")
}

func generateReport(view topology.ViewKind, groupID int64) (*report.Data, error) {
	duration, err := parseDuration(reportLast)
	if err != nil {
		return nil, fmt.Errorf("invalid time range: %w", err)
	}

	db, err := storage.Initialize(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	data, err := report.NewGenerator(db, cfg).Generate(report.Options{
		Since:   time.Now().Add(-duration),
		View:    view,
		GroupID: groupID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate report: %w", err)
	}
	return data, nil
}

func runReport(cmd *cobra.Command, args []string) error {
	view, err := topology.ParseViewKind(reportView)
	if err != nil {
		return err
	}
	if view == topology.ViewGroup && reportGroup <= 0 {
		return fmt.Errorf("--view group needs --group")
	}

	data, err := generateReport(view, reportGroup)
	if err != nil {
		return err
	}

	if reportMermaid {
		fmt.Print(report.TopologyDiagram(data.Topology))
		return nil
	}

	switch reportOutput {
	case "":
		path, err := report.WriteMarkdownFile(data, cfg.ReportOutputDir)
		if err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Printf("Report saved to: %s\n", path)
	case "-":
		fmt.Println(report.FormatMarkdown(data))
		return nil
	default:
		if err := os.WriteFile(reportOutput, []byte(report.FormatMarkdown(data)), 0644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Printf("Report saved to: %s\n", reportOutput)
	}

	fmt.Println()
	fmt.Println("Report Summary:")
	fmt.Printf("  Devices: %d\n", len(data.Devices))
	fmt.Printf("  Links: %d\n", len(data.Links))
	fmt.Printf("  Active Alerts: %d\n", len(data.ActiveAlerts))
	fmt.Printf("  Alerts Since %s: %d\n", data.Since.Format("2006-01-02 15:04"), len(data.RecentAlerts))

	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	data, err := generateReport(topology.ViewFull, 0)
	if err != nil {
		return err
	}

	path := exportOutput
	if path == "" {
		if err := os.MkdirAll(cfg.ReportOutputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
		path = fmt.Sprintf("%s/topomon-inventory-%s.xlsx", strings.TrimRight(cfg.ReportOutputDir, "/"),
			data.GeneratedAt.Format("20060102-150405"))
	}

	if err := report.ExportWorkbook(data, path); err != nil {
		return fmt.Errorf("failed to export workbook: %w", err)
	}
	fmt.Printf("Workbook saved to: %s (%d devices, %d links)\n", path, len(data.Devices), len(data.Links))
	return nil
}

// parseDuration extends time.ParseDuration with d (days) and w (weeks).
func parseDuration(s string) (time.Duration, error) {
	if n := len(s); n > 1 {
		unit := map[byte]time.Duration{'d': 24 * time.Hour, 'w': 7 * 24 * time.Hour}[s[n-1]]
		if unit > 0 {
			count, err := strconv.Atoi(s[:n-1])
			if err != nil {
				return 0, fmt.Errorf("invalid duration %q", s)
			}
			return time.Duration(count) * unit, nil
		}
	}
	return time.ParseDuration(s)
}
