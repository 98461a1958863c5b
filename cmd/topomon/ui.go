package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/topomon/internal/storage"
	"github.com/user/topomon/internal/tui"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Launch the terminal dashboard",
	Long: `Launch an interactive terminal dashboard.

The dashboard shows:
- Daemon state and the last poll cycle
- Device counts by status
- Active alerts
- The busiest links

Press 'tab' to switch between alerts and links, 'r' to refresh, 'q' to quit.`,
	RunE: runUI,
}

func runUI(cmd *cobra.Command, args []string) error {
	db, err := storage.Initialize(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	app := tui.NewApp(db, cfg)
	return app.Run()
}
