package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/topomon/internal/storage"
	"github.com/user/topomon/internal/web"
)

var webPort int

var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Start the web dashboard",
	Long: `Start the web dashboard and JSON API without the daemon.

The server provides:
- Topology views and Mermaid diagrams
- Device hierarchy queries
- Alert acknowledgement, suppression and history editing
- Markdown report and Excel inventory downloads

Discovery control and poll triggers need the daemon; use
'topomon start --with-web' for those.

Examples:
  topomon web
  topomon web --port 9090`,
	RunE: runWeb,
}

func init() {
	webCmd.Flags().IntVarP(&webPort, "port", "p", 0, "Web server port (default: web_port from config)")
}

func runWeb(cmd *cobra.Command, args []string) error {
	db, err := storage.Initialize(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	port := webPortOr(webPort)
	fmt.Printf("Starting web server on http://localhost:%d\n", port)
	fmt.Println("Press Ctrl+C to stop")

	srv := web.NewServer(db, cfg, port, nil)
	return srv.Start()
}
