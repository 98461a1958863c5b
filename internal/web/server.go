// Package web serves the topology, alert and discovery JSON API and a
// small dashboard.
package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/user/topomon/internal/storage"
	"github.com/user/topomon/internal/util"
)

const (
	requestsPerSecond = 20
	requestBurst      = 40
)

// Server is the web server.
type Server struct {
	db      *storage.DB
	config  *util.Config
	port    int
	ctl     Controller
	limiter *RateLimiter
	srv     *http.Server
}

// NewServer creates a web server. ctl is nil when no daemon runs in this
// process; discovery control then answers 503.
func NewServer(db *storage.DB, cfg *util.Config, port int, ctl Controller) *Server {
	return &Server{
		db:      db,
		config:  cfg,
		port:    port,
		ctl:     ctl,
		limiter: NewRateLimiter(requestsPerSecond, requestBurst),
	}
}

// Handler returns the routed, rate-limited handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	h := NewHandlers(s.db, s.config, s.ctl)

	mux.HandleFunc("GET /{$}", h.Dashboard)
	mux.HandleFunc("GET /api/status", h.APIGetStatus)

	mux.HandleFunc("GET /api/topology", h.APIGetTopology)
	mux.HandleFunc("GET /api/topology/mermaid", h.APIGetMermaid)
	mux.HandleFunc("GET /api/groups", h.APIGetGroups)
	mux.HandleFunc("POST /api/groups", h.APICreateGroup)
	mux.HandleFunc("DELETE /api/groups/{id}", h.APIDeleteGroup)
	mux.HandleFunc("PUT /api/groups/{id}/parent", h.APISetGroupParent)
	mux.HandleFunc("GET /api/groups/{id}/topology", h.APIGetGroupTopology)
	mux.HandleFunc("GET /api/groups/{id}/devices", h.APIGetGroupDevices)
	mux.HandleFunc("POST /api/groups/{id}/devices", h.APIAddGroupDevices)
	mux.HandleFunc("DELETE /api/groups/{id}/devices", h.APIRemoveGroupDevices)

	mux.HandleFunc("GET /api/devices", h.APIGetDevices)
	mux.HandleFunc("POST /api/devices", h.APICreateDevice)
	mux.HandleFunc("GET /api/devices/{id}", h.APIGetDevice)
	mux.HandleFunc("PUT /api/devices/{id}", h.APIUpdateDevice)
	mux.HandleFunc("DELETE /api/devices/{id}", h.APIDeleteDevice)
	mux.HandleFunc("PUT /api/devices/{id}/parent", h.APISetDeviceParent)
	mux.HandleFunc("PUT /api/devices/{id}/profile", h.APISetDeviceProfile)
	mux.HandleFunc("GET /api/devices/{id}/ancestors", h.APIGetAncestors)
	mux.HandleFunc("GET /api/devices/{id}/subtree", h.APIGetSubtree)
	mux.HandleFunc("PUT /api/links/{id}/excluded", h.APISetLinkExcluded)

	mux.HandleFunc("GET /api/profiles", h.APIGetProfiles)
	mux.HandleFunc("POST /api/profiles", h.APICreateProfile)
	mux.HandleFunc("GET /api/profiles/{id}", h.APIGetProfile)
	mux.HandleFunc("PUT /api/profiles/{id}", h.APIUpdateProfile)
	mux.HandleFunc("DELETE /api/profiles/{id}", h.APIDeleteProfile)

	mux.HandleFunc("GET /api/exclude-rules", h.APIGetRules)
	mux.HandleFunc("POST /api/exclude-rules", h.APICreateRule)
	mux.HandleFunc("DELETE /api/exclude-rules/{id}", h.APIDeleteRule)

	mux.HandleFunc("GET /api/alerts", h.APIGetAlerts)
	mux.HandleFunc("GET /api/alerts/{id}", h.APIGetAlert)
	mux.HandleFunc("GET /api/alerts/{id}/history", h.APIGetAlertHistory)
	mux.HandleFunc("POST /api/alerts/{id}/acknowledge", h.APIAcknowledgeAlert)
	mux.HandleFunc("POST /api/alerts/{id}/unsuppress", h.APIUnsuppressAlert)
	mux.HandleFunc("PATCH /api/alert-history/{id}", h.APIEditHistory)
	mux.HandleFunc("DELETE /api/alert-history/{id}", h.APIDeleteHistory)

	mux.HandleFunc("GET /api/discovery", h.APIGetDiscovery)
	mux.HandleFunc("PUT /api/discovery", h.APIUpdateDiscovery)
	mux.HandleFunc("POST /api/discovery/trigger", h.APITriggerDiscovery)
	mux.HandleFunc("POST /api/poll/trigger", h.APITriggerPoll)

	mux.HandleFunc("GET /report", h.DownloadReport)
	mux.HandleFunc("GET /export.xlsx", h.DownloadWorkbook)

	return s.limiter.Middleware(mux)
}

// Start starts the web server and blocks until it is shut down.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		s.Stop()
	}()

	util.Info("Web server starting on port %d", s.port)

	if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop stops the web server.
func (s *Server) Stop() error {
	s.limiter.Stop()
	if s.srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
