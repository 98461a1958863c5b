package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/user/topomon/internal/model"
	"github.com/user/topomon/internal/util"
)

// discoverySettings is the wire form of util.DiscoveryConfig with
// durations as strings such as "1h".
type discoverySettings struct {
	Enabled         bool     `json:"enabled"`
	Interval        string   `json:"interval"`
	Subnets         []string `json:"subnets" validate:"dive,cidrv4"`
	BatchSize       int      `json:"batch_size" validate:"gt=0,lte=1024"`
	MaxHosts        int      `json:"max_hosts" validate:"gt=0"`
	ProbeTimeout    string   `json:"probe_timeout"`
	ProbesPerSecond float64  `json:"probes_per_second" validate:"gte=0"`
}

func settingsFrom(c util.DiscoveryConfig) discoverySettings {
	return discoverySettings{
		Enabled:         c.Enabled,
		Interval:        c.Interval.String(),
		Subnets:         nonNil(c.Subnets),
		BatchSize:       c.BatchSize,
		MaxHosts:        c.MaxHosts,
		ProbeTimeout:    c.ProbeTimeout.String(),
		ProbesPerSecond: c.ProbesPerSecond,
	}
}

func (s discoverySettings) config() (util.DiscoveryConfig, error) {
	interval, err := time.ParseDuration(s.Interval)
	if err != nil {
		return util.DiscoveryConfig{}, fmt.Errorf("invalid interval: %w", err)
	}
	timeout, err := time.ParseDuration(s.ProbeTimeout)
	if err != nil {
		return util.DiscoveryConfig{}, fmt.Errorf("invalid probe_timeout: %w", err)
	}
	return util.DiscoveryConfig{
		Enabled:         s.Enabled,
		Interval:        interval,
		Subnets:         s.Subnets,
		BatchSize:       s.BatchSize,
		MaxHosts:        s.MaxHosts,
		ProbeTimeout:    timeout,
		ProbesPerSecond: s.ProbesPerSecond,
	}, nil
}

type discoveryResponse struct {
	Settings    discoverySettings  `json:"settings"`
	Running     bool               `json:"running"`
	Controlled  bool               `json:"controlled"`
	LastRun     *time.Time         `json:"last_run,omitempty"`
	LastResults []model.ScanResult `json:"last_results"`
}

func (h *Handlers) discoveryState() discoveryResponse {
	if h.ctl == nil {
		return discoveryResponse{
			Settings:    settingsFrom(h.config.Discovery),
			LastResults: []model.ScanResult{},
		}
	}
	st := h.ctl.Discovery()
	return discoveryResponse{
		Settings:    settingsFrom(st.Settings),
		Running:     st.Running,
		Controlled:  true,
		LastRun:     st.LastRun,
		LastResults: nonNil(st.LastResults),
	}
}

// APIGetDiscovery returns the discovery settings and last sweep results.
func (h *Handlers) APIGetDiscovery(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.discoveryState())
}

// APIUpdateDiscovery changes discovery settings. Omitted fields keep
// their current value; the loop restarts when anything changed.
func (h *Handlers) APIUpdateDiscovery(w http.ResponseWriter, r *http.Request) {
	if h.ctl == nil {
		writeErrorMessage(w, "no daemon in this process", http.StatusServiceUnavailable)
		return
	}
	req := settingsFrom(h.ctl.Discovery().Settings)
	if !decodeJSON(w, r, &req) {
		return
	}
	cfg, err := req.config()
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	if err := h.ctl.UpdateDiscovery(cfg); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	util.Info("Discovery settings updated via API (enabled=%t, %d subnets)", cfg.Enabled, len(cfg.Subnets))
	writeJSON(w, h.discoveryState())
}

// APITriggerDiscovery requests an immediate sweep.
func (h *Handlers) APITriggerDiscovery(w http.ResponseWriter, r *http.Request) {
	if h.ctl == nil {
		writeErrorMessage(w, "no daemon in this process", http.StatusServiceUnavailable)
		return
	}
	if !h.ctl.TriggerDiscovery() {
		writeErrorMessage(w, "discovery is disabled", http.StatusConflict)
		return
	}
	writeJSONStatus(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

// APITriggerPoll makes the poll cycle run now.
func (h *Handlers) APITriggerPoll(w http.ResponseWriter, r *http.Request) {
	if h.ctl == nil {
		writeErrorMessage(w, "no daemon in this process", http.StatusServiceUnavailable)
		return
	}
	if !h.ctl.TriggerPoll() {
		writeErrorMessage(w, "poll job not registered", http.StatusConflict)
		return
	}
	writeJSONStatus(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}
