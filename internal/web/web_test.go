package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/user/topomon/internal/daemon"
	"github.com/user/topomon/internal/model"
	"github.com/user/topomon/internal/storage"
	"github.com/user/topomon/internal/util"
)

type fakeController struct {
	settings  util.DiscoveryConfig
	triggered int
	enabled   bool
}

func (f *fakeController) TriggerDiscovery() bool {
	if !f.enabled {
		return false
	}
	f.triggered++
	return true
}

func (f *fakeController) TriggerPoll() bool { return true }

func (f *fakeController) Discovery() daemon.DiscoveryStatus {
	return daemon.DiscoveryStatus{Settings: f.settings, Running: f.enabled}
}

func (f *fakeController) UpdateDiscovery(s util.DiscoveryConfig) error {
	cfg := util.DefaultConfig()
	cfg.DataDir = "/tmp"
	cfg.Discovery = s
	if err := cfg.Validate(); err != nil {
		return err
	}
	f.settings = s
	f.enabled = s.Enabled
	return nil
}

type env struct {
	handler http.Handler
	db      *storage.DB
	alertID int64
	core    *model.Device
	acc     *model.Device
}

func newEnv(t *testing.T, ctl Controller) *env {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "web.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	e := &env{db: db}
	devices := storage.NewDeviceStorage(db)
	e.core = &model.Device{Hostname: "core1", IP: "10.0.0.1", Type: model.TypeCore}
	if err := devices.Create(e.core); err != nil {
		t.Fatal(err)
	}
	e.acc = &model.Device{Hostname: "acc1", IP: "10.0.0.2", Type: model.TypeAccess, ParentID: &e.core.ID}
	if err := devices.Create(e.acc); err != nil {
		t.Fatal(err)
	}
	if err := storage.NewLinkStorage(db).UpsertMerged([]model.MergedLink{{
		DeviceAID: e.core.ID, DeviceBID: e.acc.ID, TotalBandwidthMbps: 1000, UtilizationInPercent: 20,
	}}); err != nil {
		t.Fatal(err)
	}

	tr, err := storage.NewAlertStorage(db).Apply([]model.AlertChange{{
		Kind:      model.ChangeTrigger,
		Target:    model.DeviceTarget(e.acc.ID),
		Type:      model.AlertCPUHigh,
		Metric:    model.MetricCPU,
		Severity:  model.SeverityWarning,
		Message:   "Device acc1 CPU warning: 85.0% (threshold: 80%)",
		Value:     model.Float(85),
		Threshold: model.Float(80),
	}})
	if err != nil || len(tr) != 1 {
		t.Fatalf("Apply: %v", err)
	}
	e.alertID = tr[0].Alert.ID

	cfg := util.DefaultConfig()
	cfg.DataDir = t.TempDir()
	srv := NewServer(db, cfg, 0, ctl)
	t.Cleanup(srv.limiter.Stop)
	e.handler = srv.Handler()
	return e
}

func (e *env) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestTopologyEndpoints(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodGet, "/api/topology?view=full", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("full view: %d %s", rec.Code, rec.Body)
	}
	var topo struct {
		Kind  string `json:"kind"`
		Nodes []struct {
			Hostname     string `json:"hostname"`
			ActiveAlerts int    `json:"active_alerts"`
		} `json:"nodes"`
		Links []struct {
			Status string `json:"status"`
		} `json:"links"`
	}
	decode(t, rec, &topo)
	if topo.Kind != "full" || len(topo.Nodes) != 2 || len(topo.Links) != 1 || topo.Links[0].Status != "normal" {
		t.Errorf("topology = %+v", topo)
	}

	tests := []struct {
		path string
		code int
	}{
		{"/api/topology", http.StatusOK},
		{"/api/topology?view=bogus", http.StatusBadRequest},
		{"/api/topology?view=group", http.StatusBadRequest},
		{"/api/topology?view=group&group_id=99", http.StatusNotFound},
		{"/api/groups/99/topology", http.StatusNotFound},
		{"/api/devices", http.StatusOK},
		{"/api/devices/abc", http.StatusBadRequest},
		{"/api/devices/999", http.StatusNotFound},
		{"/api/devices/999/subtree", http.StatusNotFound},
		{"/api/topology/mermaid?view=full", http.StatusOK},
		{"/api/status", http.StatusOK},
	}
	for _, tt := range tests {
		if rec := e.do(t, http.MethodGet, tt.path, ""); rec.Code != tt.code {
			t.Errorf("GET %s = %d, want %d (%s)", tt.path, rec.Code, tt.code, rec.Body)
		}
	}

	rec = e.do(t, http.MethodGet, "/api/devices/2/ancestors", "")
	var chain []struct {
		Hostname string `json:"hostname"`
	}
	decode(t, rec, &chain)
	if len(chain) != 1 || chain[0].Hostname != "core1" {
		t.Errorf("ancestors = %+v", chain)
	}

	rec = e.do(t, http.MethodGet, "/api/devices/1/subtree", "")
	var tree struct {
		Device   struct{ Hostname string } `json:"device"`
		Children []struct {
			Device struct{ Hostname string } `json:"device"`
		} `json:"children"`
	}
	decode(t, rec, &tree)
	if tree.Device.Hostname != "core1" || len(tree.Children) != 1 || tree.Children[0].Device.Hostname != "acc1" {
		t.Errorf("subtree = %+v", tree)
	}
}

func TestLinkExclusion(t *testing.T) {
	e := newEnv(t, nil)

	if rec := e.do(t, http.MethodPut, "/api/links/1/excluded", `{"excluded": true}`); rec.Code != http.StatusOK {
		t.Fatalf("exclude: %d %s", rec.Code, rec.Body)
	}
	rec := e.do(t, http.MethodGet, "/api/topology?view=full", "")
	var topo struct {
		Links []interface{} `json:"links"`
	}
	decode(t, rec, &topo)
	if len(topo.Links) != 0 {
		t.Errorf("excluded link still rendered")
	}

	if rec := e.do(t, http.MethodPut, "/api/links/77/excluded", `{"excluded": true}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown link = %d", rec.Code)
	}
	if rec := e.do(t, http.MethodPut, "/api/links/1/excluded", `{"hidden": true}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown field = %d", rec.Code)
	}
}

type alertJSON struct {
	ID             int64  `json:"id"`
	IsActive       bool   `json:"is_active"`
	IsSuppressed   bool   `json:"is_suppressed"`
	AcknowledgedBy string `json:"acknowledged_by"`
}

type historyJSON struct {
	ID        int64      `json:"id"`
	Event     string     `json:"event_type"`
	DeletedAt *time.Time `json:"deleted_at"`
	Details   struct {
		Reason string `json:"reason"`
	} `json:"details"`
}

func TestAlertWorkflow(t *testing.T) {
	e := newEnv(t, nil)
	base := "/api/alerts/" + itoa(e.alertID)

	rec := e.do(t, http.MethodGet, "/api/alerts?active=true", "")
	var list []alertJSON
	decode(t, rec, &list)
	if len(list) != 1 || list[0].ID != e.alertID {
		t.Fatalf("active alerts = %+v", list)
	}

	rec = e.do(t, http.MethodPost, base+"/acknowledge", `{"reason": "looking"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ack without by = %d", rec.Code)
	}
	var verr struct {
		Fields map[string]string `json:"fields"`
	}
	decode(t, rec, &verr)
	if verr.Fields["By"] != "required" {
		t.Errorf("validation fields = %v", verr.Fields)
	}

	if rec := e.do(t, http.MethodPost, base+"/acknowledge", `{"acknowledged_by": "ops", "suppress": true}`); rec.Code != http.StatusBadRequest {
		t.Errorf("suppress without window = %d", rec.Code)
	}
	if rec := e.do(t, http.MethodPost, base+"/acknowledge", `{"acknowledged_by": "ops", "suppress": true, "duration": 2, "unit": "weeks"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad unit = %d", rec.Code)
	}
	if rec := e.do(t, http.MethodPost, "/api/alerts/999/acknowledge", `{"acknowledged_by": "ops"}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown alert = %d", rec.Code)
	}

	rec = e.do(t, http.MethodPost, base+"/acknowledge", `{"acknowledged_by": "ops", "reason": "maintenance", "suppress": true, "duration": 2, "unit": "hours"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("ack = %d %s", rec.Code, rec.Body)
	}
	var acked alertJSON
	decode(t, rec, &acked)
	if !acked.IsActive || !acked.IsSuppressed || acked.AcknowledgedBy != "ops" {
		t.Errorf("acknowledged alert = %+v", acked)
	}

	rec = e.do(t, http.MethodGet, base+"/history", "")
	var history []historyJSON
	decode(t, rec, &history)
	if len(history) != 2 || history[1].Event != "acknowledged" {
		t.Fatalf("history = %+v", history)
	}
	ackEntry := itoa(history[1].ID)

	if rec := e.do(t, http.MethodPatch, "/api/alert-history/"+ackEntry, `{"reason": "planned maintenance"}`); rec.Code != http.StatusOK {
		t.Errorf("edit = %d %s", rec.Code, rec.Body)
	}
	if rec := e.do(t, http.MethodDelete, "/api/alert-history/"+ackEntry, `{"reason": "mistake"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("delete without by = %d", rec.Code)
	}
	if rec := e.do(t, http.MethodDelete, "/api/alert-history/"+ackEntry, `{"by": "ops", "reason": "mistake", "restore_state": true}`); rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d %s", rec.Code, rec.Body)
	}
	if rec := e.do(t, http.MethodDelete, "/api/alert-history/"+ackEntry, `{"by": "ops"}`); rec.Code != http.StatusConflict {
		t.Errorf("second delete = %d", rec.Code)
	}
	if rec := e.do(t, http.MethodPatch, "/api/alert-history/"+ackEntry, `{"reason": "x"}`); rec.Code != http.StatusConflict {
		t.Errorf("edit deleted = %d", rec.Code)
	}

	rec = e.do(t, http.MethodGet, base, "")
	var restored alertJSON
	decode(t, rec, &restored)
	if restored.IsSuppressed {
		t.Error("suppression not restored by history delete")
	}

	rec = e.do(t, http.MethodGet, base+"/history?include_deleted=true", "")
	history = nil
	decode(t, rec, &history)
	if len(history) != 2 || history[1].DeletedAt == nil || history[1].Details.Reason != "planned maintenance" {
		t.Errorf("history with deleted = %+v", history)
	}
	rec = e.do(t, http.MethodGet, base+"/history", "")
	history = nil
	decode(t, rec, &history)
	if len(history) != 1 {
		t.Errorf("visible history = %d entries, want 1", len(history))
	}

	if rec := e.do(t, http.MethodPost, base+"/unsuppress", `{"by": "ops"}`); rec.Code != http.StatusOK {
		t.Errorf("unsuppress = %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/api/alerts/999/history", ""); rec.Code != http.StatusNotFound {
		t.Errorf("history of unknown alert = %d", rec.Code)
	}
}

func TestDiscoveryWithoutDaemon(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodGet, "/api/discovery", "")
	var st struct {
		Controlled bool `json:"controlled"`
		Settings   struct {
			Interval string `json:"interval"`
		} `json:"settings"`
	}
	decode(t, rec, &st)
	if st.Controlled || st.Settings.Interval != "1h0m0s" {
		t.Errorf("discovery = %+v", st)
	}
	for _, path := range []string{"/api/discovery/trigger", "/api/poll/trigger"} {
		if rec := e.do(t, http.MethodPost, path, ""); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("POST %s = %d", path, rec.Code)
		}
	}
}

func TestDiscoveryControl(t *testing.T) {
	ctl := &fakeController{settings: util.DefaultConfig().Discovery}
	e := newEnv(t, ctl)

	if rec := e.do(t, http.MethodPost, "/api/discovery/trigger", ""); rec.Code != http.StatusConflict {
		t.Errorf("trigger while disabled = %d", rec.Code)
	}

	rec := e.do(t, http.MethodPut, "/api/discovery", `{"enabled": true, "subnets": ["10.1.0.0/24"], "interval": "30m"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d %s", rec.Code, rec.Body)
	}
	if !ctl.settings.Enabled || ctl.settings.Interval != 30*time.Minute || ctl.settings.BatchSize != 20 {
		t.Errorf("settings = %+v", ctl.settings)
	}

	if rec := e.do(t, http.MethodPut, "/api/discovery", `{"subnets": ["10.1.0.0/33"]}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad subnet = %d", rec.Code)
	}
	if rec := e.do(t, http.MethodPut, "/api/discovery", `{"interval": "soon"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad interval = %d", rec.Code)
	}

	if rec := e.do(t, http.MethodPost, "/api/discovery/trigger", ""); rec.Code != http.StatusAccepted || ctl.triggered != 1 {
		t.Errorf("trigger = %d, triggered %d", rec.Code, ctl.triggered)
	}
}

func TestDashboardAndDownloads(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "flowchart TD") {
		t.Errorf("dashboard = %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown page = %d", rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/report?since=1h", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "# Network Topology Report") {
		t.Errorf("report = %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/report?since=yesterday", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad since = %d", rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/export.xlsx", "")
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "PK") {
		t.Errorf("workbook = %d", rec.Code)
	}
}

func TestDeviceRoutes(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/api/devices", `{"hostname": "dist1", "ip_address": "10.0.0.3", "device_type": "distribution", "snmp_community": "private"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", rec.Code, rec.Body)
	}
	var dev struct {
		ID       int64  `json:"id"`
		Hostname string `json:"hostname"`
		Status   string `json:"status"`
		ParentID *int64 `json:"parent_device_id"`
		Profile  *int64 `json:"alert_profile_id"`
	}
	decode(t, rec, &dev)
	if dev.ID == 0 || dev.Status != "unknown" {
		t.Errorf("created = %+v", dev)
	}
	path := "/api/devices/" + itoa(dev.ID)

	tests := []struct {
		method, path, body string
		code               int
	}{
		{http.MethodPost, "/api/devices", `{"hostname": "dist1", "ip_address": "10.0.0.4"}`, http.StatusConflict},
		{http.MethodPost, "/api/devices", `{"hostname": "x", "ip_address": "nowhere"}`, http.StatusBadRequest},
		{http.MethodPut, path, `{"status": "sleeping"}`, http.StatusBadRequest},
		{http.MethodPut, path, `{"hostname": "core1"}`, http.StatusConflict},
		{http.MethodPut, "/api/devices/999", `{"vendor": "cisco_ios"}`, http.StatusNotFound},
		{http.MethodPut, "/api/devices/1/parent", `{"parent_id": 2}`, http.StatusBadRequest},
		{http.MethodPut, path + "/profile", `{"profile_id": 42}`, http.StatusNotFound},
		{http.MethodDelete, "/api/devices/999", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		if rec := e.do(t, tt.method, tt.path, tt.body); rec.Code != tt.code {
			t.Errorf("%s %s = %d, want %d (%s)", tt.method, tt.path, rec.Code, tt.code, rec.Body)
		}
	}

	rec = e.do(t, http.MethodPut, path, `{"hostname": "dist1-a", "vendor": "cisco_ios"}`)
	decode(t, rec, &dev)
	if rec.Code != http.StatusOK || dev.Hostname != "dist1-a" {
		t.Errorf("update = %d %+v", rec.Code, dev)
	}

	rec = e.do(t, http.MethodPut, path+"/parent", `{"parent_id": 1}`)
	dev.ParentID = nil
	decode(t, rec, &dev)
	if rec.Code != http.StatusOK || dev.ParentID == nil || *dev.ParentID != 1 {
		t.Errorf("set parent = %d %+v", rec.Code, dev)
	}
	rec = e.do(t, http.MethodGet, "/api/devices/1/subtree", "")
	var tree struct {
		Children []interface{} `json:"children"`
	}
	decode(t, rec, &tree)
	if len(tree.Children) != 2 {
		t.Errorf("core1 children = %d, want 2", len(tree.Children))
	}

	if rec := e.do(t, http.MethodDelete, path, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete = %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, path, ""); rec.Code != http.StatusNotFound {
		t.Errorf("deleted device = %d", rec.Code)
	}
}

func TestGroupRoutes(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/api/groups", `{"name": "site-a", "description": "HQ"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", rec.Code, rec.Body)
	}
	var g struct {
		ID int64 `json:"id"`
	}
	decode(t, rec, &g)
	base := "/api/groups/" + itoa(g.ID)

	if rec := e.do(t, http.MethodPost, "/api/groups", `{"name": "site-a"}`); rec.Code != http.StatusConflict {
		t.Errorf("duplicate = %d", rec.Code)
	}
	if rec := e.do(t, http.MethodPost, "/api/groups", `{"description": "nameless"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing name = %d", rec.Code)
	}
	if rec := e.do(t, http.MethodPut, base+"/parent", `{"parent_id": `+itoa(g.ID)+`}`); rec.Code != http.StatusBadRequest {
		t.Errorf("self parent = %d", rec.Code)
	}

	rec = e.do(t, http.MethodPost, base+"/devices", `{"device_ids": [2]}`)
	var added map[string]int
	decode(t, rec, &added)
	if rec.Code != http.StatusOK || added["added"] != 1 {
		t.Errorf("add = %d %v", rec.Code, added)
	}
	if rec := e.do(t, http.MethodPost, base+"/devices", `{"device_ids": []}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty ids = %d", rec.Code)
	}
	if rec := e.do(t, http.MethodPost, base+"/devices", `{"device_ids": [77]}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown device = %d", rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/api/topology?view=group&group_id="+itoa(g.ID), "")
	if rec.Code != http.StatusOK {
		t.Errorf("group view = %d %s", rec.Code, rec.Body)
	}
	rec = e.do(t, http.MethodGet, base+"/devices", "")
	var members struct {
		Total int `json:"total"`
	}
	decode(t, rec, &members)
	if members.Total != 1 {
		t.Errorf("members = %+v", members)
	}

	rec = e.do(t, http.MethodDelete, base+"/devices", `{"device_ids": [2, 1]}`)
	var removed map[string]int
	decode(t, rec, &removed)
	if removed["removed"] != 1 {
		t.Errorf("removed = %v", removed)
	}

	if rec := e.do(t, http.MethodDelete, base, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete = %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, base+"/devices", ""); rec.Code != http.StatusNotFound {
		t.Errorf("deleted group = %d", rec.Code)
	}
}

func TestProfileAndRuleRoutes(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/api/profiles", `{"name": "strict", "thresholds": {"cpu": {"warning": 50, "critical": 70}}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create profile = %d %s", rec.Code, rec.Body)
	}
	var p struct {
		ID         int64 `json:"id"`
		IsDefault  bool  `json:"is_default"`
		Thresholds map[string]struct {
			Warning        float64 `json:"warning"`
			RecoveryBuffer float64 `json:"recovery_buffer"`
		} `json:"thresholds"`
	}
	decode(t, rec, &p)
	if p.Thresholds["cpu"].Warning != 50 || p.Thresholds["cpu"].RecoveryBuffer != 10 {
		t.Errorf("profile = %+v", p)
	}
	path := "/api/profiles/" + itoa(p.ID)

	if rec := e.do(t, http.MethodPost, "/api/profiles", `{"name": "bad", "thresholds": {"cpu": {"warning": 90, "critical": 10}}}`); rec.Code != http.StatusBadRequest {
		t.Errorf("inverted thresholds = %d", rec.Code)
	}
	rec = e.do(t, http.MethodPut, path, `{"is_default": true}`)
	decode(t, rec, &p)
	if rec.Code != http.StatusOK || !p.IsDefault {
		t.Errorf("update = %d %+v", rec.Code, p)
	}
	if rec := e.do(t, http.MethodPut, "/api/devices/2/profile", `{"profile_id": `+itoa(p.ID)+`}`); rec.Code != http.StatusOK {
		t.Errorf("assign = %d %s", rec.Code, rec.Body)
	}
	rec = e.do(t, http.MethodGet, "/api/profiles", "")
	var list []interface{}
	decode(t, rec, &list)
	if len(list) != 1 {
		t.Errorf("profiles = %d", len(list))
	}
	if rec := e.do(t, http.MethodDelete, path, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete profile = %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, path, ""); rec.Code != http.StatusNotFound {
		t.Errorf("deleted profile = %d", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/api/exclude-rules", `{"rule_type": "device_pair", "device_a_id": 1, "device_b_id": 2}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create rule = %d %s", rec.Code, rec.Body)
	}
	var rule struct {
		ID int64 `json:"id"`
	}
	decode(t, rec, &rule)
	if rec := e.do(t, http.MethodPost, "/api/exclude-rules", `{"rule_type": "port_pattern"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("rule without pattern = %d", rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/api/topology?view=full", "")
	var topo struct {
		Links []interface{} `json:"links"`
	}
	decode(t, rec, &topo)
	if len(topo.Links) != 0 {
		t.Errorf("link hidden by rule still rendered: %d", len(topo.Links))
	}

	if rec := e.do(t, http.MethodDelete, "/api/exclude-rules/"+itoa(rule.ID), ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete rule = %d", rec.Code)
	}
	rec = e.do(t, http.MethodGet, "/api/exclude-rules", "")
	var rules []interface{}
	decode(t, rec, &rules)
	if len(rules) != 0 {
		t.Errorf("rules = %d", len(rules))
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	defer rl.Stop()
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := call("192.0.2.1:5000"); code != http.StatusNoContent {
			t.Fatalf("request %d = %d", i, code)
		}
	}
	if code := call("192.0.2.1:5001"); code != http.StatusTooManyRequests {
		t.Errorf("over limit = %d", code)
	}
	if code := call("192.0.2.2:5000"); code != http.StatusNoContent {
		t.Errorf("other client = %d", code)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
