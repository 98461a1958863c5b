package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/user/topomon/internal/alert"
	"github.com/user/topomon/internal/daemon"
	"github.com/user/topomon/internal/inventory"
	"github.com/user/topomon/internal/model"
	"github.com/user/topomon/internal/report"
	"github.com/user/topomon/internal/storage"
	"github.com/user/topomon/internal/topology"
	"github.com/user/topomon/internal/util"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Controller is the part of a running daemon the API can drive.
type Controller interface {
	TriggerDiscovery() bool
	TriggerPoll() bool
	Discovery() daemon.DiscoveryStatus
	UpdateDiscovery(settings util.DiscoveryConfig) error
}

// Handlers contains HTTP handlers.
type Handlers struct {
	db        *storage.DB
	config    *util.Config
	ctl       Controller
	topology  *topology.Engine
	alerts    *alert.Engine
	devices   *storage.DeviceStorage
	groups    *storage.GroupStorage
	links     *storage.LinkStorage
	inventory *inventory.Manager
}

// NewHandlers creates new handlers.
func NewHandlers(db *storage.DB, cfg *util.Config, ctl Controller) *Handlers {
	return &Handlers{
		db:        db,
		config:    cfg,
		ctl:       ctl,
		topology:  topology.NewEngine(db),
		alerts:    alert.NewEngine(db, nil),
		devices:   storage.NewDeviceStorage(db),
		groups:    storage.NewGroupStorage(db),
		links:     storage.NewLinkStorage(db),
		inventory: inventory.NewManager(db),
	}
}

// APIGetStatus returns daemon status and inventory counts.
func (h *Handlers) APIGetStatus(w http.ResponseWriter, r *http.Request) {
	running, pid := daemon.CheckRunning(h.config.DataDir)

	status := map[string]interface{}{
		"running": running,
		"pid":     pid,
	}
	if counts, err := h.devices.CountByStatus(); err == nil {
		status["devices"] = counts
	}
	if active, err := h.alerts.List(storage.AlertFilter{ActiveOnly: true}); err == nil {
		status["active_alerts"] = len(active)
	}
	if sf, err := daemon.ReadStatusFile(h.config.DataDir); err == nil {
		status["last_cycle"] = sf.LastCycle
		status["jobs"] = sf.Jobs
	}

	writeJSON(w, status)
}

// APIGetTopology renders ?view=overview|group|full. The group view needs
// ?group_id.
func (h *Handlers) APIGetTopology(w http.ResponseWriter, r *http.Request) {
	topo, ok := h.renderView(w, r)
	if !ok {
		return
	}
	writeJSON(w, topo)
}

// APIGetMermaid renders the same view as a Mermaid flowchart.
func (h *Handlers) APIGetMermaid(w http.ResponseWriter, r *http.Request) {
	topo, ok := h.renderView(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(report.TopologyDiagram(topo)))
}

func (h *Handlers) renderView(w http.ResponseWriter, r *http.Request) (*topology.Topology, bool) {
	q := r.URL.Query()
	kind, err := topology.ParseViewKind(q.Get("view"))
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return nil, false
	}

	var groupID int64
	if kind == topology.ViewGroup {
		groupID, err = strconv.ParseInt(q.Get("group_id"), 10, 64)
		if err != nil {
			writeErrorMessage(w, "group view needs a numeric group_id", http.StatusBadRequest)
			return nil, false
		}
	}

	topo, err := h.topology.View(kind, groupID)
	if err != nil {
		writeStoreError(w, err)
		return nil, false
	}
	return topo, true
}

// APIGetGroups lists device groups.
func (h *Handlers) APIGetGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groups.List()
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, nonNil(groups))
}

// APIGetGroupTopology renders a group with its upstream neighbors.
func (h *Handlers) APIGetGroupTopology(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	topo, err := h.topology.GroupTopology(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, topo)
}

// APIGetDevices lists devices.
func (h *Handlers) APIGetDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.devices.List()
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, nonNil(devices))
}

// APIGetDevice returns one device.
func (h *Handlers) APIGetDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	d, err := h.devices.Get(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, d)
}

// APIGetAncestors returns the parent chain of a device, nearest first.
func (h *Handlers) APIGetAncestors(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	chain, err := h.topology.Ancestors(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, nonNil(chain))
}

// APIGetSubtree returns a device with all its descendants.
func (h *Handlers) APIGetSubtree(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	tree, err := h.topology.Subtree(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, tree)
}

type excludeRequest struct {
	Excluded bool `json:"excluded"`
}

// APISetLinkExcluded hides or shows a merged link.
func (h *Handlers) APISetLinkExcluded(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req excludeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.links.SetExcluded(id, req.Excluded); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"id": id, "excluded": req.Excluded})
}

// DownloadReport generates and downloads a markdown report.
func (h *Handlers) DownloadReport(w http.ResponseWriter, r *http.Request) {
	data, ok := h.reportData(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=topomon_report.md")
	w.Write([]byte(report.FormatMarkdown(data)))
}

// DownloadWorkbook exports the inventory as an Excel workbook.
func (h *Handlers) DownloadWorkbook(w http.ResponseWriter, r *http.Request) {
	data, ok := h.reportData(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=topomon_inventory.xlsx")
	if err := report.WriteWorkbook(data, w); err != nil {
		util.Warn("Workbook export failed: %v", err)
	}
}

func (h *Handlers) reportData(w http.ResponseWriter, r *http.Request) (*report.Data, bool) {
	since := time.Now().Add(-24 * time.Hour)
	if s := r.URL.Query().Get("since"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			writeError(w, fmt.Errorf("invalid since: %w", err), http.StatusBadRequest)
			return nil, false
		}
		since = time.Now().Add(-d)
	}

	data, err := report.NewGenerator(h.db, h.config).Generate(report.Options{Since: since})
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return nil, false
	}
	return data, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeErrorMessage(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// decodeJSON reads a JSON body into v and validates it. It writes a 400
// and returns false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return false
	}
	if err := util.Validator().Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSONStatus(w, http.StatusBadRequest, map[string]interface{}{
				"error":  "validation failed",
				"fields": fieldErrors(verrs),
			})
			return false
		}
		writeError(w, err, http.StatusBadRequest)
		return false
	}
	return true
}

func fieldErrors(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error, status int) {
	writeErrorMessage(w, err.Error(), status)
}

func writeErrorMessage(w http.ResponseWriter, msg string, status int) {
	writeJSONStatus(w, status, map[string]string{"error": msg})
}

// writeStoreError maps sentinel errors to 404, 409 and 400.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalid):
		writeError(w, err, http.StatusBadRequest)
	case errors.Is(err, model.ErrNotFound):
		writeError(w, err, http.StatusNotFound)
	case errors.Is(err, model.ErrConflict):
		writeError(w, err, http.StatusConflict)
	default:
		util.Error("Request failed: %v", err)
		writeError(w, err, http.StatusInternalServerError)
	}
}
