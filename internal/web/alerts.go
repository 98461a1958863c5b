package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/user/topomon/internal/alert"
	"github.com/user/topomon/internal/storage"
)

// APIGetAlerts lists alerts. Filters: active, device_id, since (duration)
// and limit.
func (h *Handlers) APIGetAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := storage.AlertFilter{Limit: 100}

	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeErrorMessage(w, "invalid active flag", http.StatusBadRequest)
			return
		}
		f.ActiveOnly = active
	}
	if v := q.Get("device_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeErrorMessage(w, "invalid device_id", http.StatusBadRequest)
			return
		}
		f.DeviceID = &id
	}
	if v := q.Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			writeErrorMessage(w, "invalid since", http.StatusBadRequest)
			return
		}
		since := time.Now().Add(-d)
		f.Since = &since
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			f.Limit = n
		}
	}

	alerts, err := h.alerts.List(f)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, nonNil(alerts))
}

// APIGetAlert returns one alert.
func (h *Handlers) APIGetAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	a, err := h.alerts.Get(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, a)
}

// APIGetAlertHistory returns an alert's event log. Soft-deleted entries
// are included with ?include_deleted=true.
func (h *Handlers) APIGetAlertHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	includeDeleted, _ := strconv.ParseBool(r.URL.Query().Get("include_deleted"))
	history, err := h.alerts.History(id, includeDeleted)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, nonNil(history))
}

// APIAcknowledgeAlert acknowledges and optionally suppresses an alert.
func (h *Handlers) APIAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var opts alert.AckOptions
	if !decodeJSON(w, r, &opts) {
		return
	}
	if _, err := opts.Window(time.Now()); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	a, err := h.alerts.Acknowledge(id, opts)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, a)
}

type unsuppressRequest struct {
	By string `json:"by" validate:"required,max=100"`
}

// APIUnsuppressAlert lifts an alert's suppression.
func (h *Handlers) APIUnsuppressAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req unsuppressRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := h.alerts.Unsuppress(id, req.By)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, a)
}

type editHistoryRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// APIEditHistory replaces the reason text of a history entry.
func (h *Handlers) APIEditHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req editHistoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.alerts.EditHistoryReason(id, req.Reason); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"id": id, "reason": req.Reason})
}

type deleteHistoryRequest struct {
	By      string `json:"by" validate:"required,max=100"`
	Reason  string `json:"reason" validate:"max=500"`
	Restore bool   `json:"restore_state"`
}

// APIDeleteHistory soft-deletes a history entry, optionally restoring the
// suppression state it recorded.
func (h *Handlers) APIDeleteHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req deleteHistoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.alerts.DeleteHistory(id, req.By, req.Reason, req.Restore); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
