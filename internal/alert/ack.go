package alert

import (
	"fmt"
	"time"

	"github.com/user/topomon/internal/model"
	"github.com/user/topomon/internal/storage"
	"github.com/user/topomon/internal/util"
)

// AckOptions describes an acknowledgement. With Suppress set, either
// UntilResolved or a positive Duration in Unit selects the window.
type AckOptions struct {
	By            string `json:"acknowledged_by" validate:"required,max=100"`
	Reason        string `json:"reason" validate:"max=500"`
	Suppress      bool   `json:"suppress"`
	UntilResolved bool   `json:"until_resolved"`
	Duration      int    `json:"duration" validate:"gte=0"`
	Unit          string `json:"unit" validate:"omitempty,oneof=minutes hours days"`
}

// Window resolves the suppression end time relative to now. A nil time
// with a nil error means no end.
func (o AckOptions) Window(now time.Time) (*time.Time, error) {
	if !o.Suppress || o.UntilResolved {
		return nil, nil
	}
	if o.Duration <= 0 {
		return nil, fmt.Errorf("suppression needs a positive duration or until_resolved")
	}
	var unit time.Duration
	switch o.Unit {
	case "minutes":
		unit = time.Minute
	case "hours", "":
		unit = time.Hour
	case "days":
		unit = 24 * time.Hour
	default:
		return nil, fmt.Errorf("unknown duration unit %q", o.Unit)
	}
	until := now.Add(time.Duration(o.Duration) * unit).UTC()
	return &until, nil
}

// Acknowledge stamps an alert as acknowledged and optionally suppresses
// its notifications. The alert stays active.
func (e *Engine) Acknowledge(id int64, opts AckOptions) (*model.Alert, error) {
	if err := util.Validator().Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid acknowledgement: %w", err)
	}
	until, err := opts.Window(e.now())
	if err != nil {
		return nil, err
	}
	return e.alerts.Acknowledge(id, storage.AckRequest{
		By:       opts.By,
		Reason:   opts.Reason,
		Suppress: opts.Suppress,
		Until:    until,
	})
}

// Unsuppress clears an alert's suppression.
func (e *Engine) Unsuppress(id int64, by string) (*model.Alert, error) {
	return e.alerts.Unsuppress(id, by)
}

// EditHistoryReason replaces the free-text reason of a history entry.
func (e *Engine) EditHistoryReason(historyID int64, reason string) error {
	return e.alerts.EditHistoryReason(historyID, reason)
}

// DeleteHistory soft-deletes a history entry, optionally restoring the
// suppression state recorded in it.
func (e *Engine) DeleteHistory(historyID int64, by, reason string, restore bool) error {
	return e.alerts.DeleteHistory(historyID, by, reason, restore)
}

// Get returns one alert.
func (e *Engine) Get(id int64) (*model.Alert, error) {
	return e.alerts.Get(id)
}

// List returns alerts matching f.
func (e *Engine) List(f storage.AlertFilter) ([]model.Alert, error) {
	return e.alerts.List(f)
}

// History returns the event log of an alert.
func (e *Engine) History(alertID int64, includeDeleted bool) ([]model.AlertHistory, error) {
	if _, err := e.alerts.Get(alertID); err != nil {
		return nil, err
	}
	return e.alerts.History(alertID, includeDeleted)
}
