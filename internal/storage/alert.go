package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/user/topomon/internal/model"
)

const alertColumns = `id, device_id, link_id, alert_type, severity, message, current_value, threshold_value,
	is_active, triggered_at, recovered_at, acknowledged_at, acknowledged_by, acknowledge_reason,
	is_suppressed, suppress_until`

// AlertStorage handles alerts and their history.
type AlertStorage struct {
	db *DB
}

// NewAlertStorage creates a new alert storage handler.
func NewAlertStorage(db *DB) *AlertStorage {
	return &AlertStorage{db: db}
}

// AlertFilter narrows List.
type AlertFilter struct {
	ActiveOnly bool
	DeviceID   *int64
	Since      *time.Time
	Limit      int
}

// Apply commits the changes of one check cycle in a single transaction
// and returns those that took effect. A trigger for a target and type that
// already has an active alert is skipped, as are escalations and
// recoveries whose active alert is gone.
func (s *AlertStorage) Apply(changes []model.AlertChange) ([]model.AlertTransition, error) {
	if len(changes) == 0 {
		return nil, nil
	}
	now := s.db.timestamp()

	var applied []model.AlertTransition
	err := s.db.WithTx(func(tx *sql.Tx) error {
		applied = applied[:0]
		for _, c := range changes {
			var (
				alert *model.Alert
				err   error
			)
			switch c.Kind {
			case model.ChangeTrigger:
				alert, err = s.trigger(tx, c, now)
			case model.ChangeEscalate:
				alert, err = s.escalate(tx, c, now)
			case model.ChangeRecover:
				alert, err = s.recover(tx, c, now)
			default:
				err = fmt.Errorf("unknown change kind %d", c.Kind)
			}
			if err != nil {
				return err
			}
			if alert != nil {
				applied = append(applied, model.AlertTransition{Change: c, Alert: *alert})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

func (s *AlertStorage) trigger(tx *sql.Tx, c model.AlertChange, now time.Time) (*model.Alert, error) {
	deviceID, linkID := targetColumns(c.Target)

	// The partial unique index turns a second active insert into a no-op.
	result, err := tx.Exec(`INSERT OR IGNORE INTO alerts (target_key, device_id, link_id, alert_type, severity,
		message, current_value, threshold_value, is_active, triggered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		c.Target.Key(), deviceID, linkID, string(c.Type), string(c.Severity),
		c.Message, nullFloat(c.Value), nullFloat(c.Threshold), now)
	if err != nil {
		return nil, fmt.Errorf("failed to trigger %s on %s: %w", c.Type, c.Target, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, nil
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	details := model.HistoryDetails{Value: c.Value, Threshold: c.Threshold, Severity: c.Severity}
	if err := insertHistory(tx, id, model.EventTriggered, now, details); err != nil {
		return nil, err
	}
	return getAlert(tx, id)
}

func (s *AlertStorage) escalate(tx *sql.Tx, c model.AlertChange, now time.Time) (*model.Alert, error) {
	current, err := activeAlert(tx, c.Target, c.Type)
	if err != nil || current == nil {
		return nil, err
	}
	if current.Severity == c.Severity {
		return nil, nil
	}

	if _, err := tx.Exec(`UPDATE alerts SET severity = ?, message = ?, current_value = ?, threshold_value = ?
		WHERE id = ?`, string(c.Severity), c.Message, nullFloat(c.Value), nullFloat(c.Threshold), current.ID); err != nil {
		return nil, fmt.Errorf("failed to escalate alert %d: %w", current.ID, err)
	}

	details := model.HistoryDetails{Value: c.Value, Threshold: c.Threshold, Severity: c.Severity}
	if err := insertHistory(tx, current.ID, model.EventUpdated, now, details); err != nil {
		return nil, err
	}
	return getAlert(tx, current.ID)
}

func (s *AlertStorage) recover(tx *sql.Tx, c model.AlertChange, now time.Time) (*model.Alert, error) {
	current, err := activeAlert(tx, c.Target, c.Type)
	if err != nil || current == nil {
		return nil, err
	}

	if _, err := tx.Exec("UPDATE alerts SET is_active = 0, recovered_at = ? WHERE id = ?", now, current.ID); err != nil {
		return nil, fmt.Errorf("failed to recover alert %d: %w", current.ID, err)
	}

	if err := insertHistory(tx, current.ID, model.EventRecovered, now, model.HistoryDetails{Value: c.Value}); err != nil {
		return nil, err
	}
	return getAlert(tx, current.ID)
}

// AckRequest carries the fields of an acknowledgement. Suppress with a nil
// Until suppresses until the alert is resolved.
type AckRequest struct {
	By       string
	Reason   string
	Suppress bool
	Until    *time.Time
}

// Acknowledge stamps acknowledger, time and reason on an alert and applies
// the requested suppression. is_active is never touched.
func (s *AlertStorage) Acknowledge(id int64, req AckRequest) (*model.Alert, error) {
	now := s.db.timestamp()
	var out *model.Alert
	err := s.db.WithTx(func(tx *sql.Tx) error {
		prev, err := getAlert(tx, id)
		if err != nil {
			return err
		}

		_, err = tx.Exec(`UPDATE alerts SET acknowledged_at = ?, acknowledged_by = ?, acknowledge_reason = ?,
			is_suppressed = ?, suppress_until = ? WHERE id = ?`,
			now, req.By, req.Reason, req.Suppress, nullTime(req.Until), id)
		if err != nil {
			return fmt.Errorf("failed to acknowledge alert %d: %w", id, err)
		}

		prevSuppressed := prev.IsSuppressed
		details := model.HistoryDetails{
			AcknowledgedBy:    req.By,
			Reason:            req.Reason,
			Suppressed:        req.Suppress,
			SuppressUntil:     req.Until,
			PrevSuppressed:    &prevSuppressed,
			PrevSuppressUntil: prev.SuppressUntil,
		}
		if err := insertHistory(tx, id, model.EventAcknowledged, now, details); err != nil {
			return err
		}
		out, err = getAlert(tx, id)
		return err
	})
	return out, err
}

// Unsuppress clears the suppression of an alert.
func (s *AlertStorage) Unsuppress(id int64, by string) (*model.Alert, error) {
	now := s.db.timestamp()
	var out *model.Alert
	err := s.db.WithTx(func(tx *sql.Tx) error {
		prev, err := getAlert(tx, id)
		if err != nil {
			return err
		}

		if _, err := tx.Exec("UPDATE alerts SET is_suppressed = 0, suppress_until = NULL WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to unsuppress alert %d: %w", id, err)
		}

		prevSuppressed := prev.IsSuppressed
		details := model.HistoryDetails{
			AcknowledgedBy:    by,
			PrevSuppressed:    &prevSuppressed,
			PrevSuppressUntil: prev.SuppressUntil,
		}
		if err := insertHistory(tx, id, model.EventUnsuppressed, now, details); err != nil {
			return err
		}
		out, err = getAlert(tx, id)
		return err
	})
	return out, err
}

// EditHistoryReason replaces the free-text reason of a history entry.
// Editing a soft-deleted entry is a conflict.
func (s *AlertStorage) EditHistoryReason(historyID int64, reason string) error {
	return s.db.WithTx(func(tx *sql.Tx) error {
		h, err := getHistory(tx, historyID)
		if err != nil {
			return err
		}
		if h.DeletedAt != nil {
			return fmt.Errorf("history %d is deleted: %w", historyID, model.ErrConflict)
		}

		h.Details.Reason = reason
		return updateHistoryDetails(tx, historyID, h.Details)
	})
}

// DeleteHistory soft-deletes a history entry. With restore set, an
// acknowledged or unsuppressed entry puts the alert back into the
// suppression state it recorded as previous.
func (s *AlertStorage) DeleteHistory(historyID int64, by, reason string, restore bool) error {
	now := s.db.timestamp()
	return s.db.WithTx(func(tx *sql.Tx) error {
		h, err := getHistory(tx, historyID)
		if err != nil {
			return err
		}
		if h.DeletedAt != nil {
			return fmt.Errorf("history %d is already deleted: %w", historyID, model.ErrConflict)
		}

		if _, err := tx.Exec(`UPDATE alert_history SET deleted_at = ?, deleted_by = ?, delete_reason = ?
			WHERE id = ?`, now, by, reason, historyID); err != nil {
			return fmt.Errorf("failed to delete history %d: %w", historyID, err)
		}

		if !restore || h.Details.PrevSuppressed == nil {
			return nil
		}
		_, err = tx.Exec("UPDATE alerts SET is_suppressed = ?, suppress_until = ? WHERE id = ?",
			*h.Details.PrevSuppressed, nullTime(h.Details.PrevSuppressUntil), h.AlertID)
		if err != nil {
			return fmt.Errorf("failed to restore suppression of alert %d: %w", h.AlertID, err)
		}
		return nil
	})
}

// Delete removes an alert and, by cascade, its history.
func (s *AlertStorage) Delete(id int64) error {
	result, err := s.db.Exec("DELETE FROM alerts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete alert %d: %w", id, err)
	}
	return expectOne(result, "alert", id)
}

// Get returns an alert by ID.
func (s *AlertStorage) Get(id int64) (*model.Alert, error) {
	return getAlert(s.db, id)
}

// GetActive returns the active alert for a target and type, or nil.
func (s *AlertStorage) GetActive(target model.AlertTarget, alertType model.AlertType) (*model.Alert, error) {
	return activeAlert(s.db, target, alertType)
}

// ListActive returns all active alerts.
func (s *AlertStorage) ListActive() ([]model.Alert, error) {
	return s.List(AlertFilter{ActiveOnly: true})
}

// List returns alerts newest first.
func (s *AlertStorage) List(f AlertFilter) ([]model.Alert, error) {
	query := "SELECT " + alertColumns + " FROM alerts WHERE 1 = 1"
	var args []interface{}
	if f.ActiveOnly {
		query += " AND is_active = 1"
	}
	if f.DeviceID != nil {
		query += " AND device_id = ?"
		args = append(args, *f.DeviceID)
	}
	if f.Since != nil {
		query += " AND triggered_at >= ?"
		args = append(args, f.Since.UTC())
	}
	query += " ORDER BY triggered_at DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// ActiveCounts returns the number of active alerts per device and per link.
func (s *AlertStorage) ActiveCounts() (byDevice, byLink map[int64]int, err error) {
	rows, err := s.db.Query(`SELECT device_id, link_id, COUNT(*) FROM alerts WHERE is_active = 1
		GROUP BY device_id, link_id`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to count active alerts: %w", err)
	}
	defer rows.Close()

	byDevice, byLink = make(map[int64]int), make(map[int64]int)
	for rows.Next() {
		var d, l sql.NullInt64
		var n int
		if err := rows.Scan(&d, &l, &n); err != nil {
			return nil, nil, err
		}
		if d.Valid {
			byDevice[d.Int64] += n
		}
		if l.Valid {
			byLink[l.Int64] += n
		}
	}
	return byDevice, byLink, rows.Err()
}

// History returns the events of an alert in order. Soft-deleted entries
// are included only when includeDeleted is set.
func (s *AlertStorage) History(alertID int64, includeDeleted bool) ([]model.AlertHistory, error) {
	query := `SELECT id, alert_id, event_type, event_time, details, deleted_at, deleted_by, delete_reason
		FROM alert_history WHERE alert_id = ?`
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}
	query += " ORDER BY event_time, id"

	rows, err := s.db.Query(query, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var history []model.AlertHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, *h)
	}
	return history, rows.Err()
}

// GetHistory returns one history entry, deleted or not.
func (s *AlertStorage) GetHistory(id int64) (*model.AlertHistory, error) {
	return getHistory(s.db, id)
}

func targetColumns(t model.AlertTarget) (device, link interface{}) {
	if id, ok := t.DeviceID(); ok {
		return id, nil
	}
	if id, ok := t.LinkID(); ok {
		return nil, id
	}
	return nil, nil
}

func activeAlert(q querier, target model.AlertTarget, alertType model.AlertType) (*model.Alert, error) {
	a, err := scanAlert(q.QueryRow("SELECT "+alertColumns+` FROM alerts
		WHERE target_key = ? AND alert_type = ? AND is_active = 1`, target.Key(), string(alertType)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active alert: %w", err)
	}
	return a, nil
}

func getAlert(q querier, id int64) (*model.Alert, error) {
	a, err := scanAlert(q.QueryRow("SELECT "+alertColumns+" FROM alerts WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

func scanAlert(row rowScanner) (*model.Alert, error) {
	var a model.Alert
	var deviceID, linkID sql.NullInt64
	var alertType, severity string
	var current, threshold sql.NullFloat64
	var recovered, acked, until sql.NullTime

	if err := row.Scan(&a.ID, &deviceID, &linkID, &alertType, &severity, &a.Message, &current, &threshold,
		&a.IsActive, &a.TriggeredAt, &recovered, &acked, &a.AcknowledgedBy, &a.AckReason,
		&a.IsSuppressed, &until); err != nil {
		return nil, err
	}

	switch {
	case deviceID.Valid:
		a.Target = model.DeviceTarget(deviceID.Int64)
	case linkID.Valid:
		a.Target = model.LinkTarget(linkID.Int64)
	}
	a.Type = model.AlertType(alertType)
	a.Severity = model.Severity(severity)
	a.CurrentValue = floatPtr(current)
	a.ThresholdValue = floatPtr(threshold)
	a.RecoveredAt = timePtr(recovered)
	a.AcknowledgedAt = timePtr(acked)
	a.SuppressUntil = timePtr(until)
	return &a, nil
}

func insertHistory(tx *sql.Tx, alertID int64, event model.HistoryEvent, at time.Time, details model.HistoryDetails) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode history details: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO alert_history (alert_id, event_type, event_time, details)
		VALUES (?, ?, ?, ?)`, alertID, string(event), at, string(payload)); err != nil {
		return fmt.Errorf("failed to append %s history to alert %d: %w", event, alertID, err)
	}
	return nil
}

func updateHistoryDetails(tx *sql.Tx, id int64, details model.HistoryDetails) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode history details: %w", err)
	}
	if _, err := tx.Exec("UPDATE alert_history SET details = ? WHERE id = ?", string(payload), id); err != nil {
		return fmt.Errorf("failed to update history %d: %w", id, err)
	}
	return nil
}

func getHistory(q querier, id int64) (*model.AlertHistory, error) {
	h, err := scanHistory(q.QueryRow(`SELECT id, alert_id, event_type, event_time, details, deleted_at,
		deleted_by, delete_reason FROM alert_history WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("history %d: %w", id, model.ErrNotFound)
	}
	return h, err
}

func scanHistory(row rowScanner) (*model.AlertHistory, error) {
	var h model.AlertHistory
	var event, details string
	var deleted sql.NullTime
	if err := row.Scan(&h.ID, &h.AlertID, &event, &h.EventTime, &details, &deleted,
		&h.DeletedBy, &h.DeleteReason); err != nil {
		return nil, err
	}
	h.Event = model.HistoryEvent(event)
	h.DeletedAt = timePtr(deleted)
	if err := json.Unmarshal([]byte(details), &h.Details); err != nil {
		return nil, fmt.Errorf("failed to decode history %d: %w", h.ID, err)
	}
	return &h, nil
}
