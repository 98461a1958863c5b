package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Metric names used in alert profiles.
const (
	MetricLinkUtilization = "link_utilization"
	MetricCPU             = "cpu"
	MetricMemory          = "memory"
)

// AlertType identifies what an alert is about.
type AlertType string

const (
	AlertDeviceOffline         AlertType = "device_offline"
	AlertDeviceOnline          AlertType = "device_online"
	AlertLinkHighUtilization   AlertType = "link_high_utilization"
	AlertLinkUtilizationNormal AlertType = "link_utilization_normal"
	AlertCPUHigh               AlertType = "cpu_high"
	AlertCPUNormal             AlertType = "cpu_normal"
	AlertMemoryHigh            AlertType = "memory_high"
	AlertMemoryNormal          AlertType = "memory_normal"
	AlertNewDeviceDiscovered   AlertType = "new_device_discovered"
	AlertNewLinkDiscovered     AlertType = "new_link_discovered"
)

var recoveryBase = map[AlertType]AlertType{
	AlertDeviceOnline:          AlertDeviceOffline,
	AlertLinkUtilizationNormal: AlertLinkHighUtilization,
	AlertCPUNormal:             AlertCPUHigh,
	AlertMemoryNormal:          AlertMemoryHigh,
}

// IsRecovery reports whether t is a recovery type.
func (t AlertType) IsRecovery() bool {
	_, ok := recoveryBase[t]
	return ok
}

// Base maps a recovery type to the alert type it resolves. Non-recovery
// types are returned unchanged.
func (t AlertType) Base() AlertType {
	if b, ok := recoveryBase[t]; ok {
		return b
	}
	return t
}

// Severity of an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// TargetKind tags an AlertTarget.
type TargetKind string

const (
	TargetDevice TargetKind = "device"
	TargetLink   TargetKind = "link"
)

// AlertTarget is either a device or a merged link, never both.
type AlertTarget struct {
	kind TargetKind
	id   int64
}

// DeviceTarget targets a device.
func DeviceTarget(id int64) AlertTarget { return AlertTarget{kind: TargetDevice, id: id} }

// LinkTarget targets a merged link.
func LinkTarget(id int64) AlertTarget { return AlertTarget{kind: TargetLink, id: id} }

func (t AlertTarget) Kind() TargetKind { return t.kind }
func (t AlertTarget) ID() int64        { return t.id }

// DeviceID returns the device id when the target is a device.
func (t AlertTarget) DeviceID() (int64, bool) {
	return t.id, t.kind == TargetDevice
}

// LinkID returns the link id when the target is a link.
func (t AlertTarget) LinkID() (int64, bool) {
	return t.id, t.kind == TargetLink
}

// Key is the stable textual form, e.g. "device:12".
func (t AlertTarget) Key() string {
	return fmt.Sprintf("%s:%d", t.kind, t.id)
}

func (t AlertTarget) String() string { return t.Key() }

// ParseTargetKey is the inverse of Key.
func ParseTargetKey(s string) (AlertTarget, error) {
	kind, idStr, ok := strings.Cut(s, ":")
	if !ok {
		return AlertTarget{}, fmt.Errorf("invalid target key %q", s)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return AlertTarget{}, fmt.Errorf("invalid target key %q: %w", s, err)
	}
	switch TargetKind(kind) {
	case TargetDevice:
		return DeviceTarget(id), nil
	case TargetLink:
		return LinkTarget(id), nil
	}
	return AlertTarget{}, fmt.Errorf("invalid target kind %q", kind)
}

func (t AlertTarget) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind TargetKind `json:"kind"`
		ID   int64      `json:"id"`
	}{t.kind, t.id})
}

// Threshold is a warning/critical pair with a recovery hysteresis buffer.
type Threshold struct {
	Warning        float64 `json:"warning" validate:"gte=0"`
	Critical       float64 `json:"critical" validate:"gtefield=Warning"`
	RecoveryBuffer float64 `json:"recovery_buffer" validate:"gte=0"`
}

// RecoveryLevel is the value a metric must drop below to recover.
func (t Threshold) RecoveryLevel() float64 {
	return t.Warning - t.RecoveryBuffer
}

// DefaultThresholds apply to devices without a profile and to metrics a
// profile leaves out.
var DefaultThresholds = map[string]Threshold{
	MetricLinkUtilization: {Warning: 70, Critical: 90, RecoveryBuffer: 10},
	MetricCPU:             {Warning: 80, Critical: 95, RecoveryBuffer: 10},
	MetricMemory:          {Warning: 85, Critical: 95, RecoveryBuffer: 10},
}

// Thresholds is the per-metric configuration of an AlertProfile. Keys the
// engine does not know are preserved in Extra.
type Thresholds struct {
	LinkUtilization *Threshold                 `json:"link_utilization,omitempty"`
	CPU             *Threshold                 `json:"cpu,omitempty"`
	Memory          *Threshold                 `json:"memory,omitempty"`
	Extra           map[string]json.RawMessage `json:"-"`
}

// For returns the threshold for metric, falling back to the defaults.
func (t Thresholds) For(metric string) Threshold {
	var th *Threshold
	switch metric {
	case MetricLinkUtilization:
		th = t.LinkUtilization
	case MetricCPU:
		th = t.CPU
	case MetricMemory:
		th = t.Memory
	}
	if th != nil {
		return *th
	}
	return DefaultThresholds[metric]
}

func (t Thresholds) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(t.Extra)+3)
	for k, v := range t.Extra {
		out[k] = v
	}
	if t.LinkUtilization != nil {
		out[MetricLinkUtilization] = t.LinkUtilization
	}
	if t.CPU != nil {
		out[MetricCPU] = t.CPU
	}
	if t.Memory != nil {
		out[MetricMemory] = t.Memory
	}
	return json.Marshal(out)
}

func (t *Thresholds) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = Thresholds{}
	for k, v := range raw {
		var dst **Threshold
		switch k {
		case MetricLinkUtilization:
			dst = &t.LinkUtilization
		case MetricCPU:
			dst = &t.CPU
		case MetricMemory:
			dst = &t.Memory
		default:
			if t.Extra == nil {
				t.Extra = make(map[string]json.RawMessage)
			}
			t.Extra[k] = v
			continue
		}
		// Missing fields inherit the metric default.
		th := DefaultThresholds[k]
		if err := json.Unmarshal(v, &th); err != nil {
			return fmt.Errorf("threshold %s: %w", k, err)
		}
		*dst = &th
	}
	return nil
}

// AlertProfile is a named set of thresholds assignable to devices.
type AlertProfile struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name" validate:"required,max=100"`
	Description string     `json:"description,omitempty"`
	Thresholds  Thresholds `json:"thresholds"`
	IsDefault   bool       `json:"is_default"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Alert is one open or closed incident.
type Alert struct {
	ID             int64       `json:"id"`
	Target         AlertTarget `json:"target"`
	Type           AlertType   `json:"alert_type"`
	Severity       Severity    `json:"severity"`
	Message        string      `json:"message"`
	CurrentValue   *float64    `json:"current_value,omitempty"`
	ThresholdValue *float64    `json:"threshold_value,omitempty"`
	IsActive       bool        `json:"is_active"`
	TriggeredAt    time.Time   `json:"triggered_at"`
	RecoveredAt    *time.Time  `json:"recovered_at,omitempty"`
	AcknowledgedAt *time.Time  `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string      `json:"acknowledged_by,omitempty"`
	AckReason      string      `json:"acknowledge_reason,omitempty"`
	IsSuppressed   bool        `json:"is_suppressed"`
	SuppressUntil  *time.Time  `json:"suppress_until,omitempty"`
}

// SuppressedAt reports whether notifications for the alert are withheld at
// time now. A nil SuppressUntil means until resolved.
func (a Alert) SuppressedAt(now time.Time) bool {
	if !a.IsSuppressed {
		return false
	}
	return a.SuppressUntil == nil || now.Before(*a.SuppressUntil)
}

// HistoryEvent is the kind of an AlertHistory entry.
type HistoryEvent string

const (
	EventTriggered    HistoryEvent = "triggered"
	EventUpdated      HistoryEvent = "updated"
	EventRecovered    HistoryEvent = "recovered"
	EventAcknowledged HistoryEvent = "acknowledged"
	EventUnsuppressed HistoryEvent = "unsuppressed"
)

// HistoryDetails is the structured payload of a history entry. Which
// fields are set depends on the event:
//
//	triggered    Value, Threshold, Severity
//	updated      Value, Threshold, Severity
//	recovered    Value
//	acknowledged AcknowledgedBy, Reason, Suppressed, SuppressUntil, Prev*
//	unsuppressed AcknowledgedBy, Prev*
type HistoryDetails struct {
	Value          *float64   `json:"value,omitempty"`
	Threshold      *float64   `json:"threshold,omitempty"`
	Severity       Severity   `json:"severity,omitempty"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	Suppressed     bool       `json:"suppressed,omitempty"`
	SuppressUntil  *time.Time `json:"suppress_until,omitempty"`

	PrevSuppressed    *bool      `json:"prev_suppressed,omitempty"`
	PrevSuppressUntil *time.Time `json:"prev_suppress_until,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var historyKnownKeys = map[string]bool{
	"value": true, "threshold": true, "severity": true, "acknowledged_by": true,
	"reason": true, "suppressed": true, "suppress_until": true,
	"prev_suppressed": true, "prev_suppress_until": true,
}

type historyDetailsAlias HistoryDetails

func (d HistoryDetails) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(historyDetailsAlias(d))
	if err != nil || len(d.Extra) == 0 {
		return known, err
	}
	merged := make(map[string]json.RawMessage, len(d.Extra)+4)
	for k, v := range d.Extra {
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func (d *HistoryDetails) UnmarshalJSON(data []byte) error {
	var alias historyDetailsAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		if historyKnownKeys[k] {
			continue
		}
		if alias.Extra == nil {
			alias.Extra = make(map[string]json.RawMessage)
		}
		alias.Extra[k] = v
	}
	*d = HistoryDetails(alias)
	return nil
}

// AlertHistory is one append-only event of an alert.
type AlertHistory struct {
	ID           int64          `json:"id"`
	AlertID      int64          `json:"alert_id"`
	Event        HistoryEvent   `json:"event_type"`
	EventTime    time.Time      `json:"event_time"`
	Details      HistoryDetails `json:"details"`
	DeletedAt    *time.Time     `json:"deleted_at,omitempty"`
	DeletedBy    string         `json:"deleted_by,omitempty"`
	DeleteReason string         `json:"delete_reason,omitempty"`
}

// ChangeKind classifies an AlertChange.
type ChangeKind int

const (
	ChangeTrigger ChangeKind = iota + 1
	ChangeEscalate
	ChangeRecover
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeTrigger:
		return "trigger"
	case ChangeEscalate:
		return "escalate"
	case ChangeRecover:
		return "recover"
	}
	return "unknown"
}

// AlertChange is one state transition computed by a check cycle. For
// recoveries Type is the alert type being resolved and Event the recovery
// type that resolved it.
type AlertChange struct {
	Kind      ChangeKind
	Target    AlertTarget
	Type      AlertType
	Event     AlertType
	Metric    string
	Severity  Severity
	Message   string
	Value     *float64
	Threshold *float64
}

// AlertTransition is an AlertChange that was committed, with the alert as
// it stands afterwards.
type AlertTransition struct {
	Change AlertChange
	Alert  Alert
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }
