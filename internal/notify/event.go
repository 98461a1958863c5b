// Package notify forwards alert and discovery events to external log
// destinations without blocking the caller.
package notify

import (
	"time"

	"github.com/user/topomon/internal/model"
)

// Level is the log level of an event.
type Level string

const (
	LevelDebug    Level = "DEBUG"
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

// Event is one structured record delivered to every sink.
type Event struct {
	Timestamp      time.Time              `json:"timestamp"`
	Level          Level                  `json:"level"`
	Source         string                 `json:"source"`
	Message        string                 `json:"message"`
	DeviceHostname string                 `json:"device_hostname,omitempty"`
	DeviceIP       string                 `json:"device_ip,omitempty"`
	Target         string                 `json:"target,omitempty"`
	AlertType      string                 `json:"alert_type,omitempty"`
	AlertSeverity  string                 `json:"alert_severity,omitempty"`
	MetricName     string                 `json:"metric_name,omitempty"`
	MetricValue    *float64               `json:"metric_value,omitempty"`
	ThresholdValue *float64               `json:"threshold_value,omitempty"`
	Extra          map[string]interface{} `json:"extra,omitempty"`
}

// AlertEvent describes an applied alert transition. Recoveries carry the
// recovery type and info level.
func AlertEvent(tr model.AlertTransition, device *model.Device) Event {
	c := tr.Change
	e := Event{
		Timestamp:      time.Now().UTC(),
		Source:         "alert_engine",
		Message:        c.Message,
		Target:         c.Target.Key(),
		AlertType:      string(c.Type),
		AlertSeverity:  string(c.Severity),
		MetricName:     c.Metric,
		MetricValue:    c.Value,
		ThresholdValue: c.Threshold,
		Extra:          map[string]interface{}{"alert_id": tr.Alert.ID, "change": c.Kind.String()},
	}
	switch {
	case c.Kind == model.ChangeRecover:
		e.Level = LevelInfo
		e.AlertType = string(c.Event)
		e.AlertSeverity = string(model.SeverityInfo)
	case c.Severity == model.SeverityCritical:
		e.Level = LevelCritical
	default:
		e.Level = LevelWarning
	}
	if e.Message == "" {
		e.Message = tr.Alert.Message
	}
	if device != nil {
		e.DeviceHostname = device.Hostname
		e.DeviceIP = device.IP
	}
	return e
}

// DiscoveryEvent describes a newly onboarded device.
func DiscoveryEvent(kind model.AlertType, device model.Device, extra map[string]interface{}) Event {
	return Event{
		Timestamp:      time.Now().UTC(),
		Level:          LevelInfo,
		Source:         "discovery",
		Message:        "Discovery event: " + string(kind) + " - " + device.Hostname,
		DeviceHostname: device.Hostname,
		DeviceIP:       device.IP,
		AlertType:      string(kind),
		Extra:          extra,
	}
}
