// Package alert evaluates device and link state against thresholds and
// maintains the alert lifecycle.
package alert

import (
	"fmt"

	"github.com/user/topomon/internal/model"
)

// Decision is the outcome of one threshold evaluation.
type Decision struct {
	Kind      model.ChangeKind // zero when nothing changes
	Severity  model.Severity
	Threshold float64
}

// None reports whether the evaluation produced no event.
func (d Decision) None() bool { return d.Kind == 0 }

// Evaluate applies the threshold state machine with hysteresis. active is
// the currently open alert for the same target and metric, or nil.
//
// At or above critical an alert is raised, or escalated in place if it is
// not critical yet. Between warning and critical an alert is raised only
// when none is open; an open critical alert is not demoted. Below warning
// an open alert recovers once the value drops under warning minus the
// recovery buffer.
func Evaluate(value float64, th model.Threshold, active *model.Alert) Decision {
	switch {
	case value >= th.Critical:
		if active == nil {
			return Decision{Kind: model.ChangeTrigger, Severity: model.SeverityCritical, Threshold: th.Critical}
		}
		if active.Severity != model.SeverityCritical {
			return Decision{Kind: model.ChangeEscalate, Severity: model.SeverityCritical, Threshold: th.Critical}
		}
	case value >= th.Warning:
		if active == nil {
			return Decision{Kind: model.ChangeTrigger, Severity: model.SeverityWarning, Threshold: th.Warning}
		}
	case active != nil && value < th.RecoveryLevel():
		return Decision{Kind: model.ChangeRecover, Severity: model.SeverityInfo, Threshold: th.RecoveryLevel()}
	}
	return Decision{}
}

// metricCheck describes one evaluated metric.
type metricCheck struct {
	metric   string
	label    string
	high     model.AlertType
	recovery model.AlertType
}

var (
	cpuCheck    = metricCheck{model.MetricCPU, "CPU", model.AlertCPUHigh, model.AlertCPUNormal}
	memoryCheck = metricCheck{model.MetricMemory, "memory", model.AlertMemoryHigh, model.AlertMemoryNormal}
	linkCheck   = metricCheck{model.MetricLinkUtilization, "utilization", model.AlertLinkHighUtilization, model.AlertLinkUtilizationNormal}
)

// change turns a decision into a storage change for target.
func (m metricCheck) change(d Decision, target model.AlertTarget, name string, value float64) model.AlertChange {
	c := model.AlertChange{
		Kind:     d.Kind,
		Target:   target,
		Type:     m.high,
		Metric:   m.metric,
		Severity: d.Severity,
		Value:    model.Float(value),
	}
	if d.Kind == model.ChangeRecover {
		c.Event = m.recovery
		c.Message = fmt.Sprintf("%s %s recovered: %.1f%%", name, m.label, value)
		return c
	}
	c.Threshold = model.Float(d.Threshold)
	c.Message = fmt.Sprintf("%s %s %s: %.1f%% (threshold: %g%%)", name, m.label, d.Severity, value, d.Threshold)
	return c
}
