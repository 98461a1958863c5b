package alert

import (
	"errors"
	"fmt"
	"time"

	"github.com/user/topomon/internal/model"
	"github.com/user/topomon/internal/notify"
	"github.com/user/topomon/internal/storage"
	"github.com/user/topomon/internal/util"
)

// Engine runs check cycles and user-facing alert operations.
type Engine struct {
	devices  *storage.DeviceStorage
	links    *storage.LinkStorage
	profiles *storage.ProfileStorage
	alerts   *storage.AlertStorage
	notifier notify.Publisher
	now      func() time.Time
}

// NewEngine creates an engine over db. notifier may be nil.
func NewEngine(db *storage.DB, notifier notify.Publisher) *Engine {
	return &Engine{
		devices:  storage.NewDeviceStorage(db),
		links:    storage.NewLinkStorage(db),
		profiles: storage.NewProfileStorage(db),
		alerts:   storage.NewAlertStorage(db),
		notifier: notifier,
		now:      time.Now,
	}
}

// CycleResult summarizes one check cycle.
type CycleResult struct {
	DevicesChecked int
	LinksChecked   int
	Transitions    []model.AlertTransition
	Notified       int
}

// profileCache resolves thresholds for one check cycle.
type profileCache struct {
	store *storage.ProfileStorage
	byID  map[int64]model.Thresholds
}

func newProfileCache(store *storage.ProfileStorage) *profileCache {
	return &profileCache{store: store, byID: make(map[int64]model.Thresholds)}
}

// thresholds returns the device's profile thresholds. A device without a
// profile, or whose profile is gone, gets an empty set so Thresholds.For
// falls back to the built-in defaults.
func (c *profileCache) thresholds(d *model.Device) model.Thresholds {
	if d == nil || d.AlertProfileID == nil {
		return model.Thresholds{}
	}
	id := *d.AlertProfileID
	if th, ok := c.byID[id]; ok {
		return th
	}
	p, err := c.store.Get(id)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			util.Warn("Failed to load alert profile %d: %v", id, err)
		}
		c.byID[id] = model.Thresholds{}
		return model.Thresholds{}
	}
	c.byID[id] = p.Thresholds
	return p.Thresholds
}

type activeKey struct {
	target string
	kind   model.AlertType
}

// Check evaluates every device and merged link once, commits the
// resulting changes in one transaction, then notifies unsuppressed
// transitions.
func (e *Engine) Check() (*CycleResult, error) {
	active, err := e.alerts.ListActive()
	if err != nil {
		return nil, err
	}
	open := make(map[activeKey]*model.Alert, len(active))
	for i := range active {
		a := &active[i]
		open[activeKey{a.Target.Key(), a.Type}] = a
	}

	devices, err := e.devices.List()
	if err != nil {
		return nil, err
	}
	links, err := e.links.ListMerged()
	if err != nil {
		return nil, err
	}

	cache := newProfileCache(e.profiles)
	byID := make(map[int64]*model.Device, len(devices))
	result := &CycleResult{}
	var changes []model.AlertChange

	for i := range devices {
		d := &devices[i]
		byID[d.ID] = d
		if d.Status == model.StatusExcluded {
			continue
		}
		result.DevicesChecked++
		target := model.DeviceTarget(d.ID)

		if c, ok := checkReachability(d, open[activeKey{target.Key(), model.AlertDeviceOffline}]); ok {
			changes = append(changes, c)
		}

		th := cache.thresholds(d)
		for _, m := range []struct {
			check metricCheck
			value *float64
		}{{cpuCheck, d.CPUPercent}, {memoryCheck, d.MemoryPercent}} {
			if m.value == nil {
				continue
			}
			dec := Evaluate(*m.value, th.For(m.check.metric), open[activeKey{target.Key(), m.check.high}])
			if !dec.None() {
				changes = append(changes, m.check.change(dec, target, d.Hostname, *m.value))
			}
		}
	}

	for _, l := range links {
		if l.IsExcluded {
			continue
		}
		result.LinksChecked++
		a, b := byID[l.DeviceAID], byID[l.DeviceBID]
		target := model.LinkTarget(l.ID)
		value := l.PeakUtilization()
		dec := Evaluate(value, cache.thresholds(a).For(model.MetricLinkUtilization), open[activeKey{target.Key(), linkCheck.high}])
		if !dec.None() {
			changes = append(changes, linkCheck.change(dec, target, linkName(l, a, b), value))
		}
	}

	if len(changes) == 0 {
		return result, nil
	}
	result.Transitions, err = e.alerts.Apply(changes)
	if err != nil {
		return nil, fmt.Errorf("failed to commit alert changes: %w", err)
	}
	result.Notified = e.notify(result.Transitions, byID)
	util.Info("Alert check: %d devices, %d links, %d transitions", result.DevicesChecked, result.LinksChecked, len(result.Transitions))
	return result, nil
}

func checkReachability(d *model.Device, active *model.Alert) (model.AlertChange, bool) {
	target := model.DeviceTarget(d.ID)
	switch {
	case d.Status == model.StatusOffline && active == nil:
		return model.AlertChange{
			Kind:     model.ChangeTrigger,
			Target:   target,
			Type:     model.AlertDeviceOffline,
			Severity: model.SeverityCritical,
			Message:  fmt.Sprintf("Device %s (%s) is offline", d.Hostname, d.IP),
		}, true
	case d.Status == model.StatusManaged && active != nil:
		return model.AlertChange{
			Kind:     model.ChangeRecover,
			Target:   target,
			Type:     model.AlertDeviceOffline,
			Event:    model.AlertDeviceOnline,
			Severity: model.SeverityInfo,
			Message:  fmt.Sprintf("Device %s (%s) is back online", d.Hostname, d.IP),
		}, true
	}
	return model.AlertChange{}, false
}

func linkName(l model.MergedLink, a, b *model.Device) string {
	name := func(d *model.Device, id int64) string {
		if d == nil {
			return fmt.Sprintf("device %d", id)
		}
		return d.Hostname
	}
	return fmt.Sprintf("Link %s <-> %s", name(a, l.DeviceAID), name(b, l.DeviceBID))
}

func (e *Engine) notify(transitions []model.AlertTransition, devices map[int64]*model.Device) int {
	if e.notifier == nil {
		return 0
	}
	now := e.now()
	sent := 0
	for _, tr := range transitions {
		if tr.Alert.SuppressedAt(now) {
			continue
		}
		var dev *model.Device
		if id, ok := tr.Change.Target.DeviceID(); ok {
			dev = devices[id]
		}
		e.notifier.Publish(notify.AlertEvent(tr, dev))
		sent++
	}
	return sent
}
