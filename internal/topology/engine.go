package topology

import (
	"fmt"
	"time"

	"github.com/user/topomon/internal/model"
	"github.com/user/topomon/internal/storage"
	"github.com/user/topomon/internal/util"
)

// Engine runs link merges and serves views over persisted state.
type Engine struct {
	devices *storage.DeviceStorage
	links   *storage.LinkStorage
	groups  *storage.GroupStorage
	rules   *storage.RuleStorage
	alerts  *storage.AlertStorage
	now     func() time.Time
}

// NewEngine creates an engine over db.
func NewEngine(db *storage.DB) *Engine {
	return &Engine{
		devices: storage.NewDeviceStorage(db),
		links:   storage.NewLinkStorage(db),
		groups:  storage.NewGroupStorage(db),
		rules:   storage.NewRuleStorage(db),
		alerts:  storage.NewAlertStorage(db),
		now:     time.Now,
	}
}

// MergeLinks recomputes every merged link from raw observations and the
// latest interface samples, and upserts them by device pair. Pairs that
// no longer appear keep their previous row.
func (e *Engine) MergeLinks() ([]model.MergedLink, error) {
	devices, err := e.devices.List()
	if err != nil {
		return nil, err
	}
	raw, err := e.links.ListRaw()
	if err != nil {
		return nil, err
	}
	samples, err := e.links.AllSamples()
	if err != nil {
		return nil, err
	}

	merged := Merge(devices, raw, samples, e.now().UTC())
	if err := e.links.UpsertMerged(merged); err != nil {
		return nil, fmt.Errorf("failed to store merged links: %w", err)
	}
	util.Debug("Merged %d raw links into %d device pairs", len(raw), len(merged))
	return merged, nil
}

// Snapshot loads everything views are built from.
func (e *Engine) Snapshot() (*Snapshot, error) {
	s := &Snapshot{}
	var err error
	if s.Devices, err = e.devices.List(); err != nil {
		return nil, err
	}
	if s.Links, err = e.links.ListMerged(); err != nil {
		return nil, err
	}
	if s.Groups, err = e.groups.List(); err != nil {
		return nil, err
	}
	if s.Members, err = e.groups.Memberships(); err != nil {
		return nil, err
	}
	if s.Rules, err = e.rules.List(); err != nil {
		return nil, err
	}
	if s.DeviceAlerts, s.LinkAlerts, err = e.alerts.ActiveCounts(); err != nil {
		return nil, err
	}
	return s, nil
}

// View renders the requested view. groupID is only used by ViewGroup.
func (e *Engine) View(kind ViewKind, groupID int64) (*Topology, error) {
	s, err := e.Snapshot()
	if err != nil {
		return nil, err
	}
	switch kind {
	case ViewOverview:
		return s.Overview(), nil
	case ViewFull:
		return s.Full(), nil
	case ViewGroup:
		return s.GroupView(groupID)
	}
	return nil, fmt.Errorf("unknown view %q", kind)
}

// GroupTopology renders a group with its link-connected neighbors.
func (e *Engine) GroupTopology(groupID int64) (*Topology, error) {
	s, err := e.Snapshot()
	if err != nil {
		return nil, err
	}
	return s.GroupTopology(groupID)
}

func (e *Engine) hierarchy() (*Hierarchy, error) {
	devices, err := e.devices.List()
	if err != nil {
		return nil, err
	}
	return NewHierarchy(devices), nil
}

// Ancestors returns the parent chain of a device, nearest first.
func (e *Engine) Ancestors(id int64) ([]model.Device, error) {
	h, err := e.hierarchy()
	if err != nil {
		return nil, err
	}
	return h.Ancestors(id)
}

// Subtree returns a device and all its descendants.
func (e *Engine) Subtree(id int64) (*TreeNode, error) {
	h, err := e.hierarchy()
	if err != nil {
		return nil, err
	}
	return h.Subtree(id)
}
