package topology

import (
	"fmt"
	"sort"
	"time"

	"github.com/user/topomon/internal/model"
)

// ViewKind selects which devices a topology view contains.
type ViewKind string

const (
	ViewOverview ViewKind = "overview"
	ViewGroup    ViewKind = "group"
	ViewFull     ViewKind = "full"
)

// ParseViewKind validates a view name.
func ParseViewKind(s string) (ViewKind, error) {
	switch k := ViewKind(s); k {
	case ViewOverview, ViewGroup, ViewFull:
		return k, nil
	case "":
		return ViewOverview, nil
	}
	return "", fmt.Errorf("unknown view %q", s)
}

// NodeRole tells why a device is part of a group-scoped view.
type NodeRole string

const (
	RoleMember   NodeRole = "member"
	RoleParent   NodeRole = "parent"
	RoleUpstream NodeRole = "upstream"
)

// Node is a device in a view.
type Node struct {
	model.Device
	Role         NodeRole `json:"role,omitempty"`
	ActiveAlerts int      `json:"active_alerts"`
}

// LinkView is a merged link in a view.
type LinkView struct {
	model.MergedLink
	Status       LinkStatus `json:"status"`
	ActiveAlerts int        `json:"active_alerts"`
}

// Topology is a rendered view.
type Topology struct {
	Kind        ViewKind   `json:"kind"`
	GroupID     *int64     `json:"group_id,omitempty"`
	Nodes       []Node     `json:"nodes"`
	Links       []LinkView `json:"links"`
	LastUpdated time.Time  `json:"last_updated"`
}

// Snapshot is the state a view is built from.
type Snapshot struct {
	Devices      []model.Device
	Links        []model.MergedLink
	Groups       []model.DeviceGroup
	Members      map[int64][]int64
	Rules        []model.ExcludeRule
	DeviceAlerts map[int64]int
	LinkAlerts   map[int64]int
}

var overviewTypes = map[model.DeviceType]bool{
	model.TypeCore:         true,
	model.TypeRouter:       true,
	model.TypeDistribution: true,
	model.TypeFirewall:     true,
}

// Overview selects backbone devices, or every device when none are typed as such.
func (s *Snapshot) Overview() *Topology {
	roles := make(map[int64]NodeRole)
	for _, d := range s.Devices {
		if overviewTypes[d.Type] {
			roles[d.ID] = ""
		}
	}
	if len(roles) == 0 {
		return s.Full()
	}
	t := s.render(roles)
	t.Kind = ViewOverview
	return t
}

// Full selects every device.
func (s *Snapshot) Full() *Topology {
	roles := make(map[int64]NodeRole, len(s.Devices))
	for _, d := range s.Devices {
		roles[d.ID] = ""
	}
	t := s.render(roles)
	t.Kind = ViewFull
	return t
}

// GroupView selects the members of a group and its nested groups, plus
// the direct hierarchy parent of each member.
func (s *Snapshot) GroupView(groupID int64) (*Topology, error) {
	members, err := s.groupMembers(groupID)
	if err != nil {
		return nil, err
	}

	byID := s.deviceIndex()
	roles := make(map[int64]NodeRole, len(members))
	for id := range members {
		roles[id] = RoleMember
	}
	for id := range members {
		d, ok := byID[id]
		if !ok || d.ParentID == nil {
			continue
		}
		if _, in := roles[*d.ParentID]; in {
			continue
		}
		if _, known := byID[*d.ParentID]; known {
			roles[*d.ParentID] = RoleParent
		}
	}

	t := s.render(roles)
	t.Kind = ViewGroup
	t.GroupID = &groupID
	return t, nil
}

// GroupTopology selects the members of a group plus any device directly
// linked to a member.
func (s *Snapshot) GroupTopology(groupID int64) (*Topology, error) {
	members, err := s.groupMembers(groupID)
	if err != nil {
		return nil, err
	}

	byID := s.deviceIndex()
	roles := make(map[int64]NodeRole, len(members))
	for id := range members {
		roles[id] = RoleMember
	}
	for _, l := range s.Links {
		_, aIn := members[l.DeviceAID]
		_, bIn := members[l.DeviceBID]
		switch {
		case aIn && !bIn:
			if _, ok := byID[l.DeviceBID]; ok {
				roles[l.DeviceBID] = RoleUpstream
			}
		case bIn && !aIn:
			if _, ok := byID[l.DeviceAID]; ok {
				roles[l.DeviceAID] = RoleUpstream
			}
		}
	}

	t := s.render(roles)
	t.Kind = ViewGroup
	t.GroupID = &groupID
	return t, nil
}

// groupMembers collects the devices of a group and its descendant groups.
func (s *Snapshot) groupMembers(groupID int64) (map[int64]struct{}, error) {
	children := make(map[int64][]int64)
	found := false
	for _, g := range s.Groups {
		if g.ID == groupID {
			found = true
		}
		if g.ParentID != nil {
			children[*g.ParentID] = append(children[*g.ParentID], g.ID)
		}
	}
	if !found {
		return nil, fmt.Errorf("group %d: %w", groupID, model.ErrNotFound)
	}

	members := make(map[int64]struct{})
	visited := map[int64]bool{}
	queue := []int64{groupID}
	for len(queue) > 0 {
		g := queue[0]
		queue = queue[1:]
		if visited[g] {
			continue
		}
		visited[g] = true
		for _, d := range s.Members[g] {
			members[d] = struct{}{}
		}
		queue = append(queue, children[g]...)
	}
	return members, nil
}

func (s *Snapshot) deviceIndex() map[int64]model.Device {
	byID := make(map[int64]model.Device, len(s.Devices))
	for _, d := range s.Devices {
		byID[d.ID] = d
	}
	return byID
}

// render emits the selected devices and the visible links among them.
func (s *Snapshot) render(roles map[int64]NodeRole) *Topology {
	names := make(map[int64]string, len(s.Devices))
	t := &Topology{Nodes: []Node{}, Links: []LinkView{}}
	for _, d := range s.Devices {
		names[d.ID] = d.Hostname
		role, ok := roles[d.ID]
		if !ok {
			continue
		}
		t.Nodes = append(t.Nodes, Node{Device: d, Role: role, ActiveAlerts: s.DeviceAlerts[d.ID]})
	}
	sort.Slice(t.Nodes, func(i, j int) bool { return t.Nodes[i].ID < t.Nodes[j].ID })

	rules := NewRuleSet(s.Rules)
	for _, l := range s.Links {
		if l.IsExcluded {
			continue
		}
		if _, ok := roles[l.DeviceAID]; !ok {
			continue
		}
		if _, ok := roles[l.DeviceBID]; !ok {
			continue
		}
		if rules.Excludes(l, names) {
			continue
		}
		t.Links = append(t.Links, LinkView{
			MergedLink:   l,
			Status:       StatusFor(l.PeakUtilization()),
			ActiveAlerts: s.LinkAlerts[l.ID],
		})
		if l.LastUpdated.After(t.LastUpdated) {
			t.LastUpdated = l.LastUpdated
		}
	}
	return t
}
