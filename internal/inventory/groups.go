package inventory

import (
	"github.com/user/topomon/internal/model"
)

// GroupInput creates a device group.
type GroupInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
	ParentID    *int64 `json:"parent_id"`
}

// CreateGroup adds a group. Group names are unique.
func (m *Manager) CreateGroup(in GroupInput) (*model.DeviceGroup, error) {
	if err := validate("group", in); err != nil {
		return nil, err
	}
	groups, err := m.groups.List()
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if g.Name == in.Name {
			return nil, conflictf("group %q already exists", in.Name)
		}
	}
	if in.ParentID != nil {
		if _, err := m.groups.Get(*in.ParentID); err != nil {
			return nil, err
		}
	}

	g := &model.DeviceGroup{Name: in.Name, Description: in.Description, ParentID: in.ParentID}
	if err := m.groups.Create(g); err != nil {
		return nil, err
	}
	return g, nil
}

// DeleteGroup removes a group. Member devices are kept.
func (m *Manager) DeleteGroup(id int64) error {
	return m.groups.Delete(id)
}

// SetGroupParent nests a group. A nil parent makes it top-level.
func (m *Manager) SetGroupParent(id int64, parent *int64) error {
	if _, err := m.groups.Get(id); err != nil {
		return err
	}
	if parent != nil {
		if *parent == id {
			return invalidf("group %d cannot contain itself", id)
		}
		if _, err := m.groups.Get(*parent); err != nil {
			return err
		}
		loop, err := createsCycle(id, *parent, func(n int64) (*int64, error) {
			g, err := m.groups.Get(n)
			if err != nil {
				return nil, err
			}
			return g.ParentID, nil
		})
		if err != nil {
			return err
		}
		if loop {
			return invalidf("group %d already contains group %d", id, *parent)
		}
	}
	return m.groups.SetParent(id, parent)
}

// GroupDevices returns the direct members of a group.
func (m *Manager) GroupDevices(id int64) ([]model.Device, error) {
	if _, err := m.groups.Get(id); err != nil {
		return nil, err
	}
	members, err := m.groups.Memberships()
	if err != nil {
		return nil, err
	}
	devices, err := m.devices.List()
	if err != nil {
		return nil, err
	}
	in := make(map[int64]bool, len(members[id]))
	for _, d := range members[id] {
		in[d] = true
	}
	var out []model.Device
	for _, d := range devices {
		if in[d.ID] {
			out = append(out, d)
		}
	}
	return out, nil
}

// AddMembers puts devices into a group and returns how many were new.
// Every device must exist.
func (m *Manager) AddMembers(groupID int64, deviceIDs []int64) (int, error) {
	if _, err := m.groups.Get(groupID); err != nil {
		return 0, err
	}
	for _, id := range deviceIDs {
		if _, err := m.devices.Get(id); err != nil {
			return 0, err
		}
	}
	added := 0
	for _, id := range deviceIDs {
		ok, err := m.groups.AddMember(groupID, id)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

// RemoveMembers takes devices out of a group and returns how many were
// members. Devices that were not members are skipped.
func (m *Manager) RemoveMembers(groupID int64, deviceIDs []int64) (int, error) {
	if _, err := m.groups.Get(groupID); err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range deviceIDs {
		err := m.groups.RemoveMember(groupID, id)
		switch {
		case err == nil:
			removed++
		case !isNotFound(err):
			return removed, err
		}
	}
	return removed, nil
}
