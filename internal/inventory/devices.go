package inventory

import (
	"errors"

	"github.com/user/topomon/internal/model"
)

// DeviceInput registers a device by hand.
type DeviceInput struct {
	Hostname       string           `json:"hostname" validate:"required,max=255"`
	IP             string           `json:"ip_address" validate:"required,ip|hostname_port"`
	Vendor         string           `json:"vendor" validate:"max=64"`
	Type           model.DeviceType `json:"device_type" validate:"omitempty,oneof=core distribution access router firewall ap unknown"`
	SNMPVersion    string           `json:"snmp_version" validate:"omitempty,oneof=v1 v2c v3"`
	Community      string           `json:"snmp_community" validate:"max=255"`
	V3User         string           `json:"snmp_v3_user" validate:"required_if=SNMPVersion v3,max=100"`
	V3Auth         string           `json:"snmp_v3_auth" validate:"max=255"`
	V3Priv         string           `json:"snmp_v3_priv" validate:"max=255"`
	ParentID       *int64           `json:"parent_device_id"`
	AlertProfileID *int64           `json:"alert_profile_id"`
	AutoDiscover   bool             `json:"auto_discover"`
}

// DevicePatch changes the fields that are set.
type DevicePatch struct {
	Hostname     *string             `json:"hostname" validate:"omitempty,min=1,max=255"`
	IP           *string             `json:"ip_address" validate:"omitempty,ip|hostname_port"`
	Vendor       *string             `json:"vendor" validate:"omitempty,max=64"`
	Type         *model.DeviceType   `json:"device_type" validate:"omitempty,oneof=core distribution access router firewall ap unknown"`
	SNMPVersion  *string             `json:"snmp_version" validate:"omitempty,oneof=v1 v2c v3"`
	Community    *string             `json:"snmp_community" validate:"omitempty,max=255"`
	Status       *model.DeviceStatus `json:"status" validate:"omitempty,oneof=unknown managed unmanaged offline excluded"`
	AutoDiscover *bool               `json:"auto_discover"`
}

// RegisterDevice adds a device. Hostnames are unique.
func (m *Manager) RegisterDevice(in DeviceInput) (*model.Device, error) {
	if err := validate("device", in); err != nil {
		return nil, err
	}
	if err := m.hostnameFree(in.Hostname, 0); err != nil {
		return nil, err
	}
	if in.ParentID != nil {
		if _, err := m.devices.Get(*in.ParentID); err != nil {
			return nil, err
		}
	}
	if in.AlertProfileID != nil {
		if _, err := m.profiles.Get(*in.AlertProfileID); err != nil {
			return nil, err
		}
	}

	d := &model.Device{
		Hostname: in.Hostname,
		IP:       in.IP,
		Vendor:   in.Vendor,
		Type:     in.Type,
		Credentials: model.Credentials{
			Version:   in.SNMPVersion,
			Community: in.Community,
			V3User:    in.V3User,
			V3Auth:    in.V3Auth,
			V3Priv:    in.V3Priv,
		},
		ParentID:       in.ParentID,
		AlertProfileID: in.AlertProfileID,
		AutoDiscover:   in.AutoDiscover,
	}
	if err := m.devices.Create(d); err != nil {
		return nil, err
	}
	return d, nil
}

// UpdateDevice applies p to device id.
func (m *Manager) UpdateDevice(id int64, p DevicePatch) (*model.Device, error) {
	if err := validate("device update", p); err != nil {
		return nil, err
	}
	d, err := m.devices.Get(id)
	if err != nil {
		return nil, err
	}
	if p.Hostname != nil && *p.Hostname != d.Hostname {
		if err := m.hostnameFree(*p.Hostname, id); err != nil {
			return nil, err
		}
		d.Hostname = *p.Hostname
	}
	if p.IP != nil {
		d.IP = *p.IP
	}
	if p.Vendor != nil {
		d.Vendor = *p.Vendor
	}
	if p.Type != nil {
		d.Type = *p.Type
	}
	if p.SNMPVersion != nil {
		d.Credentials.Version = *p.SNMPVersion
	}
	if p.Community != nil {
		d.Credentials.Community = *p.Community
	}
	if p.Status != nil {
		d.Status = *p.Status
	}
	if p.AutoDiscover != nil {
		d.AutoDiscover = *p.AutoDiscover
	}
	if err := m.devices.Update(d); err != nil {
		return nil, err
	}
	return d, nil
}

// DeleteDevice removes a device with its links, alerts and memberships.
func (m *Manager) DeleteDevice(id int64) error {
	return m.devices.Delete(id)
}

// SetDeviceParent places a device under parent in the hierarchy. A nil
// parent detaches it. A parent chain that would loop back is rejected.
func (m *Manager) SetDeviceParent(id int64, parent *int64) error {
	if _, err := m.devices.Get(id); err != nil {
		return err
	}
	if parent != nil {
		if *parent == id {
			return invalidf("device %d cannot be its own parent", id)
		}
		if _, err := m.devices.Get(*parent); err != nil {
			return err
		}
		loop, err := createsCycle(id, *parent, func(n int64) (*int64, error) {
			d, err := m.devices.Get(n)
			if err != nil {
				return nil, err
			}
			return d.ParentID, nil
		})
		if err != nil {
			return err
		}
		if loop {
			return invalidf("device %d is an ancestor of device %d", id, *parent)
		}
	}
	return m.devices.SetParent(id, parent)
}

// SetDeviceProfile assigns an alert profile. A nil profile restores the
// built-in thresholds.
func (m *Manager) SetDeviceProfile(id int64, profile *int64) error {
	if profile != nil {
		if _, err := m.profiles.Get(*profile); err != nil {
			return err
		}
	}
	return m.devices.SetProfile(id, profile)
}

func (m *Manager) hostnameFree(hostname string, self int64) error {
	d, err := m.devices.GetByHostname(hostname)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return nil
	case err != nil:
		return err
	case d.ID != self:
		return conflictf("device %q already exists", hostname)
	}
	return nil
}
