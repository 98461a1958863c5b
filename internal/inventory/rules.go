package inventory

import (
	"errors"

	"github.com/user/topomon/internal/model"
)

// RuleInput creates a topology exclude rule. Pattern rules take a glob
// pattern; device pair rules take both device IDs.
type RuleInput struct {
	Type      model.ExcludeRuleType `json:"rule_type" validate:"required,oneof=hostname_pattern port_pattern device_pair"`
	Pattern   string                `json:"pattern" validate:"required_unless=Type device_pair,max=255"`
	DeviceAID *int64                `json:"device_a_id" validate:"required_if=Type device_pair"`
	DeviceBID *int64                `json:"device_b_id" validate:"required_if=Type device_pair"`
}

// Rules lists exclude rules.
func (m *Manager) Rules() ([]model.ExcludeRule, error) {
	return m.rules.List()
}

// CreateRule adds an exclude rule.
func (m *Manager) CreateRule(in RuleInput) (*model.ExcludeRule, error) {
	if err := validate("exclude rule", in); err != nil {
		return nil, err
	}
	r := &model.ExcludeRule{Type: in.Type}
	if in.Type == model.RuleDevicePair {
		if *in.DeviceAID == *in.DeviceBID {
			return nil, invalidf("device pair needs two different devices")
		}
		for _, id := range []int64{*in.DeviceAID, *in.DeviceBID} {
			if _, err := m.devices.Get(id); err != nil {
				return nil, err
			}
		}
		r.DeviceAID, r.DeviceBID = in.DeviceAID, in.DeviceBID
	} else {
		r.Pattern = in.Pattern
	}
	if err := m.rules.Create(r); err != nil {
		return nil, err
	}
	return r, nil
}

// DeleteRule removes an exclude rule.
func (m *Manager) DeleteRule(id int64) error {
	return m.rules.Delete(id)
}

func isNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}
