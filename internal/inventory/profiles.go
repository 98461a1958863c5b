package inventory

import (
	"github.com/user/topomon/internal/model"
)

// ProfileInput creates an alert profile. Metrics left out of Thresholds
// use the built-in defaults.
type ProfileInput struct {
	Name        string           `json:"name" validate:"required,max=100"`
	Description string           `json:"description" validate:"max=500"`
	Thresholds  model.Thresholds `json:"thresholds"`
	IsDefault   bool             `json:"is_default"`
}

// ProfilePatch changes the fields that are set. Thresholds replace the
// stored set as a whole.
type ProfilePatch struct {
	Name        *string           `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string           `json:"description" validate:"omitempty,max=500"`
	Thresholds  *model.Thresholds `json:"thresholds"`
	IsDefault   *bool             `json:"is_default"`
}

// Profiles lists alert profiles by name.
func (m *Manager) Profiles() ([]model.AlertProfile, error) {
	return m.profiles.List()
}

// Profile returns one alert profile.
func (m *Manager) Profile(id int64) (*model.AlertProfile, error) {
	return m.profiles.Get(id)
}

// CreateProfile adds an alert profile. Profile names are unique.
func (m *Manager) CreateProfile(in ProfileInput) (*model.AlertProfile, error) {
	if err := validate("profile", in); err != nil {
		return nil, err
	}
	if err := m.profileNameFree(in.Name, 0); err != nil {
		return nil, err
	}
	p := &model.AlertProfile{
		Name:        in.Name,
		Description: in.Description,
		Thresholds:  in.Thresholds,
		IsDefault:   in.IsDefault,
	}
	if err := m.profiles.Create(p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateProfile applies p to profile id.
func (m *Manager) UpdateProfile(id int64, p ProfilePatch) (*model.AlertProfile, error) {
	if err := validate("profile update", p); err != nil {
		return nil, err
	}
	cur, err := m.profiles.Get(id)
	if err != nil {
		return nil, err
	}
	if p.Name != nil && *p.Name != cur.Name {
		if err := m.profileNameFree(*p.Name, id); err != nil {
			return nil, err
		}
		cur.Name = *p.Name
	}
	if p.Description != nil {
		cur.Description = *p.Description
	}
	if p.Thresholds != nil {
		cur.Thresholds = *p.Thresholds
	}
	if p.IsDefault != nil {
		cur.IsDefault = *p.IsDefault
	}
	if err := m.profiles.Update(cur); err != nil {
		return nil, err
	}
	return cur, nil
}

// DeleteProfile removes a profile. Devices using it fall back to the
// built-in thresholds.
func (m *Manager) DeleteProfile(id int64) error {
	return m.profiles.Delete(id)
}

func (m *Manager) profileNameFree(name string, self int64) error {
	profiles, err := m.profiles.List()
	if err != nil {
		return err
	}
	for _, p := range profiles {
		if p.Name == name && p.ID != self {
			return conflictf("profile %q already exists", name)
		}
	}
	return nil
}
