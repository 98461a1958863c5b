// Package inventory manages devices, groups, alert profiles and topology
// exclude rules for the CLI and the web API. Input is validated before it
// reaches storage; failures wrap model.ErrInvalid, model.ErrNotFound or
// model.ErrConflict.
package inventory

import (
	"fmt"

	"github.com/user/topomon/internal/model"
	"github.com/user/topomon/internal/storage"
	"github.com/user/topomon/internal/util"
)

// Manager applies user edits to the inventory.
type Manager struct {
	devices  *storage.DeviceStorage
	groups   *storage.GroupStorage
	profiles *storage.ProfileStorage
	rules    *storage.RuleStorage
}

// NewManager creates a manager over db.
func NewManager(db *storage.DB) *Manager {
	return &Manager{
		devices:  storage.NewDeviceStorage(db),
		groups:   storage.NewGroupStorage(db),
		profiles: storage.NewProfileStorage(db),
		rules:    storage.NewRuleStorage(db),
	}
}

func validate(what string, v interface{}) error {
	if err := util.Validator().Struct(v); err != nil {
		return fmt.Errorf("%w %s: %w", model.ErrInvalid, what, err)
	}
	return nil
}

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", model.ErrInvalid, fmt.Sprintf(format, args...))
}

func conflictf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", model.ErrConflict, fmt.Sprintf(format, args...))
}

// createsCycle reports whether making parent the parent of id closes a
// loop. parentOf returns the current parent of a node.
func createsCycle(id, parent int64, parentOf func(int64) (*int64, error)) (bool, error) {
	visited := map[int64]bool{}
	for cur := &parent; cur != nil; {
		if *cur == id {
			return true, nil
		}
		if visited[*cur] {
			return false, nil
		}
		visited[*cur] = true
		next, err := parentOf(*cur)
		if err != nil {
			return false, err
		}
		cur = next
	}
	return false, nil
}
