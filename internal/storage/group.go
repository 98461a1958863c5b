package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/user/topomon/internal/model"
)

// GroupStorage handles device groups and memberships.
type GroupStorage struct {
	db *DB
}

// NewGroupStorage creates a new group storage handler.
func NewGroupStorage(db *DB) *GroupStorage {
	return &GroupStorage{db: db}
}

// Create inserts a group.
func (s *GroupStorage) Create(g *model.DeviceGroup) error {
	g.CreatedAt = s.db.timestamp()
	result, err := s.db.Exec(`INSERT INTO device_groups (name, description, parent_id, created_at)
		VALUES (?, ?, ?, ?)`, g.Name, g.Description, nullInt64(g.ParentID), g.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create group %s: %w", g.Name, err)
	}
	g.ID, err = result.LastInsertId()
	return err
}

// SetParent nests a group under another one. A nil parent makes it top-level.
func (s *GroupStorage) SetParent(id int64, parent *int64) error {
	result, err := s.db.Exec("UPDATE device_groups SET parent_id = ? WHERE id = ?", nullInt64(parent), id)
	if err != nil {
		return fmt.Errorf("failed to set parent of group %d: %w", id, err)
	}
	return expectOne(result, "group", id)
}

// Delete removes a group and its memberships. Child groups become top-level.
func (s *GroupStorage) Delete(id int64) error {
	result, err := s.db.Exec("DELETE FROM device_groups WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete group %d: %w", id, err)
	}
	return expectOne(result, "group", id)
}

// Get returns a group by ID.
func (s *GroupStorage) Get(id int64) (*model.DeviceGroup, error) {
	var g model.DeviceGroup
	var parent sql.NullInt64
	err := s.db.QueryRow(`SELECT id, name, description, parent_id, created_at FROM device_groups WHERE id = ?`, id).
		Scan(&g.ID, &g.Name, &g.Description, &parent, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	g.ParentID = int64Ptr(parent)
	return &g, nil
}

// List returns all groups ordered by ID.
func (s *GroupStorage) List() ([]model.DeviceGroup, error) {
	rows, err := s.db.Query("SELECT id, name, description, parent_id, created_at FROM device_groups ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var groups []model.DeviceGroup
	for rows.Next() {
		var g model.DeviceGroup
		var parent sql.NullInt64
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &parent, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		g.ParentID = int64Ptr(parent)
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// AddMember puts a device into a group. It reports false when the device
// already was a member.
func (s *GroupStorage) AddMember(groupID, deviceID int64) (bool, error) {
	result, err := s.db.Exec("INSERT OR IGNORE INTO group_members (group_id, device_id) VALUES (?, ?)", groupID, deviceID)
	if err != nil {
		return false, fmt.Errorf("failed to add device %d to group %d: %w", deviceID, groupID, err)
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// RemoveMember takes a device out of a group.
func (s *GroupStorage) RemoveMember(groupID, deviceID int64) error {
	result, err := s.db.Exec("DELETE FROM group_members WHERE group_id = ? AND device_id = ?", groupID, deviceID)
	if err != nil {
		return fmt.Errorf("failed to remove device %d from group %d: %w", deviceID, groupID, err)
	}
	return expectOne(result, "membership of device", deviceID)
}

// Memberships returns the direct member device IDs of every group.
func (s *GroupStorage) Memberships() (map[int64][]int64, error) {
	rows, err := s.db.Query("SELECT group_id, device_id FROM group_members ORDER BY group_id, device_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	defer rows.Close()

	members := make(map[int64][]int64)
	for rows.Next() {
		var g, d int64
		if err := rows.Scan(&g, &d); err != nil {
			return nil, err
		}
		members[g] = append(members[g], d)
	}
	return members, rows.Err()
}
