package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/user/topomon/internal/model"
)

// ProfileStorage handles alert profile persistence.
type ProfileStorage struct {
	db *DB
}

// NewProfileStorage creates a new profile storage handler.
func NewProfileStorage(db *DB) *ProfileStorage {
	return &ProfileStorage{db: db}
}

// Create inserts a profile. Marking it default clears the flag on all others.
func (s *ProfileStorage) Create(p *model.AlertProfile) error {
	thresholds, err := json.Marshal(p.Thresholds)
	if err != nil {
		return fmt.Errorf("failed to encode thresholds: %w", err)
	}
	p.CreatedAt = s.db.timestamp()

	return s.db.WithTx(func(tx *sql.Tx) error {
		if p.IsDefault {
			if _, err := tx.Exec("UPDATE alert_profiles SET is_default = 0"); err != nil {
				return fmt.Errorf("failed to clear default profile: %w", err)
			}
		}
		result, err := tx.Exec(`INSERT INTO alert_profiles (name, description, thresholds, is_default, created_at)
			VALUES (?, ?, ?, ?, ?)`, p.Name, p.Description, string(thresholds), p.IsDefault, p.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create profile %s: %w", p.Name, err)
		}
		p.ID, err = result.LastInsertId()
		return err
	})
}

// Update replaces name, description, thresholds and default flag of a profile.
func (s *ProfileStorage) Update(p *model.AlertProfile) error {
	thresholds, err := json.Marshal(p.Thresholds)
	if err != nil {
		return fmt.Errorf("failed to encode thresholds: %w", err)
	}

	return s.db.WithTx(func(tx *sql.Tx) error {
		if p.IsDefault {
			if _, err := tx.Exec("UPDATE alert_profiles SET is_default = 0 WHERE id <> ?", p.ID); err != nil {
				return fmt.Errorf("failed to clear default profile: %w", err)
			}
		}
		result, err := tx.Exec(`UPDATE alert_profiles SET name = ?, description = ?, thresholds = ?, is_default = ?
			WHERE id = ?`, p.Name, p.Description, string(thresholds), p.IsDefault, p.ID)
		if err != nil {
			return fmt.Errorf("failed to update profile %d: %w", p.ID, err)
		}
		return expectOne(result, "profile", p.ID)
	})
}

// Delete removes a profile. Devices using it fall back to the defaults.
func (s *ProfileStorage) Delete(id int64) error {
	result, err := s.db.Exec("DELETE FROM alert_profiles WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete profile %d: %w", id, err)
	}
	return expectOne(result, "profile", id)
}

// Get returns a profile by ID.
func (s *ProfileStorage) Get(id int64) (*model.AlertProfile, error) {
	p, err := scanProfile(s.db.QueryRow(`SELECT id, name, description, thresholds, is_default, created_at
		FROM alert_profiles WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %d: %w", id, model.ErrNotFound)
	}
	return p, err
}

// List returns all profiles ordered by name.
func (s *ProfileStorage) List() ([]model.AlertProfile, error) {
	rows, err := s.db.Query(`SELECT id, name, description, thresholds, is_default, created_at
		FROM alert_profiles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []model.AlertProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

func scanProfile(row rowScanner) (*model.AlertProfile, error) {
	var p model.AlertProfile
	var thresholds string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &thresholds, &p.IsDefault, &p.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(thresholds), &p.Thresholds); err != nil {
		return nil, fmt.Errorf("failed to decode thresholds of profile %d: %w", p.ID, err)
	}
	return &p, nil
}
