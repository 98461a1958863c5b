package storage

import (
	"database/sql"
	"fmt"

	"github.com/user/topomon/internal/model"
)

// RuleStorage handles topology exclude rules.
type RuleStorage struct {
	db *DB
}

// NewRuleStorage creates a new exclude rule storage handler.
func NewRuleStorage(db *DB) *RuleStorage {
	return &RuleStorage{db: db}
}

// Create inserts a rule.
func (s *RuleStorage) Create(r *model.ExcludeRule) error {
	switch r.Type {
	case model.RuleHostnamePattern, model.RulePortPattern:
		if r.Pattern == "" {
			return fmt.Errorf("rule %s requires a pattern", r.Type)
		}
	case model.RuleDevicePair:
		if r.DeviceAID == nil || r.DeviceBID == nil {
			return fmt.Errorf("rule %s requires two devices", r.Type)
		}
	default:
		return fmt.Errorf("unknown rule type %q", r.Type)
	}

	r.CreatedAt = s.db.timestamp()
	result, err := s.db.Exec(`INSERT INTO exclude_rules (rule_type, pattern, device_a_id, device_b_id, created_at)
		VALUES (?, ?, ?, ?, ?)`, string(r.Type), r.Pattern, nullInt64(r.DeviceAID), nullInt64(r.DeviceBID), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create exclude rule: %w", err)
	}
	r.ID, err = result.LastInsertId()
	return err
}

// Delete removes a rule.
func (s *RuleStorage) Delete(id int64) error {
	result, err := s.db.Exec("DELETE FROM exclude_rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete exclude rule %d: %w", id, err)
	}
	return expectOne(result, "exclude rule", id)
}

// List returns all rules ordered by ID.
func (s *RuleStorage) List() ([]model.ExcludeRule, error) {
	rows, err := s.db.Query("SELECT id, rule_type, pattern, device_a_id, device_b_id, created_at FROM exclude_rules ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query exclude rules: %w", err)
	}
	defer rows.Close()

	var rules []model.ExcludeRule
	for rows.Next() {
		var r model.ExcludeRule
		var ruleType string
		var a, b sql.NullInt64
		if err := rows.Scan(&r.ID, &ruleType, &r.Pattern, &a, &b, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan exclude rule: %w", err)
		}
		r.Type = model.ExcludeRuleType(ruleType)
		r.DeviceAID, r.DeviceBID = int64Ptr(a), int64Ptr(b)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}
