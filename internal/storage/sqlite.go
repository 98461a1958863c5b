// Package storage provides SQLite persistence for topomon.
package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection.
type DB struct {
	*sql.DB
	now func() time.Time
}

// Initialize opens the topomon database inside dataDir.
func Initialize(dataDir string) (*DB, error) {
	return Open(filepath.Join(dataDir, "topomon.db"))
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path+"?_journal=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	db := &DB{DB: sqlDB, now: time.Now}
	if err := db.createTables(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return db, nil
}

// SetClock overrides the time source used for stored timestamps.
func (db *DB) SetClock(now func() time.Time) {
	db.now = now
}

func (db *DB) timestamp() time.Time {
	return db.now().UTC()
}

func (db *DB) createTables() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS alert_profiles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			thresholds TEXT NOT NULL DEFAULT '{}',
			is_default INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS devices (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			hostname TEXT NOT NULL UNIQUE,
			ip_address TEXT NOT NULL,
			vendor TEXT NOT NULL DEFAULT 'unknown',
			model TEXT NOT NULL DEFAULT '',
			firmware TEXT NOT NULL DEFAULT '',
			snmp_version TEXT NOT NULL DEFAULT '',
			snmp_community TEXT NOT NULL DEFAULT '',
			snmp_v3_user TEXT NOT NULL DEFAULT '',
			snmp_v3_auth TEXT NOT NULL DEFAULT '',
			snmp_v3_priv TEXT NOT NULL DEFAULT '',
			device_type TEXT NOT NULL DEFAULT 'unknown',
			parent_device_id INTEGER REFERENCES devices(id) ON DELETE SET NULL,
			auto_discover INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'unknown',
			cpu_percent REAL,
			memory_percent REAL,
			uptime_seconds INTEGER NOT NULL DEFAULT 0,
			last_seen DATETIME,
			alert_profile_id INTEGER REFERENCES alert_profiles(id) ON DELETE SET NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_devices_ip ON devices(ip_address)`,
		`CREATE INDEX IF NOT EXISTS idx_devices_parent ON devices(parent_device_id)`,

		`CREATE TABLE IF NOT EXISTS raw_links (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			local_device_id INTEGER NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
			local_port TEXT NOT NULL,
			local_port_index INTEGER NOT NULL DEFAULT 0,
			remote_hostname TEXT NOT NULL,
			remote_port TEXT NOT NULL DEFAULT '',
			remote_chassis_id TEXT NOT NULL DEFAULT '',
			protocol TEXT NOT NULL DEFAULT '',
			discovered_at DATETIME NOT NULL,
			last_seen DATETIME NOT NULL,
			UNIQUE(local_device_id, local_port, remote_hostname)
		)`,

		`CREATE TABLE IF NOT EXISTS interface_samples (
			device_id INTEGER NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
			port_index INTEGER NOT NULL,
			port_name TEXT NOT NULL,
			speed_mbps INTEGER NOT NULL DEFAULT 0,
			in_octets INTEGER NOT NULL DEFAULT 0,
			out_octets INTEGER NOT NULL DEFAULT 0,
			in_bps INTEGER NOT NULL DEFAULT 0,
			out_bps INTEGER NOT NULL DEFAULT 0,
			sampled_at DATETIME NOT NULL,
			PRIMARY KEY (device_id, port_index)
		)`,

		`CREATE TABLE IF NOT EXISTS merged_links (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_a_id INTEGER NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
			device_b_id INTEGER NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
			total_bandwidth_mbps INTEGER NOT NULL DEFAULT 0,
			current_in_bps INTEGER NOT NULL DEFAULT 0,
			current_out_bps INTEGER NOT NULL DEFAULT 0,
			utilization_in_percent REAL NOT NULL DEFAULT 0,
			utilization_out_percent REAL NOT NULL DEFAULT 0,
			port_pairs TEXT NOT NULL DEFAULT '[]',
			is_excluded INTEGER NOT NULL DEFAULT 0,
			last_updated DATETIME NOT NULL,
			UNIQUE(device_a_id, device_b_id),
			CHECK(device_a_id < device_b_id)
		)`,

		`CREATE TABLE IF NOT EXISTS exclude_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			rule_type TEXT NOT NULL,
			pattern TEXT NOT NULL DEFAULT '',
			device_a_id INTEGER REFERENCES devices(id) ON DELETE CASCADE,
			device_b_id INTEGER REFERENCES devices(id) ON DELETE CASCADE,
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS device_groups (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			parent_id INTEGER REFERENCES device_groups(id) ON DELETE SET NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS group_members (
			group_id INTEGER NOT NULL REFERENCES device_groups(id) ON DELETE CASCADE,
			device_id INTEGER NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
			PRIMARY KEY (group_id, device_id)
		)`,

		// target_key mirrors the device/link column that is set so the
		// partial index below can enforce one active alert per target and type.
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			target_key TEXT NOT NULL,
			device_id INTEGER REFERENCES devices(id) ON DELETE CASCADE,
			link_id INTEGER REFERENCES merged_links(id) ON DELETE CASCADE,
			alert_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			current_value REAL,
			threshold_value REAL,
			is_active INTEGER NOT NULL DEFAULT 1,
			triggered_at DATETIME NOT NULL,
			recovered_at DATETIME,
			acknowledged_at DATETIME,
			acknowledged_by TEXT NOT NULL DEFAULT '',
			acknowledge_reason TEXT NOT NULL DEFAULT '',
			is_suppressed INTEGER NOT NULL DEFAULT 0,
			suppress_until DATETIME,
			CHECK ((device_id IS NULL) <> (link_id IS NULL))
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_one_active
			ON alerts(target_key, alert_type) WHERE is_active = 1`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_device ON alerts(device_id)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_triggered ON alerts(triggered_at)`,

		`CREATE TABLE IF NOT EXISTS alert_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			alert_id INTEGER NOT NULL REFERENCES alerts(id) ON DELETE CASCADE,
			event_type TEXT NOT NULL,
			event_time DATETIME NOT NULL,
			details TEXT NOT NULL DEFAULT '{}',
			deleted_at DATETIME,
			deleted_by TEXT NOT NULL DEFAULT '',
			delete_reason TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_history_alert_id ON alert_history(alert_id)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to execute: %s: %w", table, err)
		}
	}

	return nil
}

// WithTx runs fn inside a transaction, committing when fn returns nil.
func (db *DB) WithTx(fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}

func nullInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(v *time.Time) interface{} {
	if v == nil {
		return nil
	}
	return v.UTC()
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}
