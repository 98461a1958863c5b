package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/user/topomon/internal/model"
)

const deviceColumns = `id, hostname, ip_address, vendor, model, firmware,
	snmp_version, snmp_community, snmp_v3_user, snmp_v3_auth, snmp_v3_priv,
	device_type, parent_device_id, auto_discover, status, cpu_percent, memory_percent,
	uptime_seconds, last_seen, alert_profile_id, created_at`

// DeviceStorage handles device directory persistence.
type DeviceStorage struct {
	db *DB
}

// NewDeviceStorage creates a new device storage handler.
func NewDeviceStorage(db *DB) *DeviceStorage {
	return &DeviceStorage{db: db}
}

// Create inserts a device and fills in its ID and CreatedAt.
func (s *DeviceStorage) Create(d *model.Device) error {
	if d.Vendor == "" {
		d.Vendor = "unknown"
	}
	if d.Type == "" {
		d.Type = model.TypeUnknown
	}
	if d.Status == "" {
		d.Status = model.StatusUnknown
	}
	d.CreatedAt = s.db.timestamp()

	query := `INSERT INTO devices (hostname, ip_address, vendor, model, firmware,
			  snmp_version, snmp_community, snmp_v3_user, snmp_v3_auth, snmp_v3_priv,
			  device_type, parent_device_id, auto_discover, status, alert_profile_id, last_seen, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.Exec(query,
		d.Hostname, d.IP, d.Vendor, d.Model, d.Firmware,
		d.Credentials.Version, d.Credentials.Community, d.Credentials.V3User,
		d.Credentials.V3Auth, d.Credentials.V3Priv,
		string(d.Type), nullInt64(d.ParentID), d.AutoDiscover, string(d.Status),
		nullInt64(d.AlertProfileID), nullTime(d.LastSeen), d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create device %s: %w", d.Hostname, err)
	}

	d.ID, err = result.LastInsertId()
	return err
}

// Update writes all editable fields of d.
func (s *DeviceStorage) Update(d *model.Device) error {
	query := `UPDATE devices SET hostname = ?, ip_address = ?, vendor = ?, model = ?, firmware = ?,
			  snmp_version = ?, snmp_community = ?, snmp_v3_user = ?, snmp_v3_auth = ?, snmp_v3_priv = ?,
			  device_type = ?, parent_device_id = ?, auto_discover = ?, status = ?, alert_profile_id = ?
			  WHERE id = ?`

	result, err := s.db.Exec(query,
		d.Hostname, d.IP, d.Vendor, d.Model, d.Firmware,
		d.Credentials.Version, d.Credentials.Community, d.Credentials.V3User,
		d.Credentials.V3Auth, d.Credentials.V3Priv,
		string(d.Type), nullInt64(d.ParentID), d.AutoDiscover, string(d.Status),
		nullInt64(d.AlertProfileID), d.ID)
	if err != nil {
		return fmt.Errorf("failed to update device %d: %w", d.ID, err)
	}
	return expectOne(result, "device", d.ID)
}

// UpdateHealth records a successful poll: status becomes managed and the
// metric snapshot is replaced. An empty or "unknown" vendor keeps the stored one.
func (s *DeviceStorage) UpdateHealth(id int64, vendor string, cpu, memory *float64, uptimeSeconds int64) error {
	query := `UPDATE devices SET status = ?,
			  vendor = CASE WHEN ? IN ('', 'unknown') THEN vendor ELSE ? END,
			  cpu_percent = ?, memory_percent = ?, uptime_seconds = ?, last_seen = ?
			  WHERE id = ?`

	result, err := s.db.Exec(query, string(model.StatusManaged), vendor, vendor,
		nullFloat(cpu), nullFloat(memory), uptimeSeconds, s.db.timestamp(), id)
	if err != nil {
		return fmt.Errorf("failed to update device health %d: %w", id, err)
	}
	return expectOne(result, "device", id)
}

// SetStatus changes only the status of a device.
func (s *DeviceStorage) SetStatus(id int64, status model.DeviceStatus) error {
	result, err := s.db.Exec("UPDATE devices SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return fmt.Errorf("failed to set device status %d: %w", id, err)
	}
	return expectOne(result, "device", id)
}

// SetParent changes the parent of a device. A nil parent detaches it.
func (s *DeviceStorage) SetParent(id int64, parent *int64) error {
	result, err := s.db.Exec("UPDATE devices SET parent_device_id = ? WHERE id = ?", nullInt64(parent), id)
	if err != nil {
		return fmt.Errorf("failed to set parent of device %d: %w", id, err)
	}
	return expectOne(result, "device", id)
}

// SetProfile assigns an alert profile to a device. A nil profile restores the defaults.
func (s *DeviceStorage) SetProfile(id int64, profile *int64) error {
	result, err := s.db.Exec("UPDATE devices SET alert_profile_id = ? WHERE id = ?", nullInt64(profile), id)
	if err != nil {
		return fmt.Errorf("failed to set profile of device %d: %w", id, err)
	}
	return expectOne(result, "device", id)
}

// Delete removes a device. Raw links, alerts and group memberships cascade.
func (s *DeviceStorage) Delete(id int64) error {
	result, err := s.db.Exec("DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete device %d: %w", id, err)
	}
	return expectOne(result, "device", id)
}

// Get returns a device by ID.
func (s *DeviceStorage) Get(id int64) (*model.Device, error) {
	return s.getOne("SELECT "+deviceColumns+" FROM devices WHERE id = ?", id)
}

// GetByHostname returns a device by its unique hostname.
func (s *DeviceStorage) GetByHostname(hostname string) (*model.Device, error) {
	return s.getOne("SELECT "+deviceColumns+" FROM devices WHERE hostname = ?", hostname)
}

// GetByIP returns the first device registered with the given address.
func (s *DeviceStorage) GetByIP(ip string) (*model.Device, error) {
	return s.getOne("SELECT "+deviceColumns+" FROM devices WHERE ip_address = ? ORDER BY id LIMIT 1", ip)
}

func (s *DeviceStorage) getOne(query string, arg interface{}) (*model.Device, error) {
	d, err := scanDevice(s.db.QueryRow(query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("device %v: %w", arg, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return d, nil
}

// List returns all devices ordered by ID.
func (s *DeviceStorage) List() ([]model.Device, error) {
	return s.list("SELECT " + deviceColumns + " FROM devices ORDER BY id")
}

// ListPollable returns every device whose status is not excluded.
func (s *DeviceStorage) ListPollable() ([]model.Device, error) {
	return s.list("SELECT "+deviceColumns+" FROM devices WHERE status <> ? ORDER BY id", string(model.StatusExcluded))
}

// ListChildren returns the devices whose parent is id.
func (s *DeviceStorage) ListChildren(id int64) ([]model.Device, error) {
	return s.list("SELECT "+deviceColumns+" FROM devices WHERE parent_device_id = ? ORDER BY id", id)
}

func (s *DeviceStorage) list(query string, args ...interface{}) ([]model.Device, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, *d)
	}
	return devices, rows.Err()
}

// CountByStatus returns the number of devices per status.
func (s *DeviceStorage) CountByStatus() (map[model.DeviceStatus]int, error) {
	rows, err := s.db.Query("SELECT status, COUNT(*) FROM devices GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count devices: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.DeviceStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[model.DeviceStatus(status)] = n
	}
	return counts, rows.Err()
}

func scanDevice(row rowScanner) (*model.Device, error) {
	var d model.Device
	var deviceType, status string
	var parent, profile sql.NullInt64
	var cpu, mem sql.NullFloat64
	var lastSeen sql.NullTime

	err := row.Scan(&d.ID, &d.Hostname, &d.IP, &d.Vendor, &d.Model, &d.Firmware,
		&d.Credentials.Version, &d.Credentials.Community, &d.Credentials.V3User,
		&d.Credentials.V3Auth, &d.Credentials.V3Priv,
		&deviceType, &parent, &d.AutoDiscover, &status, &cpu, &mem,
		&d.UptimeSeconds, &lastSeen, &profile, &d.CreatedAt)
	if err != nil {
		return nil, err
	}

	d.Type = model.DeviceType(deviceType)
	d.Status = model.DeviceStatus(status)
	d.ParentID = int64Ptr(parent)
	d.AlertProfileID = int64Ptr(profile)
	d.CPUPercent = floatPtr(cpu)
	d.MemoryPercent = floatPtr(mem)
	d.LastSeen = timePtr(lastSeen)
	return &d, nil
}

func expectOne(result sql.Result, what string, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, model.ErrNotFound)
	}
	return nil
}
