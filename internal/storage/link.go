package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/user/topomon/internal/model"
)

// LinkStorage handles raw neighbor observations, interface samples and
// merged links.
type LinkStorage struct {
	db *DB
}

// NewLinkStorage creates a new link storage handler.
func NewLinkStorage(db *DB) *LinkStorage {
	return &LinkStorage{db: db}
}

// UpsertRaw refreshes an existing observation keyed by (device, local
// port, remote hostname) or inserts a new one. It reports whether a row
// was inserted.
func (s *LinkStorage) UpsertRaw(link *model.RawLink) (bool, error) {
	now := s.db.timestamp()

	query := `UPDATE raw_links SET local_port_index = ?, remote_port = ?, remote_chassis_id = ?,
			  protocol = ?, last_seen = ?
			  WHERE local_device_id = ? AND local_port = ? AND remote_hostname = ?`
	result, err := s.db.Exec(query,
		link.LocalPortIndex, link.RemotePort, link.RemoteChassisID, link.Protocol, now,
		link.LocalDeviceID, link.LocalPort, link.RemoteHostname)
	if err != nil {
		return false, fmt.Errorf("failed to refresh raw link: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		link.LastSeen = now
		return false, nil
	}

	query = `INSERT INTO raw_links (local_device_id, local_port, local_port_index, remote_hostname,
			 remote_port, remote_chassis_id, protocol, discovered_at, last_seen)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err = s.db.Exec(query,
		link.LocalDeviceID, link.LocalPort, link.LocalPortIndex, link.RemoteHostname,
		link.RemotePort, link.RemoteChassisID, link.Protocol, now, now)
	if err != nil {
		return false, fmt.Errorf("failed to insert raw link: %w", err)
	}
	link.ID, _ = result.LastInsertId()
	link.DiscoveredAt = now
	link.LastSeen = now
	return true, nil
}

// ListRaw returns every raw link ordered by ID.
func (s *LinkStorage) ListRaw() ([]model.RawLink, error) {
	return s.listRaw(`SELECT id, local_device_id, local_port, local_port_index, remote_hostname,
		remote_port, remote_chassis_id, protocol, discovered_at, last_seen
		FROM raw_links ORDER BY id`)
}

// ListRawByDevice returns the observations made by one device.
func (s *LinkStorage) ListRawByDevice(deviceID int64) ([]model.RawLink, error) {
	return s.listRaw(`SELECT id, local_device_id, local_port, local_port_index, remote_hostname,
		remote_port, remote_chassis_id, protocol, discovered_at, last_seen
		FROM raw_links WHERE local_device_id = ? ORDER BY id`, deviceID)
}

func (s *LinkStorage) listRaw(query string, args ...interface{}) ([]model.RawLink, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw links: %w", err)
	}
	defer rows.Close()

	var links []model.RawLink
	for rows.Next() {
		var l model.RawLink
		if err := rows.Scan(&l.ID, &l.LocalDeviceID, &l.LocalPort, &l.LocalPortIndex, &l.RemoteHostname,
			&l.RemotePort, &l.RemoteChassisID, &l.Protocol, &l.DiscoveredAt, &l.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan raw link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// SaveSamples replaces the latest counter sample of each interface of a device.
func (s *LinkStorage) SaveSamples(samples []model.InterfaceSample) error {
	if len(samples) == 0 {
		return nil
	}
	return s.db.WithTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO interface_samples (device_id, port_index, port_name, speed_mbps,
			in_octets, out_octets, in_bps, out_bps, sampled_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(device_id, port_index) DO UPDATE SET
			port_name = excluded.port_name,
			speed_mbps = excluded.speed_mbps,
			in_octets = excluded.in_octets,
			out_octets = excluded.out_octets,
			in_bps = excluded.in_bps,
			out_bps = excluded.out_bps,
			sampled_at = excluded.sampled_at`)
		if err != nil {
			return fmt.Errorf("failed to prepare sample upsert: %w", err)
		}
		defer stmt.Close()

		for _, smp := range samples {
			// Counters are stored with their bit pattern preserved.
			if _, err := stmt.Exec(smp.DeviceID, smp.PortIndex, smp.PortName, smp.SpeedMbps,
				int64(smp.InOctets), int64(smp.OutOctets), smp.InBps, smp.OutBps, smp.SampledAt.UTC()); err != nil {
				return fmt.Errorf("failed to save sample %d/%d: %w", smp.DeviceID, smp.PortIndex, err)
			}
		}
		return nil
	})
}

// Samples returns the latest samples of a device keyed by interface index.
func (s *LinkStorage) Samples(deviceID int64) (map[int]model.InterfaceSample, error) {
	all, err := s.listSamples("WHERE device_id = ?", deviceID)
	if err != nil {
		return nil, err
	}
	out := make(map[int]model.InterfaceSample, len(all))
	for _, smp := range all {
		out[smp.PortIndex] = smp
	}
	return out, nil
}

// AllSamples returns every stored sample.
func (s *LinkStorage) AllSamples() ([]model.InterfaceSample, error) {
	return s.listSamples("")
}

func (s *LinkStorage) listSamples(where string, args ...interface{}) ([]model.InterfaceSample, error) {
	rows, err := s.db.Query(`SELECT device_id, port_index, port_name, speed_mbps, in_octets, out_octets,
		in_bps, out_bps, sampled_at FROM interface_samples `+where+` ORDER BY device_id, port_index`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []model.InterfaceSample
	for rows.Next() {
		var smp model.InterfaceSample
		var in, out int64
		if err := rows.Scan(&smp.DeviceID, &smp.PortIndex, &smp.PortName, &smp.SpeedMbps, &in, &out,
			&smp.InBps, &smp.OutBps, &smp.SampledAt); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		smp.InOctets, smp.OutOctets = uint64(in), uint64(out)
		samples = append(samples, smp)
	}
	return samples, rows.Err()
}

// UpsertMerged writes a merge result keyed by device pair. Aggregates and
// port pairs are replaced; is_excluded is preserved. IDs are filled in.
func (s *LinkStorage) UpsertMerged(links []model.MergedLink) error {
	now := s.db.timestamp()
	return s.db.WithTx(func(tx *sql.Tx) error {
		for i := range links {
			l := &links[i]
			pairs, err := json.Marshal(l.PortPairs)
			if err != nil {
				return fmt.Errorf("failed to encode port pairs: %w", err)
			}

			query := `INSERT INTO merged_links (device_a_id, device_b_id, total_bandwidth_mbps,
					  current_in_bps, current_out_bps, utilization_in_percent, utilization_out_percent,
					  port_pairs, last_updated)
					  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
					  ON CONFLICT(device_a_id, device_b_id) DO UPDATE SET
					  total_bandwidth_mbps = excluded.total_bandwidth_mbps,
					  current_in_bps = excluded.current_in_bps,
					  current_out_bps = excluded.current_out_bps,
					  utilization_in_percent = excluded.utilization_in_percent,
					  utilization_out_percent = excluded.utilization_out_percent,
					  port_pairs = excluded.port_pairs,
					  last_updated = excluded.last_updated`
			if _, err := tx.Exec(query, l.DeviceAID, l.DeviceBID, l.TotalBandwidthMbps,
				l.CurrentInBps, l.CurrentOutBps, l.UtilizationInPercent, l.UtilizationOutPercent,
				string(pairs), now); err != nil {
				return fmt.Errorf("failed to upsert merged link %d-%d: %w", l.DeviceAID, l.DeviceBID, err)
			}

			if err := tx.QueryRow("SELECT id, is_excluded FROM merged_links WHERE device_a_id = ? AND device_b_id = ?",
				l.DeviceAID, l.DeviceBID).Scan(&l.ID, &l.IsExcluded); err != nil {
				return fmt.Errorf("failed to read merged link id: %w", err)
			}
			l.LastUpdated = now
		}
		return nil
	})
}

const mergedColumns = `id, device_a_id, device_b_id, total_bandwidth_mbps, current_in_bps, current_out_bps,
	utilization_in_percent, utilization_out_percent, port_pairs, is_excluded, last_updated`

// ListMerged returns every merged link ordered by pair.
func (s *LinkStorage) ListMerged() ([]model.MergedLink, error) {
	rows, err := s.db.Query("SELECT " + mergedColumns + " FROM merged_links ORDER BY device_a_id, device_b_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query merged links: %w", err)
	}
	defer rows.Close()

	var links []model.MergedLink
	for rows.Next() {
		l, err := scanMerged(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, *l)
	}
	return links, rows.Err()
}

// GetMerged returns one merged link.
func (s *LinkStorage) GetMerged(id int64) (*model.MergedLink, error) {
	l, err := scanMerged(s.db.QueryRow("SELECT "+mergedColumns+" FROM merged_links WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("link %d: %w", id, model.ErrNotFound)
	}
	return l, err
}

// SetExcluded hides or shows a merged link in topology views.
func (s *LinkStorage) SetExcluded(id int64, excluded bool) error {
	result, err := s.db.Exec("UPDATE merged_links SET is_excluded = ? WHERE id = ?", excluded, id)
	if err != nil {
		return fmt.Errorf("failed to update link %d: %w", id, err)
	}
	return expectOne(result, "link", id)
}

func scanMerged(row rowScanner) (*model.MergedLink, error) {
	var l model.MergedLink
	var pairs string
	if err := row.Scan(&l.ID, &l.DeviceAID, &l.DeviceBID, &l.TotalBandwidthMbps, &l.CurrentInBps,
		&l.CurrentOutBps, &l.UtilizationInPercent, &l.UtilizationOutPercent, &pairs,
		&l.IsExcluded, &l.LastUpdated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(pairs), &l.PortPairs); err != nil {
		return nil, fmt.Errorf("failed to decode port pairs of link %d: %w", l.ID, err)
	}
	return &l, nil
}
