// Package model defines core data structures for topomon.
package model

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an operation clashes with the record's current state.
	ErrConflict = errors.New("conflict")
	// ErrInvalid is returned when input fails validation against stored state.
	ErrInvalid = errors.New("invalid")
)

// DeviceStatus is the health state of a device.
type DeviceStatus string

const (
	StatusUnknown   DeviceStatus = "unknown"
	StatusManaged   DeviceStatus = "managed"
	StatusUnmanaged DeviceStatus = "unmanaged"
	StatusOffline   DeviceStatus = "offline"
	StatusExcluded  DeviceStatus = "excluded"
)

// DeviceType is the role a device plays in the network.
type DeviceType string

const (
	TypeCore         DeviceType = "core"
	TypeDistribution DeviceType = "distribution"
	TypeAccess       DeviceType = "access"
	TypeRouter       DeviceType = "router"
	TypeFirewall     DeviceType = "firewall"
	TypeAP           DeviceType = "ap"
	TypeUnknown      DeviceType = "unknown"
)

// Credentials holds SNMP management credentials. Empty fields fall back
// to the configured defaults.
type Credentials struct {
	Version   string `json:"version"` // "v2c" or "v3"
	Community string `json:"community,omitempty"`
	V3User    string `json:"v3_user,omitempty"`
	V3Auth    string `json:"-"`
	V3Priv    string `json:"-"`
}

// IsZero reports whether no credential material is set.
func (c Credentials) IsZero() bool {
	return c.Version == "" && c.Community == "" && c.V3User == ""
}

// Device is a managed network device.
type Device struct {
	ID             int64        `json:"id"`
	Hostname       string       `json:"hostname"`
	IP             string       `json:"ip_address"`
	Vendor         string       `json:"vendor"`
	Model          string       `json:"model,omitempty"`
	Firmware       string       `json:"firmware,omitempty"`
	Credentials    Credentials  `json:"credentials"`
	Type           DeviceType   `json:"device_type"`
	ParentID       *int64       `json:"parent_device_id,omitempty"`
	AutoDiscover   bool         `json:"auto_discover"`
	Status         DeviceStatus `json:"status"`
	CPUPercent     *float64     `json:"cpu_percent,omitempty"`
	MemoryPercent  *float64     `json:"memory_percent,omitempty"`
	UptimeSeconds  int64        `json:"uptime_seconds"`
	LastSeen       *time.Time   `json:"last_seen,omitempty"`
	AlertProfileID *int64       `json:"alert_profile_id,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// RawLink is one directional neighbor observation made by a device.
type RawLink struct {
	ID              int64     `json:"id"`
	LocalDeviceID   int64     `json:"local_device_id"`
	LocalPort       string    `json:"local_port"`
	LocalPortIndex  int       `json:"local_port_index"`
	RemoteHostname  string    `json:"remote_hostname"`
	RemotePort      string    `json:"remote_port"`
	RemoteChassisID string    `json:"remote_chassis_id"`
	Protocol        string    `json:"protocol"` // lldp, cdp
	DiscoveredAt    time.Time `json:"discovered_at"`
	LastSeen        time.Time `json:"last_seen"`
}

// InterfaceSample is the latest counter reading for one interface of a device.
type InterfaceSample struct {
	DeviceID  int64     `json:"device_id"`
	PortIndex int       `json:"port_index"`
	PortName  string    `json:"port_name"`
	SpeedMbps int64     `json:"speed_mbps"`
	InOctets  uint64    `json:"in_octets"`
	OutOctets uint64    `json:"out_octets"`
	InBps     int64     `json:"in_bps"`
	OutBps    int64     `json:"out_bps"`
	SampledAt time.Time `json:"sampled_at"`
}

// PortPair is one physical connection contributing to a merged link.
type PortPair struct {
	LocalPort     string `json:"local_port"`
	RemotePort    string `json:"remote_port"`
	BandwidthMbps int64  `json:"bandwidth_mbps"`
	InBps         int64  `json:"in_bps"`
	OutBps        int64  `json:"out_bps"`
}

// PairKey is the canonical unordered device pair (A < B).
type PairKey struct {
	A int64
	B int64
}

// NewPairKey orders two device ids into a canonical key.
func NewPairKey(x, y int64) PairKey {
	if x < y {
		return PairKey{A: x, B: y}
	}
	return PairKey{A: y, B: x}
}

// MergedLink aggregates all port pairs between two devices.
type MergedLink struct {
	ID                    int64      `json:"id"`
	DeviceAID             int64      `json:"device_a_id"`
	DeviceBID             int64      `json:"device_b_id"`
	TotalBandwidthMbps    int64      `json:"total_bandwidth_mbps"`
	CurrentInBps          int64      `json:"current_in_bps"`
	CurrentOutBps         int64      `json:"current_out_bps"`
	UtilizationInPercent  float64    `json:"utilization_in_percent"`
	UtilizationOutPercent float64    `json:"utilization_out_percent"`
	PortPairs             []PortPair `json:"port_pairs"`
	IsExcluded            bool       `json:"is_excluded"`
	LastUpdated           time.Time  `json:"last_updated"`
}

// Key returns the canonical pair key of the link.
func (l MergedLink) Key() PairKey {
	return NewPairKey(l.DeviceAID, l.DeviceBID)
}

// PeakUtilization is the larger of the in and out utilization.
func (l MergedLink) PeakUtilization() float64 {
	if l.UtilizationOutPercent > l.UtilizationInPercent {
		return l.UtilizationOutPercent
	}
	return l.UtilizationInPercent
}

// ExcludeRuleType selects how an ExcludeRule matches.
type ExcludeRuleType string

const (
	RuleHostnamePattern ExcludeRuleType = "hostname_pattern"
	RulePortPattern     ExcludeRuleType = "port_pattern"
	RuleDevicePair      ExcludeRuleType = "device_pair"
)

// ExcludeRule suppresses links from topology output.
type ExcludeRule struct {
	ID        int64           `json:"id"`
	Type      ExcludeRuleType `json:"rule_type"`
	Pattern   string          `json:"pattern,omitempty"`
	DeviceAID *int64          `json:"device_a_id,omitempty"`
	DeviceBID *int64          `json:"device_b_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// DeviceGroup is a named, optionally nested, set of devices.
type DeviceGroup struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ParentID    *int64    `json:"parent_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ScanResult summarizes one subnet sweep.
type ScanResult struct {
	Subnet     string `json:"subnet"`
	Probed     int    `json:"probed"`
	Discovered int    `json:"discovered"`
	Added      int    `json:"added"`
}
