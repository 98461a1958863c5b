package snmp

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/gosnmp/gosnmp"

	"github.com/user/topomon/internal/util"
)

// Identity is the system group of a device.
type Identity struct {
	Name          string
	Description   string
	UptimeSeconds int64
	Vendor        string
}

// Neighbor is one LLDP or CDP neighbor seen by a device.
type Neighbor struct {
	LocalPort       string
	LocalPortIndex  int
	RemoteHostname  string
	RemotePort      string
	RemoteChassisID string
	Protocol        string
}

// Interface holds the counters of one interface.
type Interface struct {
	Index     int
	Name      string
	SpeedMbps int64
	InOctets  uint64
	OutOctets uint64
}

// Metrics holds vendor CPU and memory utilization. Nil means not reported.
type Metrics struct {
	CPUPercent    *float64
	MemoryPercent *float64
}

// PollResult is the outcome of polling one device.
type PollResult struct {
	Success    bool
	Identity   *Identity
	Neighbors  []Neighbor
	Interfaces []Interface
	Metrics    Metrics
	PolledAt   time.Time
}

// Collector turns raw SNMP data into typed records. Transport failures
// never surface as errors: the affected query yields no data.
type Collector struct {
	transport Transport
	walkMax   int
	now       func() time.Time
}

// NewCollector creates a collector. walkMax caps the rows read by any single walk.
func NewCollector(transport Transport, walkMax int) *Collector {
	return &Collector{
		transport: transport,
		walkMax:   walkMax,
		now:       time.Now,
	}
}

// GetIdentity reads sysName, sysDescr and sysUpTime. It returns nil when
// the device does not answer or reports no name.
func (c *Collector) GetIdentity(ctx context.Context, t Target) *Identity {
	values := c.get(ctx, t, OIDSysName, OIDSysDescr, OIDSysUptime)

	name := strings.TrimSpace(valueToString(values[OIDSysName]))
	if name == "" {
		return nil
	}

	descr := valueToString(values[OIDSysDescr])
	var uptime int64
	if v, ok := values[OIDSysUptime]; ok {
		// TimeTicks are hundredths of a second.
		uptime = toInt64(v) / 100
	}

	return &Identity{
		Name:          name,
		Description:   descr,
		UptimeSeconds: uptime,
		Vendor:        DetectVendor(descr),
	}
}

// GetNeighbors combines the LLDP and CDP neighbor tables.
func (c *Collector) GetNeighbors(ctx context.Context, t Target) []Neighbor {
	return c.neighbors(ctx, t, interfaceNames(c.walk(ctx, t, OIDIfDescr)))
}

func (c *Collector) neighbors(ctx context.Context, t Target, ifNames map[int]string) []Neighbor {
	neighbors := c.lldpNeighbors(ctx, t, ifNames)
	return append(neighbors, c.cdpNeighbors(ctx, t, ifNames)...)
}

func (c *Collector) lldpNeighbors(ctx context.Context, t Target, ifNames map[int]string) []Neighbor {
	names := c.walk(ctx, t, OIDLldpRemSysName)
	if len(names) == 0 {
		return nil
	}
	ports := c.walk(ctx, t, OIDLldpRemPortID)
	chassis := c.walk(ctx, t, OIDLldpRemChassisID)

	var out []Neighbor
	for _, index := range sortedKeys(names) {
		remote := strings.TrimSpace(valueToString(names[index]))
		if remote == "" {
			continue
		}

		n := Neighbor{
			RemoteHostname:  remote,
			RemotePort:      valueToString(ports[index]),
			RemoteChassisID: chassisToString(chassis[index]),
			Protocol:        "lldp",
			LocalPort:       "Unknown",
		}
		// timeMark.localPortNum.remIndex
		if parts := strings.Split(index, "."); len(parts) >= 2 {
			n.LocalPortIndex, _ = strconv.Atoi(parts[1])
			n.LocalPort = localPortName(ifNames, n.LocalPortIndex)
		}
		out = append(out, n)
	}
	return out
}

func (c *Collector) cdpNeighbors(ctx context.Context, t Target, ifNames map[int]string) []Neighbor {
	ids := c.walk(ctx, t, OIDCdpCacheDeviceID)
	if len(ids) == 0 {
		return nil
	}
	ports := c.walk(ctx, t, OIDCdpCacheDevicePort)

	var out []Neighbor
	for _, index := range sortedKeys(ids) {
		remote := strings.TrimSpace(valueToString(ids[index]))
		if remote == "" {
			continue
		}

		// ifIndex.deviceIndex
		ifIndex, _ := strconv.Atoi(strings.Split(index, ".")[0])
		out = append(out, Neighbor{
			LocalPort:      localPortName(ifNames, ifIndex),
			LocalPortIndex: ifIndex,
			RemoteHostname: remote,
			RemotePort:     valueToString(ports[index]),
			Protocol:       "cdp",
		})
	}
	return out
}

// GetInterfaces reads name, speed and 64-bit octet counters of every
// interface. Interfaces reporting zero speed are skipped.
func (c *Collector) GetInterfaces(ctx context.Context, t Target) []Interface {
	return c.interfaces(ctx, t, c.walk(ctx, t, OIDIfDescr))
}

// interfaces completes the ifDescr rows in descrs with speed and counters.
func (c *Collector) interfaces(ctx context.Context, t Target, descrs map[string]gosnmp.SnmpPDU) []Interface {
	if len(descrs) == 0 {
		return nil
	}
	speeds := c.walk(ctx, t, OIDIfHighSpeed)
	ins := c.walk(ctx, t, OIDIfHCInOctets)
	outs := c.walk(ctx, t, OIDIfHCOutOctets)

	var out []Interface
	for _, index := range sortedKeys(descrs) {
		ifIndex, err := strconv.Atoi(index)
		if err != nil {
			continue
		}
		speed := toInt64(speeds[index])
		if speed <= 0 {
			continue
		}
		out = append(out, Interface{
			Index:     ifIndex,
			Name:      valueToString(descrs[index]),
			SpeedMbps: speed,
			InOctets:  toUint64(ins[index]),
			OutOctets: toUint64(outs[index]),
		})
	}
	return out
}

// GetMetrics reads vendor CPU and memory utilization. Unknown vendors and
// unanswered queries give nil values.
func (c *Collector) GetMetrics(ctx context.Context, t Target, vendor string) Metrics {
	oids, ok := vendorMetricOIDs[vendor]
	if !ok {
		return Metrics{}
	}

	var m Metrics
	if oids.CPU != "" {
		m.CPUPercent = c.readMean(ctx, t, oids.CPU)
	}

	switch {
	case oids.Memory != "":
		m.MemoryPercent = c.readFirst(ctx, t, oids.Memory)
	case oids.MemoryUsed != "" && oids.MemoryFree != "":
		used, free := c.readFirst(ctx, t, oids.MemoryUsed), c.readFirst(ctx, t, oids.MemoryFree)
		if used != nil && free != nil && *used+*free > 0 {
			m.MemoryPercent = percent(*used, *used+*free)
		}
	case oids.MemoryUsed != "" && oids.MemorySize != "":
		used, size := c.readFirst(ctx, t, oids.MemoryUsed), c.readFirst(ctx, t, oids.MemorySize)
		if used != nil && size != nil && *size > 0 {
			m.MemoryPercent = percent(*used, *size)
		}
	}
	return m
}

// PollDevice runs identity, neighbors, interfaces and metrics in that
// order. Without an identity nothing else is queried and Success is false.
func (c *Collector) PollDevice(ctx context.Context, t Target) *PollResult {
	res := &PollResult{PolledAt: c.now()}

	res.Identity = c.GetIdentity(ctx, t)
	if res.Identity == nil {
		return res
	}
	res.Success = true

	descrs := c.walk(ctx, t, OIDIfDescr)
	res.Neighbors = c.neighbors(ctx, t, interfaceNames(descrs))
	res.Interfaces = c.interfaces(ctx, t, descrs)
	res.Metrics = c.GetMetrics(ctx, t, res.Identity.Vendor)
	return res
}

// interfaceNames maps ifIndex to interface name from ifDescr rows.
func interfaceNames(descrs map[string]gosnmp.SnmpPDU) map[int]string {
	names := make(map[int]string, len(descrs))
	for index, pdu := range descrs {
		if i, err := strconv.Atoi(index); err == nil {
			names[i] = valueToString(pdu)
		}
	}
	return names
}

// get returns the answered values keyed by requested OID.
func (c *Collector) get(ctx context.Context, t Target, oids ...string) map[string]gosnmp.SnmpPDU {
	pdus, err := c.transport.Get(ctx, t, oids)
	if err != nil {
		util.Debug("SNMP get on %s failed: %v", t.Address, err)
		return nil
	}
	out := make(map[string]gosnmp.SnmpPDU, len(pdus))
	for _, pdu := range pdus {
		if !hasValue(pdu) {
			continue
		}
		out[normalizeOID(pdu.Name)] = pdu
	}
	return out
}

// walk returns the rows under root keyed by the index suffix. A walk that
// fails midway still yields the rows read so far.
func (c *Collector) walk(ctx context.Context, t Target, root string) map[string]gosnmp.SnmpPDU {
	pdus, err := c.transport.Walk(ctx, t, root, c.walkMax)
	if err != nil {
		util.Debug("SNMP walk of %s on %s stopped: %v", root, t.Address, err)
	}

	prefix := normalizeOID(root) + "."
	out := make(map[string]gosnmp.SnmpPDU, len(pdus))
	for _, pdu := range pdus {
		name := normalizeOID(pdu.Name)
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if !hasValue(pdu) {
			continue
		}
		out[strings.TrimPrefix(name, prefix)] = pdu
		if c.walkMax > 0 && len(out) >= c.walkMax {
			break
		}
	}
	return out
}

// readFirst reads a scalar with Get, or the lowest-indexed row of a column.
func (c *Collector) readFirst(ctx context.Context, t Target, oid string) *float64 {
	if strings.HasSuffix(oid, ".0") {
		if pdu, ok := c.get(ctx, t, oid)[normalizeOID(oid)]; ok {
			return floatOf(pdu)
		}
		return nil
	}
	rows := c.walk(ctx, t, oid)
	keys := sortedKeys(rows)
	if len(keys) == 0 {
		return nil
	}
	return floatOf(rows[keys[0]])
}

// readMean reads a scalar with Get, or averages every row of a column.
func (c *Collector) readMean(ctx context.Context, t Target, oid string) *float64 {
	if strings.HasSuffix(oid, ".0") {
		return c.readFirst(ctx, t, oid)
	}
	rows := c.walk(ctx, t, oid)
	if len(rows) == 0 {
		return nil
	}
	var sum float64
	for _, pdu := range rows {
		sum += float64(toInt64(pdu))
	}
	mean := sum / float64(len(rows))
	return &mean
}

func hasValue(pdu gosnmp.SnmpPDU) bool {
	switch pdu.Type {
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView, gosnmp.Null:
		return false
	}
	return pdu.Value != nil
}

func normalizeOID(oid string) string {
	if strings.HasPrefix(oid, ".") {
		return oid
	}
	return "." + oid
}

func localPortName(ifNames map[int]string, index int) string {
	if name, ok := ifNames[index]; ok && name != "" {
		return name
	}
	return fmt.Sprintf("Port%d", index)
}

// sortedKeys orders OID index suffixes numerically component by component.
func sortedKeys(m map[string]gosnmp.SnmpPDU) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return lessIndex(keys[i], keys[j])
	})
	return keys
}

func lessIndex(a, b string) bool {
	pa, pb := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(pa) && i < len(pb); i++ {
		na, ea := strconv.Atoi(pa[i])
		nb, eb := strconv.Atoi(pb[i])
		if ea != nil || eb != nil {
			if pa[i] != pb[i] {
				return pa[i] < pb[i]
			}
			continue
		}
		if na != nb {
			return na < nb
		}
	}
	return len(pa) < len(pb)
}

func valueToString(pdu gosnmp.SnmpPDU) string {
	switch v := pdu.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// chassisToString renders printable chassis IDs as text and binary ones
// (usually MAC addresses) as colon-separated hex.
func chassisToString(pdu gosnmp.SnmpPDU) string {
	b, ok := pdu.Value.([]byte)
	if !ok {
		return valueToString(pdu)
	}
	printable := len(b) > 0
	for _, r := range string(b) {
		if !unicode.IsPrint(r) {
			printable = false
			break
		}
	}
	if printable {
		return string(b)
	}
	parts := make([]string, len(b))
	for i, x := range b {
		parts[i] = fmt.Sprintf("%02x", x)
	}
	return strings.Join(parts, ":")
}

func toInt64(pdu gosnmp.SnmpPDU) int64 {
	if pdu.Value == nil {
		return 0
	}
	switch v := pdu.Value.(type) {
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n
	case []byte:
		n, _ := strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
		return n
	}
	return gosnmp.ToBigInt(pdu.Value).Int64()
}

func toUint64(pdu gosnmp.SnmpPDU) uint64 {
	if pdu.Value == nil {
		return 0
	}
	if v, ok := pdu.Value.(uint64); ok {
		return v
	}
	return gosnmp.ToBigInt(pdu.Value).Uint64()
}

func floatOf(pdu gosnmp.SnmpPDU) *float64 {
	f := float64(toInt64(pdu))
	return &f
}

func percent(part, whole float64) *float64 {
	p := part / whole * 100
	return &p
}
