package snmp

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/gosnmp/gosnmp"
)

// fakeTransport answers from fixed tables.
type fakeTransport struct {
	scalars  map[string]gosnmp.SnmpPDU
	tables   map[string][]gosnmp.SnmpPDU
	walkErr  map[string]error
	down     bool
	getCalls int
	walked   []string
}

func (f *fakeTransport) Get(_ context.Context, _ Target, oids []string) ([]gosnmp.SnmpPDU, error) {
	f.getCalls++
	if f.down {
		return nil, errors.New("request timeout")
	}
	var out []gosnmp.SnmpPDU
	for _, oid := range oids {
		if pdu, ok := f.scalars[oid]; ok {
			out = append(out, pdu)
			continue
		}
		out = append(out, gosnmp.SnmpPDU{Name: oid, Type: gosnmp.NoSuchObject})
	}
	return out, nil
}

func (f *fakeTransport) Walk(_ context.Context, _ Target, root string, maxResults int) ([]gosnmp.SnmpPDU, error) {
	f.walked = append(f.walked, root)
	if f.down {
		return nil, errors.New("request timeout")
	}
	rows := f.tables[root]
	if maxResults > 0 && len(rows) > maxResults {
		rows = rows[:maxResults]
	}
	return rows, f.walkErr[root]
}

func str(oid, v string) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.OctetString, Value: []byte(v)}
}

func num(oid string, v uint) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Gauge32, Value: v}
}

func ctr(oid string, v uint64) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Counter64, Value: v}
}

func ciscoSwitch() *fakeTransport {
	return &fakeTransport{
		scalars: map[string]gosnmp.SnmpPDU{
			OIDSysName:   str(OIDSysName, "dist1"),
			OIDSysDescr:  str(OIDSysDescr, "Cisco IOS Software, C3750E Software"),
			OIDSysUptime: {Name: OIDSysUptime, Type: gosnmp.TimeTicks, Value: uint32(123456)},
		},
		tables: map[string][]gosnmp.SnmpPDU{
			OIDIfDescr: {
				str(OIDIfDescr+".1", "GigabitEthernet1/0/1"),
				str(OIDIfDescr+".2", "TenGigabitEthernet1/1/1"),
				str(OIDIfDescr+".3", "Null0"),
			},
			OIDIfHighSpeed: {
				num(OIDIfHighSpeed+".1", 1000),
				num(OIDIfHighSpeed+".2", 10000),
				num(OIDIfHighSpeed+".3", 0),
			},
			OIDIfHCInOctets: {
				ctr(OIDIfHCInOctets+".1", 1000),
				ctr(OIDIfHCInOctets+".2", math.MaxUint64-5),
			},
			OIDIfHCOutOctets: {
				ctr(OIDIfHCOutOctets+".1", 2000),
				ctr(OIDIfHCOutOctets+".2", 42),
			},
			OIDLldpRemSysName: {
				str(OIDLldpRemSysName+".0.2.1", "core1"),
				str(OIDLldpRemSysName+".0.7.3", "acc9"),
			},
			OIDLldpRemPortID: {
				str(OIDLldpRemPortID+".0.2.1", "Te1/0/48"),
			},
			OIDLldpRemChassisID: {
				{Name: OIDLldpRemChassisID + ".0.2.1", Type: gosnmp.OctetString, Value: []byte{0x00, 0x1b, 0x54, 0xaa, 0xbb, 0xcc}},
				str(OIDLldpRemChassisID+".0.7.3", "10.1.1.9"),
			},
			OIDCdpCacheDeviceID: {
				str(OIDCdpCacheDeviceID+".1.5", "ap-lobby"),
			},
			OIDCdpCacheDevicePort: {
				str(OIDCdpCacheDevicePort+".1.5", "eth0"),
			},
			".1.3.6.1.4.1.9.9.109.1.1.1.1.8": {
				num(".1.3.6.1.4.1.9.9.109.1.1.1.1.8.1", 20),
				num(".1.3.6.1.4.1.9.9.109.1.1.1.1.8.2", 40),
			},
			".1.3.6.1.4.1.9.9.48.1.1.1.5": {
				num(".1.3.6.1.4.1.9.9.48.1.1.1.5.1", 300),
				num(".1.3.6.1.4.1.9.9.48.1.1.1.5.2", 999),
			},
			".1.3.6.1.4.1.9.9.48.1.1.1.6": {
				num(".1.3.6.1.4.1.9.9.48.1.1.1.6.1", 700),
			},
		},
	}
}

func TestDetectVendor(t *testing.T) {
	tests := []struct {
		descr string
		want  string
	}{
		{"Cisco IOS Software, C2960 Software (C2960-LANBASEK9-M)", VendorCiscoIOS},
		{"Cisco NX-OS(tm) n9000", VendorCiscoNXOS},
		{"Cisco Nexus Operating System", VendorCiscoNXOS},
		{"FortiGate-100F v7.2.5", VendorFortinet},
		{"Palo Alto Networks PA-3220 series firewall", VendorPaloAlto},
		{"HP J9772A 2530-48G-PoEP Switch, revision YA.16 ProCurve", VendorHPAruba},
		{"Aruba JL258A 2930F-8G-PoE+-2SFP+ Switch", VendorHPAruba},
		{"Ruckus Wireless SmartZone", VendorRuckus},
		{"Linux router 5.10", VendorUnknown},
		{"", VendorUnknown},
	}
	for _, tt := range tests {
		if got := DetectVendor(tt.descr); got != tt.want {
			t.Errorf("DetectVendor(%q) = %q, want %q", tt.descr, got, tt.want)
		}
	}
}

func TestGetIdentity(t *testing.T) {
	c := NewCollector(ciscoSwitch(), 0)
	id := c.GetIdentity(context.Background(), Target{Address: "10.0.0.2"})
	if id == nil {
		t.Fatal("expected identity")
	}
	if id.Name != "dist1" || id.Vendor != VendorCiscoIOS || id.UptimeSeconds != 1234 {
		t.Errorf("identity = %+v", id)
	}
}

func TestGetIdentityUnreachable(t *testing.T) {
	c := NewCollector(&fakeTransport{down: true}, 0)
	if id := c.GetIdentity(context.Background(), Target{Address: "10.0.0.2"}); id != nil {
		t.Errorf("expected nil identity, got %+v", id)
	}

	noName := &fakeTransport{scalars: map[string]gosnmp.SnmpPDU{OIDSysDescr: str(OIDSysDescr, "x")}}
	if id := NewCollector(noName, 0).GetIdentity(context.Background(), Target{}); id != nil {
		t.Errorf("expected nil identity without sysName, got %+v", id)
	}
}

func TestGetNeighbors(t *testing.T) {
	c := NewCollector(ciscoSwitch(), 0)
	neighbors := c.GetNeighbors(context.Background(), Target{Address: "10.0.0.2"})
	if len(neighbors) != 3 {
		t.Fatalf("got %d neighbors, want 3: %+v", len(neighbors), neighbors)
	}

	core := neighbors[0]
	if core.RemoteHostname != "core1" || core.LocalPortIndex != 2 || core.LocalPort != "TenGigabitEthernet1/1/1" ||
		core.RemotePort != "Te1/0/48" || core.RemoteChassisID != "00:1b:54:aa:bb:cc" || core.Protocol != "lldp" {
		t.Errorf("lldp neighbor = %+v", core)
	}

	acc := neighbors[1]
	if acc.LocalPort != "Port7" || acc.RemotePort != "" || acc.RemoteChassisID != "10.1.1.9" {
		t.Errorf("lldp neighbor without ifDescr = %+v", acc)
	}

	ap := neighbors[2]
	if ap.Protocol != "cdp" || ap.LocalPortIndex != 1 || ap.LocalPort != "GigabitEthernet1/0/1" || ap.RemotePort != "eth0" {
		t.Errorf("cdp neighbor = %+v", ap)
	}
}

func TestGetInterfacesSkipsZeroSpeed(t *testing.T) {
	c := NewCollector(ciscoSwitch(), 0)
	ifaces := c.GetInterfaces(context.Background(), Target{})
	if len(ifaces) != 2 {
		t.Fatalf("got %d interfaces, want 2", len(ifaces))
	}
	if ifaces[0].Name != "GigabitEthernet1/0/1" || ifaces[0].SpeedMbps != 1000 || ifaces[0].InOctets != 1000 || ifaces[0].OutOctets != 2000 {
		t.Errorf("iface[0] = %+v", ifaces[0])
	}
	if ifaces[1].InOctets != math.MaxUint64-5 {
		t.Errorf("64-bit counter truncated: %d", ifaces[1].InOctets)
	}
}

func TestGetMetrics(t *testing.T) {
	c := NewCollector(ciscoSwitch(), 0)
	m := c.GetMetrics(context.Background(), Target{}, VendorCiscoIOS)
	if m.CPUPercent == nil || *m.CPUPercent != 30 {
		t.Errorf("cpu = %v, want mean 30", m.CPUPercent)
	}
	if m.MemoryPercent == nil || *m.MemoryPercent != 30 {
		t.Errorf("memory = %v, want 300/(300+700)", m.MemoryPercent)
	}

	if m := c.GetMetrics(context.Background(), Target{}, VendorUnknown); m.CPUPercent != nil || m.MemoryPercent != nil {
		t.Errorf("unknown vendor metrics = %+v", m)
	}
}

func TestGetMetricsScalarVendor(t *testing.T) {
	ft := &fakeTransport{scalars: map[string]gosnmp.SnmpPDU{
		".1.3.6.1.4.1.12356.101.4.1.3.0": num(".1.3.6.1.4.1.12356.101.4.1.3.0", 17),
	}}
	m := NewCollector(ft, 0).GetMetrics(context.Background(), Target{}, VendorFortinet)
	if m.CPUPercent == nil || *m.CPUPercent != 17 {
		t.Errorf("cpu = %v", m.CPUPercent)
	}
	if m.MemoryPercent != nil {
		t.Errorf("unanswered memory should be nil, got %v", *m.MemoryPercent)
	}
}

func TestWalkKeepsPartialResultsAndCap(t *testing.T) {
	ft := ciscoSwitch()
	ft.walkErr = map[string]error{OIDIfDescr: errors.New("response error mid-walk")}

	c := NewCollector(ft, 2)
	rows := c.walk(context.Background(), Target{}, OIDIfDescr)
	if len(rows) != 2 {
		t.Errorf("got %d rows, want partial result capped at 2", len(rows))
	}
	if _, ok := rows["1"]; !ok {
		t.Errorf("missing first row: %v", rows)
	}
}

func TestPollDeviceShortCircuits(t *testing.T) {
	ft := &fakeTransport{down: true}
	res := NewCollector(ft, 0).PollDevice(context.Background(), Target{Address: "10.9.9.9"})
	if res.Success || res.Identity != nil {
		t.Errorf("result = %+v", res)
	}
	if len(ft.walked) != 0 {
		t.Errorf("walks issued after identity failure: %v", ft.walked)
	}
}

func TestPollDevice(t *testing.T) {
	ft := ciscoSwitch()
	res := NewCollector(ft, 0).PollDevice(context.Background(), Target{Address: "10.0.0.2"})
	if !res.Success || len(res.Neighbors) != 3 || len(res.Interfaces) != 2 || res.Metrics.CPUPercent == nil {
		t.Errorf("result = %+v", res)
	}
	if res.Neighbors[0].LocalPort != "TenGigabitEthernet1/1/1" || res.Interfaces[0].Name != "GigabitEthernet1/0/1" {
		t.Errorf("names = %q, %q", res.Neighbors[0].LocalPort, res.Interfaces[0].Name)
	}
	descrWalks := 0
	for _, root := range ft.walked {
		if root == OIDIfDescr {
			descrWalks++
		}
	}
	if descrWalks != 1 {
		t.Errorf("ifDescr walked %d times per poll, want 1", descrWalks)
	}
}

func TestSplitAddress(t *testing.T) {
	host, port := splitAddress("10.0.0.1:1161", 161)
	if host != "10.0.0.1" || port != 1161 {
		t.Errorf("got %s:%d", host, port)
	}
	host, port = splitAddress("10.0.0.1", 161)
	if host != "10.0.0.1" || port != 161 {
		t.Errorf("got %s:%d", host, port)
	}
}
