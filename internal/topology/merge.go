// Package topology merges neighbor observations into device-pair links and
// builds filtered topology views and device hierarchies.
package topology

import (
	"net"
	"sort"
	"strings"
	"time"

	"github.com/user/topomon/internal/model"
)

// directory resolves advertised neighbor names to known devices.
type directory struct {
	exact map[string]int64
	lower map[string]int64
	short map[string]int64
}

func newDirectory(devices []model.Device) *directory {
	d := &directory{
		exact: make(map[string]int64, len(devices)),
		lower: make(map[string]int64, len(devices)),
		short: make(map[string]int64, len(devices)),
	}
	for _, dev := range devices {
		if dev.Hostname == "" {
			continue
		}
		d.exact[dev.Hostname] = dev.ID
		d.lower[strings.ToLower(dev.Hostname)] = dev.ID
		if s := shortName(dev.Hostname); s != "" {
			if _, taken := d.short[s]; !taken {
				d.short[s] = dev.ID
			}
		}
	}
	return d
}

// resolve tries the exact name, then a case-insensitive match, then the
// host part of a fully qualified name.
func (d *directory) resolve(name string) (int64, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, false
	}
	if id, ok := d.exact[name]; ok {
		return id, true
	}
	if id, ok := d.lower[strings.ToLower(name)]; ok {
		return id, true
	}
	if s := shortName(name); s != "" {
		if id, ok := d.short[s]; ok {
			return id, true
		}
	}
	return 0, false
}

func shortName(host string) string {
	if net.ParseIP(host) != nil {
		return ""
	}
	if i := strings.IndexByte(host, '.'); i > 0 {
		host = host[:i]
	}
	return strings.ToLower(host)
}

// observation is one raw link already oriented to its device pair.
type observation struct {
	key      model.PairKey
	portA    string
	portB    string
	fromA    bool
	observer int64
	index    int
	bwPort   string
}

type pairPorts struct {
	a string
	b string
}

type sampleKey struct {
	device int64
	index  int
}

// Merge groups raw neighbor observations by device pair and aggregates
// bandwidth and traffic. Traffic is expressed from device A's side. A
// port pair seen from both ends counts once. Neighbors that do not
// resolve to a known device are dropped. The output is sorted by pair.
func Merge(devices []model.Device, raw []model.RawLink, samples []model.InterfaceSample, now time.Time) []model.MergedLink {
	dir := newDirectory(devices)

	bySample := make(map[sampleKey]model.InterfaceSample, len(samples))
	for _, s := range samples {
		bySample[sampleKey{s.DeviceID, s.PortIndex}] = s
	}

	groups := make(map[model.PairKey]map[pairPorts][]observation)
	for _, r := range raw {
		remote, ok := dir.resolve(r.RemoteHostname)
		if !ok || remote == r.LocalDeviceID {
			continue
		}
		key := model.NewPairKey(r.LocalDeviceID, remote)
		obs := observation{
			key:      key,
			fromA:    r.LocalDeviceID == key.A,
			observer: r.LocalDeviceID,
			index:    r.LocalPortIndex,
			bwPort:   r.LocalPort,
		}
		if obs.fromA {
			obs.portA, obs.portB = r.LocalPort, r.RemotePort
		} else {
			obs.portA, obs.portB = r.RemotePort, r.LocalPort
		}

		ports := groups[key]
		if ports == nil {
			ports = make(map[pairPorts][]observation)
			groups[key] = ports
		}
		pp := pairPorts{a: obs.portA, b: obs.portB}
		ports[pp] = append(ports[pp], obs)
	}

	links := make([]model.MergedLink, 0, len(groups))
	for key, ports := range groups {
		link := model.MergedLink{DeviceAID: key.A, DeviceBID: key.B, LastUpdated: now}
		for pp, candidates := range ports {
			pair := buildPortPair(pp, candidates, bySample)
			link.PortPairs = append(link.PortPairs, pair)
			link.TotalBandwidthMbps += pair.BandwidthMbps
			link.CurrentInBps += pair.InBps
			link.CurrentOutBps += pair.OutBps
		}
		sort.Slice(link.PortPairs, func(i, j int) bool {
			if link.PortPairs[i].LocalPort != link.PortPairs[j].LocalPort {
				return link.PortPairs[i].LocalPort < link.PortPairs[j].LocalPort
			}
			return link.PortPairs[i].RemotePort < link.PortPairs[j].RemotePort
		})
		if link.TotalBandwidthMbps > 0 {
			capacity := float64(link.TotalBandwidthMbps) * 1e6
			link.UtilizationInPercent = float64(link.CurrentInBps) / capacity * 100
			link.UtilizationOutPercent = float64(link.CurrentOutBps) / capacity * 100
		}
		links = append(links, link)
	}

	sort.Slice(links, func(i, j int) bool {
		if links[i].DeviceAID != links[j].DeviceAID {
			return links[i].DeviceAID < links[j].DeviceAID
		}
		return links[i].DeviceBID < links[j].DeviceBID
	})
	return links
}

// buildPortPair prefers device A's observation and falls back to B's for
// the port name and traffic, swapping B's direction.
func buildPortPair(pp pairPorts, candidates []observation, samples map[sampleKey]model.InterfaceSample) model.PortPair {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].fromA && !candidates[j].fromA
	})
	chosen := candidates[0]

	pair := model.PortPair{
		LocalPort:     pp.a,
		RemotePort:    pp.b,
		BandwidthMbps: EstimateBandwidth(chosen.bwPort),
	}
	for _, c := range candidates {
		s, ok := samples[sampleKey{c.observer, c.index}]
		if !ok {
			continue
		}
		if c.fromA {
			pair.InBps, pair.OutBps = s.InBps, s.OutBps
		} else {
			pair.InBps, pair.OutBps = s.OutBps, s.InBps
		}
		break
	}
	return pair
}
