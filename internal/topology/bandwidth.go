package topology

import "strings"

// speedClass maps port naming conventions to a nominal speed. Keywords
// match anywhere in the lowercased name. Prefixes are abbreviations and
// match only at its start when followed by a port number, optionally after
// a separator: "te1/0/1" and "ge-0/0/0" match, "test0" does not.
type speedClass struct {
	mbps     int64
	keywords []string
	prefixes []string
}

var speedClasses = []speedClass{
	{100000, []string{"hundred", "100g"}, []string{"hu"}},
	{40000, []string{"forty", "40g"}, []string{"fo"}},
	{10000, []string{"tengig", "ten-gig", "10g"}, []string{"ten", "te", "xge", "xg"}},
	{1000, []string{"gigabit", "1g"}, []string{"gi", "ge"}},
	{100, []string{"fastethernet", "100m"}, []string{"fast", "fa"}},
}

// DefaultBandwidthMbps is assumed when a port name matches no class.
const DefaultBandwidthMbps = 1000

// EstimateBandwidth guesses the speed of a port from its name.
func EstimateBandwidth(portName string) int64 {
	name := strings.ToLower(strings.TrimSpace(portName))
	for _, c := range speedClasses {
		for _, kw := range c.keywords {
			if strings.Contains(name, kw) {
				return c.mbps
			}
		}
		for _, p := range c.prefixes {
			if hasAbbrev(name, p) {
				return c.mbps
			}
		}
	}
	return DefaultBandwidthMbps
}

func hasAbbrev(name, prefix string) bool {
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok {
		return false
	}
	rest = strings.TrimLeft(rest, "-_ ")
	return rest != "" && rest[0] >= '0' && rest[0] <= '9'
}

// LinkStatus is the utilization band of a link.
type LinkStatus string

const (
	LinkNormal   LinkStatus = "normal"
	LinkElevated LinkStatus = "elevated"
	LinkWarning  LinkStatus = "warning"
	LinkCritical LinkStatus = "critical"
)

// StatusFor classifies a peak utilization percentage.
func StatusFor(utilization float64) LinkStatus {
	switch {
	case utilization >= 90:
		return LinkCritical
	case utilization >= 70:
		return LinkWarning
	case utilization >= 50:
		return LinkElevated
	}
	return LinkNormal
}
