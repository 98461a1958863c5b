package snmp

import "strings"

// Vendor identifiers derived from sysDescr.
const (
	VendorCiscoIOS  = "cisco_ios"
	VendorCiscoNXOS = "cisco_nxos"
	VendorFortinet  = "fortinet"
	VendorPaloAlto  = "paloalto"
	VendorHPAruba   = "hp_aruba"
	VendorRuckus    = "ruckus"
	VendorUnknown   = "unknown"
)

// vendorPatterns is checked in order; the first match wins.
var vendorPatterns = []struct {
	vendor   string
	keywords []string
}{
	{VendorCiscoIOS, []string{"cisco ios"}},
	{VendorCiscoNXOS, []string{"cisco nx-os", "cisco nexus"}},
	{VendorFortinet, []string{"fortigate", "fortios"}},
	{VendorPaloAlto, []string{"palo alto", "pan-os"}},
	{VendorHPAruba, []string{"procurve", "aruba", "hpe"}},
	{VendorRuckus, []string{"ruckus", "unleashed", "smartzone"}},
}

// DetectVendor maps a sysDescr string to a vendor identifier by
// case-insensitive substring match.
func DetectVendor(sysDescr string) string {
	descr := strings.ToLower(sysDescr)
	for _, p := range vendorPatterns {
		for _, kw := range p.keywords {
			if strings.Contains(descr, kw) {
				return p.vendor
			}
		}
	}
	return VendorUnknown
}

// SupportsMetrics reports whether CPU and memory OIDs are known for vendor.
func SupportsMetrics(vendor string) bool {
	_, ok := vendorMetricOIDs[vendor]
	return ok
}
