package snmp

// System group scalars.
const (
	OIDSysDescr  = ".1.3.6.1.2.1.1.1.0"
	OIDSysUptime = ".1.3.6.1.2.1.1.3.0"
	OIDSysName   = ".1.3.6.1.2.1.1.5.0"
)

// LLDP-MIB remote table columns, indexed by timeMark.localPortNum.remIndex.
const (
	OIDLldpRemChassisID = ".1.0.8802.1.1.2.1.4.1.1.5"
	OIDLldpRemPortID    = ".1.0.8802.1.1.2.1.4.1.1.7"
	OIDLldpRemSysName   = ".1.0.8802.1.1.2.1.4.1.1.9"
)

// CISCO-CDP-MIB cache columns, indexed by ifIndex.deviceIndex.
const (
	OIDCdpCacheDeviceID   = ".1.3.6.1.4.1.9.9.23.1.2.1.1.6"
	OIDCdpCacheDevicePort = ".1.3.6.1.4.1.9.9.23.1.2.1.1.7"
)

// IF-MIB columns, indexed by ifIndex.
const (
	OIDIfDescr       = ".1.3.6.1.2.1.2.2.1.2"
	OIDIfHCInOctets  = ".1.3.6.1.2.1.31.1.1.1.6"
	OIDIfHCOutOctets = ".1.3.6.1.2.1.31.1.1.1.10"
	OIDIfHighSpeed   = ".1.3.6.1.2.1.31.1.1.1.15"
)

// metricOIDs describes where a vendor exposes CPU and memory. Scalars end
// in ".0" and are fetched with Get. Table columns are walked: CPU is the
// mean of all rows, memory uses the first row.
type metricOIDs struct {
	CPU string

	// Memory is a direct percentage.
	Memory string

	// MemoryUsed with MemoryFree gives used/(used+free); with MemorySize
	// it gives used/size.
	MemoryUsed string
	MemoryFree string
	MemorySize string
}

var vendorMetricOIDs = map[string]metricOIDs{
	VendorCiscoIOS: {
		CPU:        ".1.3.6.1.4.1.9.9.109.1.1.1.1.8",
		MemoryUsed: ".1.3.6.1.4.1.9.9.48.1.1.1.5",
		MemoryFree: ".1.3.6.1.4.1.9.9.48.1.1.1.6",
	},
	VendorCiscoNXOS: {
		CPU:        ".1.3.6.1.4.1.9.9.109.1.1.1.1.8",
		MemoryUsed: ".1.3.6.1.4.1.9.9.48.1.1.1.5",
		MemoryFree: ".1.3.6.1.4.1.9.9.48.1.1.1.6",
	},
	VendorFortinet: {
		CPU:    ".1.3.6.1.4.1.12356.101.4.1.3.0",
		Memory: ".1.3.6.1.4.1.12356.101.4.1.4.0",
	},
	VendorPaloAlto: {
		CPU:        ".1.3.6.1.2.1.25.3.3.1.2",
		MemoryUsed: ".1.3.6.1.2.1.25.2.3.1.6",
		MemorySize: ".1.3.6.1.2.1.25.2.3.1.5",
	},
	VendorHPAruba: {
		CPU:    ".1.3.6.1.4.1.11.2.14.11.5.1.9.6.1.0",
		Memory: ".1.3.6.1.4.1.11.2.14.11.5.1.1.2.1.1.1.5",
	},
	VendorRuckus: {
		CPU:    ".1.3.6.1.4.1.25053.1.2.2.1.1.1.15.1.0",
		Memory: ".1.3.6.1.4.1.25053.1.2.2.1.1.1.15.2.0",
	},
}
