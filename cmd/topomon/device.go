package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/topomon/internal/inventory"
	"github.com/user/topomon/internal/model"
	"github.com/user/topomon/internal/storage"
)

var (
	deviceAdd    inventory.DeviceInput
	deviceParent string
	deviceProf   string

	devicePatchHostname  string
	devicePatchIP        string
	devicePatchVendor    string
	devicePatchType      string
	devicePatchVersion   string
	devicePatchCommunity string
	devicePatchStatus    string
	devicePatchAuto      bool
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Manage devices",
}

var deviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withInventory(func(_ *inventory.Manager, db *storage.DB) error {
			devices, err := storage.NewDeviceStorage(db).List()
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Println("No devices registered")
				return nil
			}
			fmt.Printf("%-5s %-24s %-16s %-13s %-10s %-7s %s\n", "ID", "HOSTNAME", "ADDRESS", "TYPE", "STATUS", "PARENT", "PROFILE")
			for _, d := range devices {
				fmt.Printf("%-5d %-24s %-16s %-13s %-10s %-7s %s\n", d.ID, d.Hostname, d.IP, d.Type, d.Status,
					formatID(d.ParentID), formatID(d.AlertProfileID))
			}
			return nil
		})
	},
}

var deviceAddCmd = &cobra.Command{
	Use:   "add <hostname> <address>",
	Short: "Register a device",
	Long: `Register a device by hand. The address may carry an SNMP port.

Examples:
  topomon device add core1 10.0.0.1 --type core
  topomon device add lab-sw 10.0.9.2:1161 --community lab --parent 1`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := deviceAdd
		in.Hostname, in.IP = args[0], args[1]
		var err error
		if in.ParentID, err = optionalFlagID(cmd, "parent", deviceParent); err != nil {
			return err
		}
		if in.AlertProfileID, err = optionalFlagID(cmd, "profile", deviceProf); err != nil {
			return err
		}
		return withInventory(func(m *inventory.Manager, _ *storage.DB) error {
			d, err := m.RegisterDevice(in)
			if err != nil {
				return err
			}
			fmt.Printf("Registered device %s with id %d\n", d.Hostname, d.ID)
			return nil
		})
	},
}

var deviceUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change device fields",
	Long: `Change the fields given as flags.

Examples:
  topomon device update 3 --type distribution
  topomon device update 3 --status excluded`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		p := devicePatchFromFlags(cmd)
		return withInventory(func(m *inventory.Manager, _ *storage.DB) error {
			d, err := m.UpdateDevice(id, p)
			if err != nil {
				return err
			}
			fmt.Printf("Updated device %d (%s)\n", d.ID, d.Hostname)
			return nil
		})
	},
}

var deviceRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete a device with its links, alerts and memberships",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withInventory(func(m *inventory.Manager, _ *storage.DB) error {
			if err := m.DeleteDevice(id); err != nil {
				return err
			}
			fmt.Printf("Deleted device %d\n", id)
			return nil
		})
	},
}

var deviceSetParentCmd = &cobra.Command{
	Use:   "set-parent <id> <parent-id|none>",
	Short: "Place a device in the hierarchy",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		parent, err := parseOptionalID(args[1])
		if err != nil {
			return err
		}
		return withInventory(func(m *inventory.Manager, _ *storage.DB) error {
			if err := m.SetDeviceParent(id, parent); err != nil {
				return err
			}
			fmt.Printf("Parent of device %d set to %s\n", id, formatID(parent))
			return nil
		})
	},
}

var deviceSetProfileCmd = &cobra.Command{
	Use:   "set-profile <id> <profile-id|none>",
	Short: "Assign an alert profile to a device",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		profile, err := parseOptionalID(args[1])
		if err != nil {
			return err
		}
		return withInventory(func(m *inventory.Manager, _ *storage.DB) error {
			if err := m.SetDeviceProfile(id, profile); err != nil {
				return err
			}
			fmt.Printf("Alert profile of device %d set to %s\n", id, formatID(profile))
			return nil
		})
	},
}

func init() {
	f := deviceAddCmd.Flags()
	f.StringVar((*string)(&deviceAdd.Type), "type", "", "Device type (core, distribution, access, router, firewall, ap)")
	f.StringVar(&deviceAdd.Vendor, "vendor", "", "Vendor key (default: detected on first poll)")
	f.StringVar(&deviceAdd.SNMPVersion, "snmp-version", "", "SNMP version (default: snmp.version)")
	f.StringVar(&deviceAdd.Community, "community", "", "SNMP community (default: snmp.community)")
	f.StringVar(&deviceAdd.V3User, "v3-user", "", "SNMPv3 user")
	f.StringVar(&deviceAdd.V3Auth, "v3-auth", "", "SNMPv3 authentication key")
	f.StringVar(&deviceAdd.V3Priv, "v3-priv", "", "SNMPv3 privacy key")
	f.StringVar(&deviceParent, "parent", "", "Parent device id")
	f.StringVar(&deviceProf, "profile", "", "Alert profile id")
	f.BoolVar(&deviceAdd.AutoDiscover, "auto-discover", false, "Onboard this device's neighbors automatically")

	u := deviceUpdateCmd.Flags()
	u.StringVar(&devicePatchHostname, "hostname", "", "New hostname")
	u.StringVar(&devicePatchIP, "ip", "", "New address")
	u.StringVar(&devicePatchVendor, "vendor", "", "Vendor key")
	u.StringVar(&devicePatchType, "type", "", "Device type")
	u.StringVar(&devicePatchVersion, "snmp-version", "", "SNMP version")
	u.StringVar(&devicePatchCommunity, "community", "", "SNMP community")
	u.StringVar(&devicePatchStatus, "status", "", "Status (unknown, managed, unmanaged, offline, excluded)")
	u.BoolVar(&devicePatchAuto, "auto-discover", false, "Onboard this device's neighbors automatically")

	deviceCmd.AddCommand(deviceListCmd, deviceAddCmd, deviceUpdateCmd, deviceRemoveCmd,
		deviceSetParentCmd, deviceSetProfileCmd)
}

func optionalFlagID(cmd *cobra.Command, name, value string) (*int64, error) {
	if !cmd.Flags().Changed(name) {
		return nil, nil
	}
	return parseOptionalID(value)
}

func devicePatchFromFlags(cmd *cobra.Command) inventory.DevicePatch {
	var p inventory.DevicePatch
	changed := cmd.Flags().Changed
	if changed("hostname") {
		p.Hostname = &devicePatchHostname
	}
	if changed("ip") {
		p.IP = &devicePatchIP
	}
	if changed("vendor") {
		p.Vendor = &devicePatchVendor
	}
	if changed("type") {
		t := model.DeviceType(devicePatchType)
		p.Type = &t
	}
	if changed("snmp-version") {
		p.SNMPVersion = &devicePatchVersion
	}
	if changed("community") {
		p.Community = &devicePatchCommunity
	}
	if changed("status") {
		s := model.DeviceStatus(devicePatchStatus)
		p.Status = &s
	}
	if changed("auto-discover") {
		p.AutoDiscover = &devicePatchAuto
	}
	return p
}
