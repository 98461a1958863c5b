package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/topomon/internal/inventory"
	"github.com/user/topomon/internal/storage"
)

var (
	groupDescription string
	groupParent      string
)

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage device groups",
}

var groupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List groups",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withInventory(func(_ *inventory.Manager, db *storage.DB) error {
			groups := storage.NewGroupStorage(db)
			list, err := groups.List()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No groups defined")
				return nil
			}
			members, err := groups.Memberships()
			if err != nil {
				return err
			}
			fmt.Printf("%-5s %-24s %-7s %-8s %s\n", "ID", "NAME", "PARENT", "DEVICES", "DESCRIPTION")
			for _, g := range list {
				fmt.Printf("%-5d %-24s %-7s %-8d %s\n", g.ID, g.Name, formatID(g.ParentID), len(members[g.ID]), g.Description)
			}
			return nil
		})
	},
}

var groupAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a group",
	Long: `Create a device group, optionally nested in another one.

Examples:
  topomon group add site-a --description "Head office"
  topomon group add floor-1 --parent 1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, err := optionalFlagID(cmd, "parent", groupParent)
		if err != nil {
			return err
		}
		return withInventory(func(m *inventory.Manager, _ *storage.DB) error {
			g, err := m.CreateGroup(inventory.GroupInput{Name: args[0], Description: groupDescription, ParentID: parent})
			if err != nil {
				return err
			}
			fmt.Printf("Created group %s with id %d\n", g.Name, g.ID)
			return nil
		})
	},
}

var groupRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete a group; member devices are kept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withInventory(func(m *inventory.Manager, _ *storage.DB) error {
			if err := m.DeleteGroup(id); err != nil {
				return err
			}
			fmt.Printf("Deleted group %d\n", id)
			return nil
		})
	},
}

var groupSetParentCmd = &cobra.Command{
	Use:   "set-parent <id> <parent-id|none>",
	Short: "Nest a group in another one",
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
			if err := m.SetGroupParent(id, parent); err != nil {
				return err
			}
			fmt.Printf("Parent of group %d set to %s\n", id, formatID(parent))
			return nil
		})
	},
}

var groupMembersCmd = &cobra.Command{
	Use:   "members <id>",
	Short: "List the devices of a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withInventory(func(m *inventory.Manager, _ *storage.DB) error {
			devices, err := m.GroupDevices(id)
			if err != nil {
				return err
			}
			for _, d := range devices {
				fmt.Printf("%-5d %-24s %s\n", d.ID, d.Hostname, d.IP)
			}
			fmt.Printf("%d devices\n", len(devices))
			return nil
		})
	},
}

var groupAssignCmd = &cobra.Command{
	Use:   "assign <id> <device-id>...",
	Short: "Add devices to a group",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeMembers(args, true)
	},
}

var groupUnassignCmd = &cobra.Command{
	Use:   "unassign <id> <device-id>...",
	Short: "Remove devices from a group",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeMembers(args, false)
	},
}

func init() {
	groupAddCmd.Flags().StringVar(&groupDescription, "description", "", "Group description")
	groupAddCmd.Flags().StringVar(&groupParent, "parent", "", "Parent group id")

	groupCmd.AddCommand(groupListCmd, groupAddCmd, groupRemoveCmd, groupSetParentCmd,
		groupMembersCmd, groupAssignCmd, groupUnassignCmd)
}

func changeMembers(args []string, add bool) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	devices, err := parseIDs(args[1:])
	if err != nil {
		return err
	}
	return withInventory(func(m *inventory.Manager, _ *storage.DB) error {
		if add {
			n, err := m.AddMembers(id, devices)
			if err != nil {
				return err
			}
			fmt.Printf("Added %d devices to group %d\n", n, id)
			return nil
		}
		n, err := m.RemoveMembers(id, devices)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d devices from group %d\n", n, id)
		return nil
	})
}
