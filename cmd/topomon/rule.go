package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/topomon/internal/inventory"
	"github.com/user/topomon/internal/model"
	"github.com/user/topomon/internal/storage"
)

var ruleCmd = &cobra.Command{
	Use:   "rule",
	Short: "Manage topology exclude rules",
	Long: `Exclude rules hide links from the topology. Hostname and port rules take
a glob pattern; pair rules hide every link between two devices.`,
}

var ruleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List exclude rules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withInventory(func(m *inventory.Manager, _ *storage.DB) error {
			rules, err := m.Rules()
			if err != nil {
				return err
			}
			if len(rules) == 0 {
				fmt.Println("No exclude rules defined")
				return nil
			}
			fmt.Printf("%-5s %-17s %s\n", "ID", "TYPE", "MATCH")
			for _, r := range rules {
				match := r.Pattern
				if r.Type == model.RuleDevicePair {
					match = formatID(r.DeviceAID) + " <-> " + formatID(r.DeviceBID)
				}
				fmt.Printf("%-5d %-17s %s\n", r.ID, r.Type, match)
			}
			return nil
		})
	},
}

var ruleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create an exclude rule",
}

var ruleAddHostnameCmd = &cobra.Command{
	Use:     "hostname <pattern>",
	Short:   "Hide links touching devices whose hostname matches",
	Example: "  topomon rule add hostname 'ap-*'",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return createRule(inventory.RuleInput{Type: model.RuleHostnamePattern, Pattern: args[0]})
	},
}

var ruleAddPortCmd = &cobra.Command{
	Use:     "port <pattern>",
	Short:   "Hide links on ports whose name matches",
	Example: "  topomon rule add port 'mgmt*'",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return createRule(inventory.RuleInput{Type: model.RulePortPattern, Pattern: args[0]})
	},
}

var ruleAddPairCmd = &cobra.Command{
	Use:     "pair <device-id> <device-id>",
	Short:   "Hide links between two devices",
	Example: "  topomon rule add pair 3 7",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		return createRule(inventory.RuleInput{Type: model.RuleDevicePair, DeviceAID: &ids[0], DeviceBID: &ids[1]})
	},
}

var ruleRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete an exclude rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withInventory(func(m *inventory.Manager, _ *storage.DB) error {
			if err := m.DeleteRule(id); err != nil {
				return err
			}
			fmt.Printf("Deleted exclude rule %d\n", id)
			return nil
		})
	},
}

func init() {
	ruleAddCmd.AddCommand(ruleAddHostnameCmd, ruleAddPortCmd, ruleAddPairCmd)
	ruleCmd.AddCommand(ruleListCmd, ruleAddCmd, ruleRemoveCmd)
}

func createRule(in inventory.RuleInput) error {
	return withInventory(func(m *inventory.Manager, _ *storage.DB) error {
		r, err := m.CreateRule(in)
		if err != nil {
			return err
		}
		fmt.Printf("Created %s rule with id %d\n", r.Type, r.ID)
		return nil
	})
}
