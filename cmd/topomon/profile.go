package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/topomon/internal/inventory"
	"github.com/user/topomon/internal/model"
	"github.com/user/topomon/internal/storage"
)

var (
	profileName        string
	profileDescription string
	profileDefault     bool
	profileCPU         string
	profileMemory      string
	profileLink        string
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage alert threshold profiles",
	Long: `Alert profiles override the built-in thresholds per metric. Thresholds
are given as warning,critical[,recovery_buffer] in percent; metrics left
out use the built-in values.`,
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withInventory(func(m *inventory.Manager, _ *storage.DB) error {
			profiles, err := m.Profiles()
			if err != nil {
				return err
			}
			if len(profiles) == 0 {
				fmt.Println("No profiles defined; devices use the built-in thresholds")
				return nil
			}
			for _, p := range profiles {
				printProfile(&p)
			}
			return nil
		})
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withInventory(func(m *inventory.Manager, _ *storage.DB) error {
			p, err := m.Profile(id)
			if err != nil {
				return err
			}
			printProfile(p)
			return nil
		})
	},
}

var profileAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a profile",
	Long: `Create an alert profile.

Examples:
  topomon profile add strict --cpu 60,80 --link 50,75,5
  topomon profile add lab --memory 90,98 --description "Lab gear"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		th, err := thresholdsFromFlags(cmd)
		if err != nil {
			return err
		}
		in := inventory.ProfileInput{Name: args[0], Description: profileDescription, Thresholds: th, IsDefault: profileDefault}
		return withInventory(func(m *inventory.Manager, _ *storage.DB) error {
			p, err := m.CreateProfile(in)
			if err != nil {
				return err
			}
			fmt.Printf("Created profile %s with id %d\n", p.Name, p.ID)
			return nil
		})
	},
}

var profileUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change a profile",
	Long: `Change the fields given as flags. Any threshold flag replaces the whole
threshold set.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		var patch inventory.ProfilePatch
		changed := cmd.Flags().Changed
		if changed("name") {
			patch.Name = &profileName
		}
		if changed("description") {
			patch.Description = &profileDescription
		}
		if changed("default") {
			patch.IsDefault = &profileDefault
		}
		if changed("cpu") || changed("memory") || changed("link") {
			th, err := thresholdsFromFlags(cmd)
			if err != nil {
				return err
			}
			patch.Thresholds = &th
		}
		return withInventory(func(m *inventory.Manager, _ *storage.DB) error {
			p, err := m.UpdateProfile(id, patch)
			if err != nil {
				return err
			}
			printProfile(p)
			return nil
		})
	},
}

var profileRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete a profile; its devices fall back to the built-in thresholds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withInventory(func(m *inventory.Manager, _ *storage.DB) error {
			if err := m.DeleteProfile(id); err != nil {
				return err
			}
			fmt.Printf("Deleted profile %d\n", id)
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{profileAddCmd, profileUpdateCmd} {
		c.Flags().StringVar(&profileDescription, "description", "", "Profile description")
		c.Flags().BoolVar(&profileDefault, "default", false, "Mark as the default profile")
		c.Flags().StringVar(&profileCPU, "cpu", "", "CPU thresholds warning,critical[,buffer]")
		c.Flags().StringVar(&profileMemory, "memory", "", "Memory thresholds warning,critical[,buffer]")
		c.Flags().StringVar(&profileLink, "link", "", "Link utilization thresholds warning,critical[,buffer]")
	}
	profileUpdateCmd.Flags().StringVar(&profileName, "name", "", "New profile name")

	profileCmd.AddCommand(profileListCmd, profileShowCmd, profileAddCmd, profileUpdateCmd, profileRemoveCmd)
}

func thresholdsFromFlags(cmd *cobra.Command) (model.Thresholds, error) {
	var th model.Thresholds
	for _, f := range []struct {
		flag, metric, value string
		dst                 **model.Threshold
	}{
		{"cpu", model.MetricCPU, profileCPU, &th.CPU},
		{"memory", model.MetricMemory, profileMemory, &th.Memory},
		{"link", model.MetricLinkUtilization, profileLink, &th.LinkUtilization},
	} {
		if !cmd.Flags().Changed(f.flag) {
			continue
		}
		t, err := parseThreshold(f.metric, f.value)
		if err != nil {
			return th, err
		}
		*f.dst = t
	}
	return th, nil
}

func printProfile(p *model.AlertProfile) {
	def := ""
	if p.IsDefault {
		def = " (default)"
	}
	fmt.Printf("%d  %s%s\n", p.ID, p.Name, def)
	if p.Description != "" {
		fmt.Printf("    %s\n", p.Description)
	}
	fmt.Printf("    cpu:    %s\n", formatThreshold(p.Thresholds.CPU))
	fmt.Printf("    memory: %s\n", formatThreshold(p.Thresholds.Memory))
	fmt.Printf("    link:   %s\n", formatThreshold(p.Thresholds.LinkUtilization))
}
