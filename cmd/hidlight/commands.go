package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/hidlight/internal/config"
	"github.com/dokzlo13/hidlight/internal/corsair"
	"github.com/dokzlo13/hidlight/internal/hid"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List HID devices and mark the supported controllers",
	RunE: func(cmd *cobra.Command, args []string) error {
		infos, err := hid.Enumerate()
		if err != nil {
			return err
		}
		all, _ := cmd.Flags().GetBool("all")

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PATH\tID\tMODEL\tNAME")
		found := 0
		for _, info := range infos {
			model := "-"
			if p, ok := corsair.Lookup(info); ok {
				model = p.Model
				found++
			} else if !all {
				continue
			}
			fmt.Fprintf(w, "%s\t%04x:%04x\t%s\t%s\n", info.Path, info.VendorID, info.ProductID, model, info.Name)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if found == 0 {
			return corsair.ErrNoDevices
		}
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and print the loaded profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		printSummary(cmd, cfg)
		return nil
	},
}

func init() {
	devicesCmd.Flags().BoolP("all", "a", false, "Also list unsupported HID devices")
}

func printSummary(cmd *cobra.Command, cfg *config.Config) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: ok\n", cfg.Path)
	for _, p := range cfg.Profiles.ColorProfiles {
		kind := "color"
		if p.Transient {
			kind = "overlay"
		}
		fmt.Fprintf(out, "  %-7s %-20s strips=%d triggers=%d animated=%t\n", kind, p.Name, len(p.Strips), len(p.Triggers), p.IsAnimated())
	}
	for _, p := range cfg.Profiles.FanProfiles {
		fmt.Fprintf(out, "  %-7s %-20s fans=%d triggers=%d\n", "fan", p.Name, len(p.Fans), len(p.Triggers))
	}
}
