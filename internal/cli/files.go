package cli

import (
	"fmt"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/devxfer/devxfer/internal/progress"
)

// newDevicesCmd creates the 'devices' command.
func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List attached devices",
		Long: `List the devices the configured transport can see.

Only devices in the "device" state accept transfers. Pass the serial with
--device when more than one is attached.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := newProvider(GetConfig(), GetLogger())
			devices, err := provider.Devices(GetContext())
			if err != nil {
				return fmt.Errorf("failed to list devices: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(devices) == 0 {
				fmt.Fprintln(out, "No devices attached.")
				return nil
			}

			fmt.Fprintf(out, "%-30s %-14s %-20s %s\n", "SERIAL", "STATE", "MODEL", "TRANSPORT")
			fmt.Fprintln(out, strings.Repeat("-", 75))
			for _, d := range devices {
				fmt.Fprintf(out, "%-30s %-14s %-20s %s\n", d.Serial, d.State, d.Model, d.Transport)
			}
			return nil
		},
	}
}

// newLsCmd creates the 'ls' command.
func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls REMOTE_DIR",
		Short: "List a directory on the device",
		Example: `  devxfer ls /sdcard/DCIM
  devxfer ls --device emulator-5554 /sdcard/Download`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			c := GetConfig()
			client, err := newProvider(c, GetLogger()).Open(ctx, c.Device.Serial)
			if err != nil {
				return fmt.Errorf("failed to open device: %w", err)
			}

			dir := path.Clean(args[0])
			entries, err := client.ReadDir(ctx, dir)
			if err != nil {
				return fmt.Errorf("failed to list %s: %w", dir, err)
			}

			out := cmd.OutOrStdout()
			for _, e := range entries {
				name := e.Name
				size := progress.FormatBytes(e.Size)
				if e.IsDir() {
					name += "/"
					size = "-"
				}
				fmt.Fprintf(out, "%-11s %10s  %s  %s\n", e.Mode.String(), size, e.ModTime.Format("2006-01-02 15:04"), name)
			}
			fmt.Fprintf(out, "%d entries\n", len(entries))
			return nil
		},
	}
}
