package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/devxfer/devxfer/internal/config"
	"github.com/devxfer/devxfer/internal/constants"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage devxfer configuration",
		Long: `Configuration management commands for devxfer.

Commands:
  init  - Interactive configuration setup
  show  - Display the effective configuration
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// configPath is the file config commands read and write.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force, defaults bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for devxfer.

The configuration is saved to ~/.config/devxfer/devxfer.conf, or to --config.
Use --defaults to write the built-in values without prompting and --force
to overwrite an existing file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path, err := configPath()
			if err != nil {
				return fmt.Errorf("failed to determine config path: %w", err)
			}

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			c := config.Default()
			if !defaults {
				if err := askConfig(newPrompter(cmd.InOrStdin(), out), c); err != nil {
					return err
				}
			}

			if err := config.Save(c, path); err != nil {
				return err
			}
			GetLogger().Info().Str("path", path).Msg("Configuration saved")
			fmt.Fprintf(out, "\nConfiguration saved to: %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&defaults, "defaults", false, "Write default values without prompting")
	return cmd
}

// askConfig fills c from the answers, keeping the current values as defaults.
func askConfig(p *prompter, c *config.Config) error {
	fmt.Fprintln(p.out, "devxfer Configuration Setup")
	fmt.Fprintln(p.out, "===========================")
	fmt.Fprintln(p.out)

	var err error
	if c.Transfer.Retries, err = p.Int("Attempts per file", c.Transfer.Retries, 1, constants.MaxRetries); err != nil {
		return err
	}
	if c.Transfer.Concurrency, err = p.Int("Files in parallel", c.Transfer.Concurrency, 1, constants.MaxConcurrency); err != nil {
		return err
	}
	if c.Transfer.ExcludeHidden, err = p.YesNo("Skip hidden files", c.Transfer.ExcludeHidden); err != nil {
		return err
	}
	if c.Transfer.CheckDiskSpace, err = p.YesNo("Check free disk space before downloads", c.Transfer.CheckDiskSpace); err != nil {
		return err
	}

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "Device Settings (press Enter for defaults)")
	fmt.Fprintln(p.out, "-------------------------------------------")
	if c.Device.AdbPath, err = p.String("adb executable", c.Device.AdbPath); err != nil {
		return err
	}
	if c.Device.Serial, err = p.String("Default device serial (empty for auto)", c.Device.Serial); err != nil {
		return err
	}
	if c.Device.MountRoot, err = p.String("Mounted device directory (empty to use adb)", c.Device.MountRoot); err != nil {
		return err
	}
	return c.Validate()
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Long: `Display the configuration after applying the config file, DEVXFER_*
environment variables and command-line flags.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			c := GetConfig()
			if c.Path != "" {
				fmt.Fprintf(out, "# Loaded from %s\n", c.Path)
			} else {
				fmt.Fprintln(out, "# No config file found, showing defaults")
			}
			_, err := c.WriteTo(out)
			return err
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
