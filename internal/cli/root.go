// Package cli provides the command-line interface for devxfer.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/devxfer/devxfer/internal/config"
	"github.com/devxfer/devxfer/internal/logging"
	"github.com/devxfer/devxfer/internal/version"
)

var (
	// Global flags
	cfgFile     string
	deviceID    string
	mountRoot   string
	retries     int
	concurrency int
	verbose     bool
	debug       bool

	// Effective configuration, loaded before every command
	cfg *config.Config

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc

	// Engine of the transfer in progress, cancelled on the first signal
	activeMu sync.Mutex
	active   canceller
)

type canceller interface {
	Cancel()
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "devxfer",
		Short: "devxfer - bulk file transfer between a device and this computer",
		Long: `devxfer ` + version.Version + ` - Built: ` + version.BuildTime + `
Copies files and whole directory trees between an attached device and the
local file system, with per-file retries, progress and cancellation.

Devices are reached through adb, or through a mounted directory (--mount).

Settings are read from ~/.config/devxfer/devxfer.conf, then DEVXFER_*
environment variables, then flags.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger = logging.NewLogger(logging.ModeConsole, cmd.ErrOrStderr())

			loaded, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg = loaded

			level := logging.ParseLevel(cfg.Logging.Level)
			if verbose || debug {
				level = zerolog.DebugLevel
			}
			logging.SetGlobalLevel(level)

			if cfg.Path != "" {
				logger.Debug().Str("path", cfg.Path).Msg("configuration loaded")
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	flags.StringVarP(&deviceID, "device", "s", "", "Device serial (required when several devices are attached)")
	flags.StringVar(&mountRoot, "mount", "", "Use this directory as the device instead of adb")
	flags.IntVar(&retries, "retries", 0, "Attempts per file, including the first (1-10)")
	flags.IntVar(&concurrency, "concurrency", 0, "Files transferred at once (1-8)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	flags.BoolVar(&debug, "debug", false, "Enable debug output (same as --verbose)")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	completionCmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for devxfer.

QUICK TEST (temporary, current session only):
  source <(devxfer completion bash)`,
	}
	rootCmd.AddCommand(completionCmd)

	completionCmd.AddCommand(&cobra.Command{
		Use:   "bash",
		Short: "Generate bash completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenBashCompletion(cmd.OutOrStdout())
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:   "zsh",
		Short: "Generate zsh completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenZshCompletion(cmd.OutOrStdout())
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:   "fish",
		Short: "Generate fish completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:   "powershell",
		Short: "Generate PowerShell completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenPowerShellCompletion(cmd.OutOrStdout())
		},
	})

	// Disable default completion command (we're adding our own above)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

// loadConfig layers the config file, the environment and the global flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	loader := config.NewLoader(cfgFile)
	bindings := map[string]string{
		config.KeySerial:      "device",
		config.KeyMountRoot:   "mount",
		config.KeyRetries:     "retries",
		config.KeyConcurrency: "concurrency",
	}
	for key, name := range bindings {
		flag := cmd.Flags().Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := loader.BindFlag(key, flag); err != nil {
			return nil, err
		}
	}
	return loader.Load()
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go handleSignals(sigChan, os.Stderr)

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	signal.Stop(sigChan)
	close(sigChan)

	return err
}

// handleSignals asks the running engine to stop on the first signal and
// cancels the root context on the next one.
func handleSignals(sigChan <-chan os.Signal, w io.Writer) {
	count := 0
	for sig := range sigChan {
		count++
		if count == 1 && cancelActive() {
			fmt.Fprintf(w, "\nReceived %v, stopping after the current files. Press Ctrl+C again to abort.\n", sig)
			continue
		}
		fmt.Fprintf(w, "\nReceived %v, aborting...\n", sig)
		cancelFunc()
	}
}

// setActive registers the engine the next signal cancels. The returned
// function unregisters it.
func setActive(c canceller) func() {
	activeMu.Lock()
	active = c
	activeMu.Unlock()
	return func() {
		activeMu.Lock()
		active = nil
		activeMu.Unlock()
	}
}

func cancelActive() bool {
	activeMu.Lock()
	c := active
	activeMu.Unlock()
	if c == nil {
		return false
	}
	c.Cancel()
	return true
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newDevicesCmd())
	rootCmd.AddCommand(newLsCmd())
	rootCmd.AddCommand(newPullCmd())
	rootCmd.AddCommand(newPushCmd())
	rootCmd.AddCommand(newPreviewCmd())
	rootCmd.AddCommand(newConfigCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// GetContext returns the global CLI context with signal handling.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}

// GetConfig returns the effective configuration, defaults before a command runs.
func GetConfig() *config.Config {
	if cfg == nil {
		return config.Default()
	}
	return cfg
}
