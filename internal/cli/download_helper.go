package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devxfer/devxfer/internal/pathutil"
	"github.com/devxfer/devxfer/internal/transfer"
)

// newPullCmd creates the 'pull' command.
func newPullCmd() *cobra.Command {
	var dest string
	var tf transferFlags

	cmd := &cobra.Command{
		Use:   "pull REMOTE... [--to DIR]",
		Short: "Copy files and directories from the device",
		Long: `Copy files and directory trees from the device into a local directory.

Each REMOTE path is copied below --to under its own name, so
"pull /sdcard/DCIM --to ~/phone" creates ~/phone/DCIM/...

Failed files are retried with exponential backoff. Use --report to save the
result and --retry-report to run only the failed files again.`,
		Example: `  devxfer pull /sdcard/DCIM /sdcard/Download/notes.txt --to ~/phone
  devxfer pull /sdcard/DCIM --to ~/phone --report pull.yaml
  devxfer pull --retry-report pull.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && tf.retryReport == "" {
				return errors.New("at least one remote path is required")
			}
			return executePull(cmd, args, dest, tf)
		},
	}

	cmd.Flags().StringVarP(&dest, "to", "t", ".", "Local destination directory")
	addTransferFlags(cmd, &tf)
	return cmd
}

// executePull runs one download, or the retry of an earlier report.
func executePull(cmd *cobra.Command, remotePaths []string, dest string, tf transferFlags) error {
	ctx := GetContext()
	c := GetConfig()
	serial := c.Device.Serial

	var previous *Report
	if tf.retryReport != "" {
		rep, err := readReport(tf.retryReport, transfer.DirectionDownload)
		if errors.Is(err, errNoFailedTasks) {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to retry.")
			return nil
		}
		if err != nil {
			return err
		}
		previous = rep
		if !cmd.Flags().Changed("to") && rep.Local != "" {
			dest = rep.Local
		}
		if serial == "" {
			serial = rep.Device
		}
	}

	localBase, err := pathutil.ResolveAbsolutePath(dest)
	if err != nil {
		return fmt.Errorf("invalid destination %s: %w", dest, err)
	}

	s := newUISession(cmd, tf.events)
	defer s.close()

	provider := newProvider(c, s.logger)
	d := transfer.NewDownloader(provider, nil, engineOptions(c, s.sink, s.logger))
	defer setActive(d)()

	var result *transfer.Result
	if previous != nil {
		result, err = d.RetryFailed(ctx, serial, previous.Result.FailedTasks, localBase)
	} else {
		var selections []transfer.Selection
		selections, err = remoteSelections(ctx, provider, serial, remotePaths)
		if err != nil {
			return err
		}
		result, err = d.DownloadTo(ctx, serial, selections, localBase)
	}

	return s.finish(result, err, &Report{Device: serial, Local: localBase}, tf.report)
}
