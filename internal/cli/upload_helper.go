package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/devxfer/devxfer/internal/pathutil"
	"github.com/devxfer/devxfer/internal/transfer"
)

// newPushCmd creates the 'push' command.
func newPushCmd() *cobra.Command {
	var remoteDir string
	var tf transferFlags

	cmd := &cobra.Command{
		Use:   "push LOCAL... --to REMOTE_DIR",
		Short: "Copy local files and directories to the device",
		Long: `Copy local files and directory trees to a directory on the device.

Each LOCAL path is copied below --to under its own name. Hidden files are
copied too unless exclude_hidden is set in the configuration.`,
		Example: `  devxfer push ~/music/album --to /sdcard/Music
  devxfer push notes.txt photos --to /sdcard/Download --report push.yaml
  devxfer push --retry-report push.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if tf.retryReport == "" {
				if len(args) == 0 {
					return errors.New("at least one local path is required")
				}
				if remoteDir == "" {
					return errors.New("--to is required")
				}
			}
			return executePush(cmd, args, remoteDir, tf)
		},
	}

	cmd.Flags().StringVarP(&remoteDir, "to", "t", "", "Destination directory on the device")
	addTransferFlags(cmd, &tf)
	return cmd
}

// executePush runs one upload, or the retry of an earlier report.
func executePush(cmd *cobra.Command, localPaths []string, remoteDir string, tf transferFlags) error {
	ctx := GetContext()
	c := GetConfig()
	serial := c.Device.Serial

	var previous *Report
	if tf.retryReport != "" {
		rep, err := readReport(tf.retryReport, transfer.DirectionUpload)
		if errors.Is(err, errNoFailedTasks) {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to retry.")
			return nil
		}
		if err != nil {
			return err
		}
		previous = rep
		if remoteDir == "" {
			remoteDir = rep.Remote
		}
		if serial == "" {
			serial = rep.Device
		}
	}

	s := newUISession(cmd, tf.events)
	defer s.close()

	u := transfer.NewUploader(newProvider(c, s.logger), nil, engineOptions(c, s.sink, s.logger))
	defer setActive(u)()

	var result *transfer.Result
	var err error
	if previous != nil {
		result, err = u.RetryFailed(ctx, remoteDir, previous.Result.FailedTasks, serial)
	} else {
		var sources []string
		sources, err = localSources(localPaths)
		if err != nil {
			return err
		}
		result, err = u.UploadTo(ctx, remoteDir, sources, serial)
	}

	return s.finish(result, err, &Report{Device: serial, Remote: remoteDir}, tf.report)
}

// localSources resolves the command-line paths and checks that each one
// exists, the way remoteSelections does for pulls.
func localSources(paths []string) ([]string, error) {
	sources, err := pathutil.ResolveAll(paths)
	if err != nil {
		return nil, err
	}
	for _, p := range sources {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
	}
	return sources, nil
}
