package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/devxfer/devxfer/internal/progress"
	"github.com/devxfer/devxfer/internal/transfer"
)

// newPreviewCmd creates the 'preview' command.
func newPreviewCmd() *cobra.Command {
	var local, asYAML bool

	cmd := &cobra.Command{
		Use:   "preview PATH...",
		Short: "Show the tasks a transfer would run",
		Long: `Scan the given paths and print the task queue without copying anything.

PATH is a device path (what pull would copy), or a local path with --local
(what push would copy).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			c := GetConfig()
			log := GetLogger()
			provider := newProvider(c, log)
			opts := engineOptions(c, nil, log)

			var preview *transfer.Preview
			if local {
				sources, err := localSources(args)
				if err != nil {
					return err
				}
				preview, err = transfer.NewUploader(provider, nil, opts).PreviewTasks(ctx, c.Device.Serial, sources)
				if err != nil {
					return err
				}
			} else {
				selections, err := remoteSelections(ctx, provider, c.Device.Serial, args)
				if err != nil {
					return err
				}
				preview, err = transfer.NewDownloader(provider, nil, opts).PreviewTasks(ctx, c.Device.Serial, selections)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if asYAML {
				data, err := yaml.Marshal(preview)
				if err != nil {
					return fmt.Errorf("failed to encode preview: %w", err)
				}
				_, err = out.Write(data)
				return err
			}

			fmt.Fprintf(out, "%-10s %10s  %s\n", "KIND", "SIZE", "PATH")
			fmt.Fprintln(out, strings.Repeat("-", 60))
			for _, item := range preview.Tasks {
				size, rel := progress.FormatBytes(item.Size), item.RelativePath
				if item.IsDir() {
					size, rel = "-", rel+"/"
				}
				fmt.Fprintf(out, "%-10s %10s  %s\n", item.Kind, size, rel)
			}
			fmt.Fprintf(out, "\n%d files, %d directories, %s\n", preview.TotalFiles, preview.TotalDirectories, progress.FormatBytes(preview.TotalBytes))
			return nil
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "Preview an upload of local paths")
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print the preview as YAML")
	return cmd
}
