package cli

import (
	"context"
	"fmt"

	"github.com/devxfer/devxfer/internal/config"
	"github.com/devxfer/devxfer/internal/device"
	"github.com/devxfer/devxfer/internal/diskspace"
	"github.com/devxfer/devxfer/internal/logging"
	"github.com/devxfer/devxfer/internal/transfer"
)

// newProvider picks the device transport: a mounted directory when one is
// configured, adb otherwise.
func newProvider(c *config.Config, logger *logging.Logger) device.Provider {
	if c.Device.MountRoot != "" {
		return device.NewMountProvider(nil, c.Device.MountRoot)
	}
	return device.NewAdbProvider(c.Device.AdbPath, logger)
}

// engineOptions maps the configuration onto transfer options.
func engineOptions(c *config.Config, sink transfer.Sink, logger *logging.Logger) transfer.Options {
	opts := transfer.Options{
		Sink:           sink,
		Retries:        c.Transfer.Retries,
		RetryBaseDelay: c.Transfer.RetryBaseDelay,
		Concurrency:    c.Transfer.Concurrency,
		ExcludeHidden:  c.Transfer.ExcludeHidden,
		Logger:         logger,
	}
	if opts.RetryBaseDelay == 0 {
		// zero in the config file means "no wait"; the engine treats 0 as "default"
		opts.RetryBaseDelay = -1
	}
	if c.Transfer.CheckDiskSpace {
		opts.SpaceChecker = spaceChecker(logger)
	}
	return opts
}

// spaceChecker checks free space with diskspace and logs what it measured.
func spaceChecker(logger *logging.Logger) transfer.SpaceChecker {
	return func(dir string, requiredBytes int64) error {
		logger.Debug().
			Str("dir", dir).
			Int64("required", requiredBytes).
			Int64("available", diskspace.GetAvailableSpace(dir)).
			Msg("Checking disk space")
		return diskspace.CheckDirectory(dir, requiredBytes)
	}
}

// remoteSelections stats each remote path to learn whether it is a file or a directory.
func remoteSelections(ctx context.Context, provider device.Provider, serial string, paths []string) ([]transfer.Selection, error) {
	client, err := provider.Open(ctx, serial)
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %w", err)
	}

	selections := make([]transfer.Selection, 0, len(paths))
	for _, p := range paths {
		fi, err := client.Stat(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		kind := transfer.KindFile
		if fi.IsDir() {
			kind = transfer.KindDirectory
		}
		selections = append(selections, transfer.Selection{Path: p, Kind: kind})
	}
	return selections, nil
}
