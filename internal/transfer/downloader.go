package transfer

import (
	"context"
	"fmt"

	"github.com/devxfer/devxfer/internal/device"
	"github.com/devxfer/devxfer/internal/localfs"
)

// Downloader copies files and directory trees from a device into a local
// directory, preserving the structure below each selection.
type Downloader struct {
	engine
}

// NewDownloader creates a downloader. A nil local selects the host file system.
func NewDownloader(provider device.Provider, local *localfs.FS, opts Options) *Downloader {
	return &Downloader{engine: newEngine(DirectionDownload, provider, local, opts)}
}

// DownloadTo copies the selected device paths below localBase.
//
// Per-file failures are retried, then recorded in the result; they never
// produce an error. An error is returned only when the run could not start:
// the device cannot be opened, localBase cannot be created, a selection is
// malformed, or the pre-flight space check fails. The returned Result is
// non-nil in every case except ErrBusy.
func (d *Downloader) DownloadTo(ctx context.Context, deviceID string, items []Selection, localBase string) (*Result, error) {
	r, err := d.begin(true)
	if err != nil {
		return nil, err
	}
	r.logger.Info().
		Str("device", deviceID).
		Str("dest", localBase).
		Int("selections", len(items)).
		Msg("Starting download")

	client, t, err := d.prepare(ctx, r, deviceID, localBase)
	if err != nil {
		return r.fail(ctx, err)
	}

	d.setPhase(PhaseScanning)
	q, err := r.newQueueBuilder(RemoteTree{Client: client}).Build(ctx, items)
	if err != nil {
		return r.fail(ctx, err)
	}

	if err := d.checkSpace(ctx, r, localBase, q); err != nil {
		return r.fail(ctx, err)
	}
	return r.transfer(ctx, t, q), nil
}

// RetryFailed downloads the failed tasks of an earlier result again into
// localBase. Ancestor directories of each task are recreated first.
func (d *Downloader) RetryFailed(ctx context.Context, deviceID string, failed []FailedTask, localBase string) (*Result, error) {
	r, err := d.begin(true)
	if err != nil {
		return nil, err
	}
	r.logger.Info().
		Str("device", deviceID).
		Str("dest", localBase).
		Int("tasks", len(failed)).
		Msg("Retrying failed downloads")

	client, t, err := d.prepare(ctx, r, deviceID, localBase)
	if err != nil {
		return r.fail(ctx, err)
	}

	q := QueueFromFailed(RemoteTree{Client: client}, failed, d.opts.Sink)
	if err := d.checkSpace(ctx, r, localBase, q); err != nil {
		return r.fail(ctx, err)
	}
	return r.transfer(ctx, t, q), nil
}

// PreviewTasks scans the selections without copying anything. The preview
// lists exactly the tasks DownloadTo would run for the same device state.
func (d *Downloader) PreviewTasks(ctx context.Context, deviceID string, items []Selection) (*Preview, error) {
	r, err := d.begin(false)
	if err != nil {
		return nil, err
	}

	client, err := d.provider.Open(ctx, deviceID)
	if err != nil {
		return r.previewFailed(fmt.Errorf("failed to open device: %w", err))
	}

	d.setPhase(PhaseScanning)
	q, err := r.newQueueBuilder(RemoteTree{Client: client}).Build(ctx, items)
	if err != nil {
		return r.previewFailed(err)
	}
	return r.preview(ctx, q), nil
}

func (d *Downloader) prepare(ctx context.Context, r *run, deviceID, localBase string) (device.Client, Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	client, err := d.provider.Open(ctx, deviceID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open device: %w", err)
	}
	t := newDownloadTransport(client, d.local, localBase, r.logger)
	if err := t.EnsureRoot(ctx); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrDestination, err)
	}
	return client, t, nil
}

func (d *Downloader) checkSpace(ctx context.Context, r *run, localBase string, q Queue) error {
	if d.opts.SpaceChecker == nil || q.TotalBytes == 0 || r.canceller.Stopped(ctx) {
		return nil
	}
	if err := d.opts.SpaceChecker(localBase, q.TotalBytes); err != nil {
		return err
	}
	r.logger.Debug().Int64("bytes", q.TotalBytes).Msg("Disk space check passed")
	return nil
}
