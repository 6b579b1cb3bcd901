package transfer

import (
	"context"
	"fmt"
	"path"

	"github.com/devxfer/devxfer/internal/device"
	"github.com/devxfer/devxfer/internal/localfs"
)

// Uploader copies local files and directory trees into a directory on a device.
type Uploader struct {
	engine
}

// NewUploader creates an uploader. A nil local selects the host file system.
func NewUploader(provider device.Provider, local *localfs.FS, opts Options) *Uploader {
	return &Uploader{engine: newEngine(DirectionUpload, provider, local, opts)}
}

// UploadTo copies localPaths below remoteDir on the device. Each path may be
// a file or a directory. Error semantics match DownloadTo: a local path that
// cannot be read is reported through the sink and skipped.
func (u *Uploader) UploadTo(ctx context.Context, remoteDir string, localPaths []string, deviceID string) (*Result, error) {
	r, err := u.begin(true)
	if err != nil {
		return nil, err
	}
	remoteDir = path.Clean(remoteDir)
	r.logger.Info().
		Str("device", deviceID).
		Str("dest", remoteDir).
		Int("selections", len(localPaths)).
		Msg("Starting upload")

	t, err := u.prepare(ctx, deviceID, remoteDir)
	if err != nil {
		return r.fail(ctx, err)
	}

	u.setPhase(PhaseScanning)
	q, err := r.newQueueBuilder(LocalTree{FS: u.local}).Build(ctx, u.selections(r, localPaths))
	if err != nil {
		return r.fail(ctx, err)
	}
	return r.transfer(ctx, t, q), nil
}

// RetryFailed uploads the failed tasks of an earlier result again.
func (u *Uploader) RetryFailed(ctx context.Context, remoteDir string, failed []FailedTask, deviceID string) (*Result, error) {
	r, err := u.begin(true)
	if err != nil {
		return nil, err
	}
	remoteDir = path.Clean(remoteDir)
	r.logger.Info().
		Str("device", deviceID).
		Str("dest", remoteDir).
		Int("tasks", len(failed)).
		Msg("Retrying failed uploads")

	t, err := u.prepare(ctx, deviceID, remoteDir)
	if err != nil {
		return r.fail(ctx, err)
	}
	q := QueueFromFailed(LocalTree{FS: u.local}, failed, u.opts.Sink)
	return r.transfer(ctx, t, q), nil
}

// PreviewTasks scans the local selections without contacting the device
// beyond checking that it can be opened.
func (u *Uploader) PreviewTasks(ctx context.Context, deviceID string, localPaths []string) (*Preview, error) {
	r, err := u.begin(false)
	if err != nil {
		return nil, err
	}

	if _, err := u.provider.Open(ctx, deviceID); err != nil {
		return r.previewFailed(fmt.Errorf("failed to open device: %w", err))
	}

	u.setPhase(PhaseScanning)
	q, err := r.newQueueBuilder(LocalTree{FS: u.local}).Build(ctx, u.selections(r, localPaths))
	if err != nil {
		return r.previewFailed(err)
	}
	return r.preview(ctx, q), nil
}

// selections stats every local path to decide its kind. Paths that cannot
// be read are reported and left out, like unreadable remote selections.
func (u *Uploader) selections(r *run, localPaths []string) []Selection {
	out := make([]Selection, 0, len(localPaths))
	for _, p := range localPaths {
		fi, err := u.local.Stat(p)
		if err != nil {
			r.logger.Warn().Err(err).Str("path", p).Msg("Skipping unreadable selection")
			u.opts.Sink.OnError(fmt.Errorf("failed to stat %s: %w", p, err), p)
			continue
		}
		kind := KindFile
		if fi.IsDir() {
			kind = KindDirectory
		}
		out = append(out, Selection{Path: p, Kind: kind})
	}
	return out
}

func (u *Uploader) prepare(ctx context.Context, deviceID, remoteDir string) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, err := u.provider.Open(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %w", err)
	}
	t := newUploadTransport(client, u.local, remoteDir)
	if err := t.EnsureRoot(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDestination, err)
	}
	return t, nil
}
