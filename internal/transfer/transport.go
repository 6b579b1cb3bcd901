package transfer

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sync"

	"github.com/devxfer/devxfer/internal/device"
	"github.com/devxfer/devxfer/internal/localfs"
	"github.com/devxfer/devxfer/internal/logging"
	"github.com/devxfer/devxfer/internal/validation"
)

// Transport performs the destination-side work for one direction.
type Transport interface {
	// EnsureRoot creates the destination root. Failure is fatal to the run.
	EnsureRoot(ctx context.Context) error

	// EnsureDir creates the destination of a directory item. Idempotent.
	EnsureDir(ctx context.Context, item Item) error

	// Start begins copying a file item.
	Start(ctx context.Context, item Item) *Stream

	// Cleanup removes partial output a failed attempt wrote at the destination.
	Cleanup(item Item)

	// Finish runs after a successful copy.
	Finish(item Item)
}

// downloadTransport pulls from a device into a local directory.
type downloadTransport struct {
	client device.Client
	local  *localfs.FS
	base   string
	logger *logging.Logger

	mu      sync.Mutex
	written map[string]bool // destinations created or truncated by the current attempt
}

func newDownloadTransport(client device.Client, local *localfs.FS, base string, logger *logging.Logger) *downloadTransport {
	return &downloadTransport{
		client:  client,
		local:   local,
		base:    base,
		logger:  logger,
		written: make(map[string]bool),
	}
}

func (t *downloadTransport) markWritten(dest string) {
	t.mu.Lock()
	t.written[dest] = true
	t.mu.Unlock()
}

// takeWritten reports whether dest was opened for writing since the last call.
func (t *downloadTransport) takeWritten(dest string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	w := t.written[dest]
	delete(t.written, dest)
	return w
}

func (t *downloadTransport) dest(item Item) (string, error) {
	p := filepath.Join(t.base, filepath.FromSlash(item.RelativePath))
	if err := validation.ValidatePathInDirectory(p, t.base); err != nil {
		return "", err
	}
	return p, nil
}

func (t *downloadTransport) EnsureRoot(ctx context.Context) error {
	return t.local.EnsureDir(t.base)
}

func (t *downloadTransport) EnsureDir(ctx context.Context, item Item) error {
	p, err := t.dest(item)
	if err != nil {
		return err
	}
	return t.local.EnsureDir(p)
}

func (t *downloadTransport) Start(ctx context.Context, item Item) *Stream {
	return NewStream(func(report func(int64)) error {
		dest, err := t.dest(item)
		if err != nil {
			return err
		}
		if err := t.local.EnsureDir(filepath.Dir(dest)); err != nil {
			return err
		}

		rc, err := t.client.Pull(ctx, item.SourcePath)
		if err != nil {
			return err
		}
		f, err := t.local.Create(dest)
		if err != nil {
			rc.Close()
			return fmt.Errorf("failed to create %s: %w", dest, err)
		}
		t.markWritten(dest)

		n, copyErr := copyWithProgress(ctx, f, rc, report)
		closeErr := f.Close()
		pullErr := rc.Close()

		switch {
		case copyErr != nil:
			return fmt.Errorf("failed to copy %s: %w", item.SourcePath, copyErr)
		case pullErr != nil:
			return pullErr
		case closeErr != nil:
			return fmt.Errorf("failed to write %s: %w", dest, closeErr)
		case n != item.Size:
			return fmt.Errorf("short transfer of %s: got %d of %d bytes", item.SourcePath, n, item.Size)
		}
		return nil
	})
}

// Cleanup removes the partial file of a failed attempt. A file the attempt
// never opened, such as one the user already had, is left alone.
func (t *downloadTransport) Cleanup(item Item) {
	dest, err := t.dest(item)
	if err != nil || !t.takeWritten(dest) {
		return
	}
	if err := t.local.Remove(dest); err != nil {
		t.logger.Warn().Err(err).Str("path", dest).Msg("Failed to remove partial file")
	}
}

// Finish copies the device modification time onto the local file.
func (t *downloadTransport) Finish(item Item) {
	dest, err := t.dest(item)
	if err != nil {
		return
	}
	t.takeWritten(dest)
	if item.ModTime.IsZero() {
		return
	}
	if err := t.local.Chtimes(dest, item.ModTime); err != nil {
		t.logger.Debug().Err(err).Str("path", dest).Msg("Could not set modification time")
	}
}

// uploadTransport pushes local files below a remote directory.
type uploadTransport struct {
	client    device.Client
	local     *localfs.FS
	remoteDir string
}

func newUploadTransport(client device.Client, local *localfs.FS, remoteDir string) *uploadTransport {
	return &uploadTransport{client: client, local: local, remoteDir: remoteDir}
}

func (t *uploadTransport) dest(item Item) string {
	return path.Join(t.remoteDir, item.RelativePath)
}

func (t *uploadTransport) EnsureRoot(ctx context.Context) error {
	return t.client.MkdirAll(ctx, t.remoteDir)
}

func (t *uploadTransport) EnsureDir(ctx context.Context, item Item) error {
	return t.client.MkdirAll(ctx, t.dest(item))
}

func (t *uploadTransport) Start(ctx context.Context, item Item) *Stream {
	return NewStream(func(report func(int64)) error {
		f, err := t.local.Open(item.SourcePath)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", item.SourcePath, err)
		}
		defer f.Close()

		r := &progressReader{ctx: ctx, r: f, report: report}
		if err := t.client.Push(ctx, t.dest(item), r); err != nil {
			return err
		}
		if r.total != item.Size {
			return fmt.Errorf("short transfer of %s: sent %d of %d bytes", item.SourcePath, r.total, item.Size)
		}
		return nil
	})
}

// Cleanup is a no-op: the next attempt truncates the remote file.
func (t *uploadTransport) Cleanup(item Item) {}

func (t *uploadTransport) Finish(item Item) {}
