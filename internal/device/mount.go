package device

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/afero"
)

// MountSerialPrefix prefixes the synthetic serial of mounted devices.
const MountSerialPrefix = "mount:"

// MountProvider exposes a directory of fs as a single device.
type MountProvider struct {
	fs     afero.Fs
	root   string
	serial string
}

// NewMountProvider creates a provider for the tree rooted at root.
// A nil fs uses the host file system.
func NewMountProvider(fs afero.Fs, root string) *MountProvider {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &MountProvider{fs: fs, root: root, serial: MountSerialPrefix + root}
}

// Devices reports the mount as ready when its root is a directory.
func (p *MountProvider) Devices(ctx context.Context) ([]DeviceInfo, error) {
	state := StateReady
	if fi, err := p.fs.Stat(p.root); err != nil || !fi.IsDir() {
		state = StateOffline
	}
	return []DeviceInfo{{
		Serial:    p.serial,
		State:     state,
		Model:     filepath.Base(p.root),
		Transport: "mount",
	}}, nil
}

// Open accepts an empty serial or the mount's own serial.
func (p *MountProvider) Open(ctx context.Context, serial string) (Client, error) {
	devices, err := p.Devices(ctx)
	if err != nil {
		return nil, err
	}
	d, err := pickDevice(devices, serial)
	if err != nil {
		return nil, err
	}
	return NewMountClient(p.fs, p.root, d.Serial), nil
}

// MountClient maps slash-separated remote paths below root.
type MountClient struct {
	fs     afero.Fs
	root   string
	serial string
}

// NewMountClient creates a client without going through a provider.
func NewMountClient(fs afero.Fs, root, serial string) *MountClient {
	return &MountClient{fs: fs, root: root, serial: serial}
}

func (c *MountClient) Serial() string { return c.serial }

// real converts a remote path to a host path. Remote paths are cleaned as
// absolute paths first, so ".." never leaves root.
func (c *MountClient) real(p string) string {
	return filepath.Join(c.root, filepath.FromSlash(path.Clean("/"+p)))
}

func (c *MountClient) ReadDir(ctx context.Context, dir string) ([]FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := afero.ReadDir(c.fs, c.real(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	entries := make([]FileInfo, 0, len(infos))
	for _, fi := range infos {
		entries = append(entries, fromOS(fi))
	}
	return entries, nil
}

func (c *MountClient) Stat(ctx context.Context, p string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return FileInfo{}, err
	}
	fi, err := c.fs.Stat(c.real(p))
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to stat %s: %w", p, err)
	}
	return fromOS(fi), nil
}

func (c *MountClient) MkdirAll(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.fs.MkdirAll(c.real(dir), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}

func (c *MountClient) Pull(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	real := c.real(remotePath)
	fi, err := c.fs.Stat(real)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", remotePath, err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("failed to open %s: is a directory", remotePath)
	}
	f, err := c.fs.Open(real)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", remotePath, err)
	}
	return f, nil
}

func (c *MountClient) Push(ctx context.Context, remotePath string, r io.Reader) error {
	f, err := c.fs.OpenFile(c.real(remotePath), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", remotePath, err)
	}
	if _, err := io.Copy(f, &ctxReader{ctx: ctx, r: r}); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", remotePath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", remotePath, err)
	}
	return nil
}

func fromOS(fi os.FileInfo) FileInfo {
	info := FileInfo{
		Name:    fi.Name(),
		Size:    fi.Size(),
		Mode:    fi.Mode(),
		ModTime: fi.ModTime(),
	}
	if info.IsDir() {
		info.Size = 0
	}
	return info
}
