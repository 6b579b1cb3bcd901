package localfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// FileEntry represents a file or directory in the local filesystem.
type FileEntry struct {
	Path    string      // Full path to the file
	Name    string      // Base name of the file
	Size    int64       // Size in bytes (0 for directories)
	IsDir   bool        // True if this is a directory
	ModTime time.Time   // Last modification time
	Mode    fs.FileMode // File mode/permissions
}

// FS is the local side of a transfer.
type FS struct {
	fs afero.Fs
}

// New wraps an afero file system.
func New(fs afero.Fs) *FS {
	return &FS{fs: fs}
}

// NewOS returns an FS backed by the host file system.
func NewOS() *FS {
	return New(afero.NewOsFs())
}

// Afero exposes the underlying file system.
func (l *FS) Afero() afero.Fs {
	return l.fs
}

// EnsureDir creates path and its parents. It fails if path exists and is not a directory.
func (l *FS) EnsureDir(path string) error {
	if fi, err := l.fs.Stat(path); err == nil {
		if !fi.IsDir() {
			return fmt.Errorf("%s exists and is not a directory", path)
		}
		return nil
	}
	if err := l.fs.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// Create opens path for writing, truncating an existing file.
func (l *FS) Create(path string) (afero.File, error) {
	return l.fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
}

// Open opens path for reading.
func (l *FS) Open(path string) (afero.File, error) {
	return l.fs.Open(path)
}

// Remove unlinks path. A missing file is not an error.
func (l *FS) Remove(path string) error {
	if err := l.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Stat returns file info for path.
func (l *FS) Stat(path string) (os.FileInfo, error) {
	return l.fs.Stat(path)
}

// Chtimes sets the modification time of path.
func (l *FS) Chtimes(path string, mtime time.Time) error {
	return l.fs.Chtimes(path, mtime, mtime)
}

// ReadDir returns the contents of a directory sorted by name, filtered by options.
func (l *FS) ReadDir(path string, opts ListOptions) ([]FileEntry, error) {
	infos, err := afero.ReadDir(l.fs, path)
	if err != nil {
		return nil, err
	}

	result := make([]FileEntry, 0, len(infos))
	for _, info := range infos {
		name := info.Name()

		// Filter hidden files unless explicitly included
		if !opts.IncludeHidden && IsHiddenName(name) {
			continue
		}

		size := info.Size()
		if info.IsDir() {
			size = 0
		}
		result = append(result, FileEntry{
			Path:    filepath.Join(path, name),
			Name:    name,
			Size:    size,
			IsDir:   info.IsDir(),
			ModTime: info.ModTime(),
			Mode:    info.Mode(),
		})
	}

	return result, nil
}
