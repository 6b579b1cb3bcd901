package transfer

import (
	"context"
	"path"
	"path/filepath"
	"time"

	"github.com/devxfer/devxfer/internal/device"
	"github.com/devxfer/devxfer/internal/localfs"
)

// Entry is one listed child of a Tree directory.
type Entry struct {
	Name    string
	Size    int64
	Dir     bool
	File    bool // regular file; anything else is skipped by the scanner
	ModTime time.Time
}

// Tree is the source side of a run. It hides whether paths are remote
// (slash-separated) or local (OS-specific).
type Tree interface {
	ReadDir(ctx context.Context, dir string) ([]Entry, error)
	Stat(ctx context.Context, p string) (Entry, error)
	Join(dir, name string) string
	// Rel returns target relative to base in slash form.
	Rel(base, target string) (string, error)
	Dir(p string) string
	Base(p string) string
	Clean(p string) string
}

// RemoteTree reads a device.
type RemoteTree struct {
	Client device.Client
}

func (t RemoteTree) ReadDir(ctx context.Context, dir string) ([]Entry, error) {
	infos, err := t.Client.ReadDir(ctx, dir)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		entries = append(entries, remoteEntry(fi))
	}
	return entries, nil
}

func (t RemoteTree) Stat(ctx context.Context, p string) (Entry, error) {
	fi, err := t.Client.Stat(ctx, p)
	if err != nil {
		return Entry{}, err
	}
	e := remoteEntry(fi)
	e.Name = path.Base(p)
	return e, nil
}

func (RemoteTree) Join(dir, name string) string { return path.Join(dir, name) }
func (RemoteTree) Dir(p string) string          { return path.Dir(p) }
func (RemoteTree) Base(p string) string         { return path.Base(p) }
func (RemoteTree) Clean(p string) string        { return path.Clean(p) }

func (RemoteTree) Rel(base, target string) (string, error) {
	// filepath.Rel on slash paths is only correct where the separator is "/".
	rel, err := filepath.Rel(filepath.FromSlash(base), filepath.FromSlash(target))
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func remoteEntry(fi device.FileInfo) Entry {
	return Entry{
		Name:    fi.Name,
		Size:    fi.Size,
		Dir:     fi.IsDir(),
		File:    fi.IsFile(),
		ModTime: fi.ModTime,
	}
}

// LocalTree reads the host file system.
type LocalTree struct {
	FS *localfs.FS
}

func (t LocalTree) ReadDir(ctx context.Context, dir string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Hidden entries are filtered by the scanner so the rule is the same on both sides.
	list, err := t.FS.ReadDir(dir, localfs.ListOptions{IncludeHidden: true})
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(list))
	for _, fe := range list {
		entries = append(entries, Entry{
			Name:    fe.Name,
			Size:    fe.Size,
			Dir:     fe.IsDir,
			File:    fe.Mode.IsRegular(),
			ModTime: fe.ModTime,
		})
	}
	return entries, nil
}

func (t LocalTree) Stat(ctx context.Context, p string) (Entry, error) {
	fi, err := t.FS.Stat(p)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{
		Name:    filepath.Base(p),
		Size:    fi.Size(),
		Dir:     fi.IsDir(),
		File:    fi.Mode().IsRegular(),
		ModTime: fi.ModTime(),
	}
	if e.Dir {
		e.Size = 0
	}
	return e, nil
}

func (LocalTree) Join(dir, name string) string { return filepath.Join(dir, name) }
func (LocalTree) Dir(p string) string          { return filepath.Dir(p) }
func (LocalTree) Base(p string) string         { return filepath.Base(p) }
func (LocalTree) Clean(p string) string        { return filepath.Clean(p) }

func (LocalTree) Rel(base, target string) (string, error) {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}
