// Package device provides access to the file system of an attached device.
//
// Two backends are available: an adb backend that shells out to the Android
// Debug Bridge, and a mount backend for devices exposed as a mounted file
// system (MTP/gvfs mounts, SD cards, or an in-memory tree in tests).
//
// Remote paths are always slash-separated regardless of the host OS.
package device

import (
	"context"
	"errors"
	"io"
	"os"
	"time"
)

var (
	// ErrNoDevice is returned when the requested device is not attached or not ready.
	ErrNoDevice = errors.New("device not found")

	// ErrMultipleDevices is returned when no serial was given and more than one device is ready.
	ErrMultipleDevices = errors.New("more than one device attached, specify a serial")
)

// Device states as reported by `adb devices`.
const (
	StateReady        = "device"
	StateOffline      = "offline"
	StateUnauthorized = "unauthorized"
)

// DeviceInfo describes one attached device.
type DeviceInfo struct {
	Serial    string `json:"serial"`
	State     string `json:"state"`
	Model     string `json:"model,omitempty"`
	Product   string `json:"product,omitempty"`
	Transport string `json:"transport"` // "adb" or "mount"
}

// Ready reports whether the device accepts commands.
func (d DeviceInfo) Ready() bool {
	return d.State == StateReady
}

// FileInfo is the metadata of one remote entry.
type FileInfo struct {
	Name    string
	Size    int64
	Mode    os.FileMode
	ModTime time.Time
}

// IsDir reports whether the entry is a directory.
func (f FileInfo) IsDir() bool {
	return f.Mode.IsDir()
}

// IsFile reports whether the entry is a regular file.
func (f FileInfo) IsFile() bool {
	return f.Mode.IsRegular()
}

// Client is an open connection to one device.
type Client interface {
	// Serial identifies the device.
	Serial() string

	// ReadDir lists the direct children of dir, sorted by name.
	ReadDir(ctx context.Context, dir string) ([]FileInfo, error)

	// Stat returns the metadata of a single entry.
	Stat(ctx context.Context, p string) (FileInfo, error)

	// MkdirAll creates dir and any missing parents. Existing directories are not an error.
	MkdirAll(ctx context.Context, dir string) error

	// Pull opens a remote file for reading. Errors from the underlying
	// transport may surface on Read or Close.
	Pull(ctx context.Context, remotePath string) (io.ReadCloser, error)

	// Push writes r to remotePath, replacing any existing file.
	Push(ctx context.Context, remotePath string, r io.Reader) error
}

// Provider enumerates devices and opens clients for them.
type Provider interface {
	Devices(ctx context.Context) ([]DeviceInfo, error)

	// Open connects to the device with the given serial. An empty serial
	// selects the only ready device. Returns ErrNoDevice if nothing matches.
	Open(ctx context.Context, serial string) (Client, error)
}

// pickDevice applies the serial selection rules shared by all providers.
func pickDevice(devices []DeviceInfo, serial string) (DeviceInfo, error) {
	if serial != "" {
		for _, d := range devices {
			if d.Serial != serial {
				continue
			}
			if !d.Ready() {
				return DeviceInfo{}, &StateError{Serial: serial, State: d.State}
			}
			return d, nil
		}
		return DeviceInfo{}, &StateError{Serial: serial}
	}

	var ready []DeviceInfo
	for _, d := range devices {
		if d.Ready() {
			ready = append(ready, d)
		}
	}
	switch len(ready) {
	case 0:
		return DeviceInfo{}, ErrNoDevice
	case 1:
		return ready[0], nil
	default:
		return DeviceInfo{}, ErrMultipleDevices
	}
}

// StateError reports a device that is missing or not in the ready state.
// It matches ErrNoDevice with errors.Is.
type StateError struct {
	Serial string
	State  string // empty when the device is not attached at all
}

func (e *StateError) Error() string {
	if e.State == "" {
		return "device not found: " + e.Serial
	}
	return "device " + e.Serial + " is " + e.State
}

func (e *StateError) Is(target error) bool {
	return target == ErrNoDevice
}

// ctxReader aborts a copy as soon as ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
