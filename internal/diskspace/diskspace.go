// Package diskspace provides utilities for checking available disk space
// across different operating systems and file systems.
package diskspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/devxfer/devxfer/internal/constants"
)

// InsufficientSpaceError indicates that there is not enough disk space available.
type InsufficientSpaceError struct {
	Path           string
	RequiredBytes  int64
	AvailableBytes int64
}

func (e *InsufficientSpaceError) Error() string {
	requiredMB := float64(e.RequiredBytes) / (1024 * 1024)
	availableMB := float64(e.AvailableBytes) / (1024 * 1024)
	return fmt.Sprintf("insufficient disk space for %s: need %.2f MB, have %.2f MB available",
		e.Path, requiredMB, availableMB)
}

// CheckDirectory checks that the file system holding dir can take requiredBytes
// plus the standard buffer. dir may not exist yet; its deepest existing
// ancestor is measured instead.
func CheckDirectory(dir string, requiredBytes int64) error {
	return check(dir, existingAncestor(dir), requiredBytes, 1+constants.DiskSpaceBufferPercent)
}

func check(reportPath, statDir string, requiredBytes int64, safetyMargin float64) error {
	availableBytes, err := availableSpace(statDir)
	if err != nil {
		// If we can't stat the filesystem, we can't reliably check space.
		// Let the operation proceed and fail naturally if needed.
		return nil
	}

	// Apply safety margin to required bytes
	requiredWithMargin := int64(float64(requiredBytes) * safetyMargin)

	if availableBytes < requiredWithMargin {
		return &InsufficientSpaceError{
			Path:           reportPath,
			RequiredBytes:  requiredWithMargin,
			AvailableBytes: availableBytes,
		}
	}

	return nil
}

// GetAvailableSpace returns the available space in bytes on the file system
// that holds dir, measured like CheckDirectory. Returns 0 if unable to determine.
func GetAvailableSpace(dir string) int64 {
	available, err := availableSpace(existingAncestor(dir))
	if err != nil {
		return 0
	}
	return available
}

// IsInsufficientSpaceError checks if an error is an InsufficientSpaceError
func IsInsufficientSpaceError(err error) bool {
	var target *InsufficientSpaceError
	return errors.As(err, &target)
}

func existingAncestor(dir string) string {
	current := filepath.Clean(dir)
	for {
		if _, err := os.Stat(current); err == nil {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			return current
		}
		current = parent
	}
}
