// Package validation checks names and paths that come from a device or from
// a saved report before they are joined onto a local or remote base.
package validation

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFilename validates a filename (not a full path) to prevent path traversal.
// Device listings are untrusted: an entry name is only joined onto a
// destination after it passes this check.
//
// Returns an error if the filename:
//   - Is empty, "." or ".."
//   - Contains path separators (/ or \)
//   - Contains null bytes
func ValidateFilename(filename string) error {
	if filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}

	if strings.ContainsRune(filename, 0) {
		return fmt.Errorf("filename contains null byte: %q", filename)
	}

	// Reject path separators (both Unix and Windows style)
	if strings.ContainsRune(filename, '/') || strings.ContainsRune(filename, '\\') {
		return fmt.Errorf("filename cannot contain path separators: %s", filename)
	}

	// Separators are already rejected, so only the literal names matter here.
	// "foo..bar.txt" stays valid.
	if filename == "." || filename == ".." {
		return fmt.Errorf("filename cannot be '%s'", filename)
	}

	return nil
}

// ValidateRelativePath validates a slash-separated relative path such as the
// RelativePath of a queued item. Every component must be a valid filename.
func ValidateRelativePath(rel string) error {
	if rel == "" {
		return fmt.Errorf("relative path cannot be empty")
	}
	if strings.HasPrefix(rel, "/") {
		return fmt.Errorf("relative path cannot be absolute: %s", rel)
	}
	for _, part := range strings.Split(rel, "/") {
		if err := ValidateFilename(part); err != nil {
			return fmt.Errorf("invalid relative path %s: %w", rel, err)
		}
	}
	return nil
}

// ValidatePathInDirectory validates that a path, when resolved, stays within baseDir.
//
// Both path and baseDir are cleaned and made absolute before comparison.
// Returns an error if the resolved path is not within baseDir.
//
// Example:
//
//	ValidatePathInDirectory("../../etc/passwd", "/tmp/backup") // Error: escapes base dir
//	ValidatePathInDirectory("DCIM/img.jpg", "/tmp/backup")     // OK: within base dir
func ValidatePathInDirectory(path string, baseDir string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if baseDir == "" {
		return fmt.Errorf("base directory cannot be empty")
	}

	cleanPath := filepath.Clean(path)
	cleanBase := filepath.Clean(baseDir)

	var err error
	if !filepath.IsAbs(cleanBase) {
		cleanBase, err = filepath.Abs(cleanBase)
		if err != nil {
			return fmt.Errorf("failed to resolve base directory: %w", err)
		}
	}

	resolvedPath := cleanPath
	if !filepath.IsAbs(cleanPath) {
		resolvedPath = filepath.Join(cleanBase, cleanPath)
	}

	relPath, err := filepath.Rel(cleanBase, filepath.Clean(resolvedPath))
	if err != nil {
		return fmt.Errorf("failed to compute relative path: %w", err)
	}

	if strings.HasPrefix(relPath, ".."+string(filepath.Separator)) || relPath == ".." {
		return fmt.Errorf("path escapes base directory: %s (base: %s)", path, baseDir)
	}

	return nil
}
