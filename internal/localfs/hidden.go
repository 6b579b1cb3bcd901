// Package localfs provides the host side of a transfer: directory listing,
// destination creation, and file streams over an afero.Fs so the engine can
// run against an in-memory file system in tests.
package localfs

import "strings"

// IsHiddenName returns true if the given filename (not path) represents a hidden file.
// Special entries "." and ".." are not considered hidden.
func IsHiddenName(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	return strings.HasPrefix(name, ".")
}
