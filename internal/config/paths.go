package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// FileName is the name of the config file inside ConfigDirectory.
const FileName = "devxfer.conf"

// ConfigDirectory returns the directory holding devxfer settings.
//
// Locations:
//   - Windows: %USERPROFILE%\.config\devxfer
//   - Unix: ~/.config/devxfer
func ConfigDirectory() (string, error) {
	if runtime.GOOS == "windows" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", errors.New("USERPROFILE environment variable not set")
		}
		return filepath.Join(userProfile, ".config", "devxfer"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "devxfer"), nil
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	dir, err := ConfigDirectory()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}
