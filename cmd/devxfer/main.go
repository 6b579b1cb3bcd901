// devxfer - bulk file transfer between an attached device and this computer.
package main

import (
	"os"

	"github.com/devxfer/devxfer/internal/cli"
	"github.com/devxfer/devxfer/internal/version"
)

// Version information, overridden with -ldflags "-X main.Version=..."
var (
	Version   = "v0.9.0-dev"
	BuildTime = "unknown"
)

func main() {
	version.Version = Version
	version.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
