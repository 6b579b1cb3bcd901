//go:build windows

package progress

import (
	"os"

	"golang.org/x/sys/windows"
)

// enableANSI enables Virtual Terminal processing on Windows consoles so the
// bars' cursor movement and colors render.
func enableANSI(f *os.File) {
	handle := windows.Handle(f.Fd())
	var mode uint32
	if err := windows.GetConsoleMode(handle, &mode); err == nil {
		_ = windows.SetConsoleMode(handle, mode|windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING)
	}
}
