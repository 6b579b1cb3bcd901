package constants

import (
	"time"
)

// Retry configuration
const (
	// DefaultRetries - attempts made per file before it is recorded as failed
	DefaultRetries = 3

	// MaxRetries - upper bound accepted from config/flags
	MaxRetries = 10

	// RetryBaseDelay - delay after the first failed attempt (1s)
	// Subsequent waits double: 1s, 2s, 4s, ...
	RetryBaseDelay = 1 * time.Second

	// RetryMaxDelay - cap on a single backoff wait (1 minute)
	RetryMaxDelay = 1 * time.Minute
)

// Concurrency
const (
	// DefaultConcurrency - file tasks in flight (1 = sequential)
	DefaultConcurrency = 1

	// MaxConcurrency - maximum file tasks in flight
	MaxConcurrency = 8
)

// Disk space safety margin
const (
	// DiskSpaceBufferPercent - additional space to require beyond the queued bytes (15%)
	DiskSpaceBufferPercent = 0.15
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels (1000)
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios (5000)
	EventBusMaxBuffer = 5000
)

// UI Updates
const (
	// ProgressUpdateInterval - minimum interval between bar redraws (250ms)
	ProgressUpdateInterval = 250 * time.Millisecond

	// ScanProgressInterval - report scan progress every N discovered files
	ScanProgressInterval = 25
)

// Device timeouts
const (
	// ADBCommandTimeout - timeout for short adb commands (devices, stat, mkdir)
	ADBCommandTimeout = 1 * time.Minute

	// ADBListTimeout - timeout for listing a single remote directory
	ADBListTimeout = 2 * time.Minute

	// ADBTransferTimeout - absolute maximum for a single file stream (4 hours)
	ADBTransferTimeout = 4 * time.Hour
)

// Stream buffers
const (
	// StreamBufferSize - copy buffer for device streams (256 KB)
	StreamBufferSize = 256 * 1024

	// StreamEventBuffer - buffered events per stream before the producer blocks
	StreamEventBuffer = 64
)
