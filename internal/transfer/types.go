// Package transfer moves files and directory trees between a device and the
// local file system.
//
// A run has two phases. Scanning turns the caller's selections into a flat,
// ordered queue (every directory precedes its descendants). Transferring walks
// that queue, creating directories and copying files with bounded retries.
// A single file failing never aborts the run; fatal errors are limited to
// setup problems such as a missing device or an unusable destination root.
package transfer

import (
	"time"
)

// ItemKind distinguishes file tasks from directory tasks.
type ItemKind string

const (
	KindFile      ItemKind = "file"
	KindDirectory ItemKind = "directory"
)

// Direction of a run.
type Direction string

const (
	DirectionDownload Direction = "download" // device -> host
	DirectionUpload   Direction = "upload"   // host -> device
)

// Item is one task in the queue.
type Item struct {
	Kind ItemKind `json:"kind"`

	// SourcePath is absolute on the source side: remote for downloads, local for uploads.
	SourcePath string `json:"sourcePath"`

	// RelativePath is slash-separated and relative to the base of the
	// selection. It is joined onto the destination root.
	RelativePath string `json:"relativePath"`

	Name    string    `json:"name"`
	Size    int64     `json:"size"` // 0 for directories
	ModTime time.Time `json:"modTime,omitempty"`
}

// IsDir reports whether the item is a directory task.
func (i Item) IsDir() bool { return i.Kind == KindDirectory }

// Selection is a path picked by the caller.
type Selection struct {
	Path string   `json:"path"`
	Kind ItemKind `json:"kind"`
}

// Stats are the counters of one run.
// CompletedFiles+FailedFiles never exceeds TotalFiles and TransferredBytes
// never exceeds TotalBytes.
type Stats struct {
	TotalFiles       int           `json:"totalFiles"`
	CompletedFiles   int           `json:"completedFiles"`
	FailedFiles      int           `json:"failedFiles"`
	TotalDirectories int           `json:"totalDirectories"`
	TotalBytes       int64         `json:"totalBytes"`
	TransferredBytes int64         `json:"transferredBytes"`
	StartTime        time.Time     `json:"startTime"`
	Duration         time.Duration `json:"duration"`
}

// FailedTask records an item whose retries were exhausted, or a directory
// that could not be created.
type FailedTask struct {
	Item  Item   `json:"item"`
	Error string `json:"error"`
}

// Queue is the ordered output of scanning.
type Queue struct {
	Items            []Item
	TotalFiles       int
	TotalDirectories int
	TotalBytes       int64
}

// computeTotals fills the totals from Items. Only files contribute bytes.
func (q *Queue) computeTotals() {
	q.TotalFiles, q.TotalDirectories, q.TotalBytes = 0, 0, 0
	for _, item := range q.Items {
		if item.IsDir() {
			q.TotalDirectories++
			continue
		}
		q.TotalFiles++
		q.TotalBytes += item.Size
	}
}

// Preview is a queue built without transferring anything.
type Preview struct {
	TotalFiles       int    `json:"totalFiles"`
	TotalDirectories int    `json:"totalDirectories"`
	TotalBytes       int64  `json:"totalBytes"`
	Tasks            []Item `json:"tasks"`
}

// Result is the terminal snapshot of a run. Its slices are copies and are
// not touched by the engine after it is returned.
type Result struct {
	RunID       string       `json:"runId"`
	Direction   Direction    `json:"direction"`
	Success     bool         `json:"success"`
	Error       string       `json:"error,omitempty"`
	Cancelled   bool         `json:"cancelled"`
	Stats       Stats        `json:"stats"`
	FailedTasks []FailedTask `json:"failedTasks"`
	TaskQueue   []Item       `json:"taskQueue"`
}

// Phase of an engine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseScanning
	PhaseTransferring
	PhaseCompleted
	PhaseCancelled
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseScanning:
		return "scanning"
	case PhaseTransferring:
		return "transferring"
	case PhaseCompleted:
		return "completed"
	case PhaseCancelled:
		return "cancelled"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}
