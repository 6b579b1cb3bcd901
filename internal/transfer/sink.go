package transfer

import (
	"time"
)

// ProgressSnapshot is emitted after every byte or task update.
type ProgressSnapshot struct {
	RunID string
	Item  Item

	// FileBytes is the cumulative byte count of the current attempt.
	FileBytes   int64
	FilePercent int // 0-100, 100 for empty files

	TotalPercent     float64 // 0 when nothing is queued
	TransferredBytes int64
	TotalBytes       int64
	CompletedFiles   int
	FailedFiles      int
	TotalFiles       int
	Elapsed          time.Duration
	BytesPerSecond   float64
}

// ScanProgress is emitted while scanning.
type ScanProgress struct {
	FilesFound  int
	CurrentPath string
}

// Sink receives engine notifications. With Concurrency > 1 the methods are
// called from several goroutines and implementations must be safe for that.
type Sink interface {
	OnProgress(p ProgressSnapshot)
	OnItemStart(item Item, stats Stats)
	OnItemComplete(item Item, ok bool, stats Stats)
	OnError(err error, path string)
	OnCancel()
	OnScanProgress(p ScanProgress)
}

// RunObserver is optionally implemented by sinks that track run boundaries.
type RunObserver interface {
	OnRunStart(runID string, direction Direction)
	OnRunFinished(result *Result)
}

// RetryObserver is optionally implemented by sinks that display retries.
type RetryObserver interface {
	OnRetry(item Item, attempt int, err error, delay time.Duration)
}

// Callbacks adapts plain functions to Sink. Nil fields are skipped.
type Callbacks struct {
	Progress     func(p ProgressSnapshot)
	ItemStart    func(item Item, stats Stats)
	ItemComplete func(item Item, ok bool, stats Stats)
	Error        func(err error, path string)
	Cancel       func()
	ScanProgress func(p ScanProgress)
	Retry        func(item Item, attempt int, err error, delay time.Duration)
}

func (c Callbacks) OnProgress(p ProgressSnapshot) {
	if c.Progress != nil {
		c.Progress(p)
	}
}

func (c Callbacks) OnItemStart(item Item, stats Stats) {
	if c.ItemStart != nil {
		c.ItemStart(item, stats)
	}
}

func (c Callbacks) OnItemComplete(item Item, ok bool, stats Stats) {
	if c.ItemComplete != nil {
		c.ItemComplete(item, ok, stats)
	}
}

func (c Callbacks) OnError(err error, path string) {
	if c.Error != nil {
		c.Error(err, path)
	}
}

func (c Callbacks) OnCancel() {
	if c.Cancel != nil {
		c.Cancel()
	}
}

func (c Callbacks) OnScanProgress(p ScanProgress) {
	if c.ScanProgress != nil {
		c.ScanProgress(p)
	}
}

func (c Callbacks) OnRetry(item Item, attempt int, err error, delay time.Duration) {
	if c.Retry != nil {
		c.Retry(item, attempt, err, delay)
	}
}

// MultiSink fans every notification out to each member in order.
type MultiSink []Sink

func (m MultiSink) OnProgress(p ProgressSnapshot) {
	for _, s := range m {
		s.OnProgress(p)
	}
}

func (m MultiSink) OnItemStart(item Item, stats Stats) {
	for _, s := range m {
		s.OnItemStart(item, stats)
	}
}

func (m MultiSink) OnItemComplete(item Item, ok bool, stats Stats) {
	for _, s := range m {
		s.OnItemComplete(item, ok, stats)
	}
}

func (m MultiSink) OnError(err error, path string) {
	for _, s := range m {
		s.OnError(err, path)
	}
}

func (m MultiSink) OnCancel() {
	for _, s := range m {
		s.OnCancel()
	}
}

func (m MultiSink) OnScanProgress(p ScanProgress) {
	for _, s := range m {
		s.OnScanProgress(p)
	}
}

func (m MultiSink) OnRunStart(runID string, direction Direction) {
	for _, s := range m {
		if o, ok := s.(RunObserver); ok {
			o.OnRunStart(runID, direction)
		}
	}
}

func (m MultiSink) OnRunFinished(result *Result) {
	for _, s := range m {
		if o, ok := s.(RunObserver); ok {
			o.OnRunFinished(result)
		}
	}
}

func (m MultiSink) OnRetry(item Item, attempt int, err error, delay time.Duration) {
	for _, s := range m {
		if o, ok := s.(RetryObserver); ok {
			o.OnRetry(item, attempt, err, delay)
		}
	}
}

type nopSink struct{}

func (nopSink) OnProgress(ProgressSnapshot)      {}
func (nopSink) OnItemStart(Item, Stats)          {}
func (nopSink) OnItemComplete(Item, bool, Stats) {}
func (nopSink) OnError(error, string)            {}
func (nopSink) OnCancel()                        {}
func (nopSink) OnScanProgress(ScanProgress)      {}
