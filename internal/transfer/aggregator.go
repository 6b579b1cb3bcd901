package transfer

import (
	"math"
	"sync"
	"time"
)

// speedSmoothingAlpha weights a new rate sample against the running average.
const speedSmoothingAlpha = 0.25

// Aggregator turns per-stream byte counts into run-wide stats. Streams report
// cumulative counts; the aggregator credits only the delta since the item's
// previous report.
type Aggregator struct {
	mu    sync.Mutex
	runID string
	sink  Sink
	clock Clock

	stats    Stats
	raw      int64            // credited bytes, may exceed TotalBytes if a file grew
	credited map[string]int64 // by RelativePath, current attempt only

	// Rate sampling
	rate       float64
	lastBytes  int64
	lastSample time.Time
}

// NewAggregator creates an aggregator reporting to sink.
func NewAggregator(runID string, sink Sink, clock Clock) *Aggregator {
	if sink == nil {
		sink = nopSink{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Aggregator{
		runID:    runID,
		sink:     sink,
		clock:    clock,
		credited: make(map[string]int64),
	}
}

// Begin sets the totals from q and starts the clock.
func (a *Aggregator) Begin(q Queue) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock.Now()
	a.stats.TotalFiles = q.TotalFiles
	a.stats.TotalDirectories = q.TotalDirectories
	a.stats.TotalBytes = q.TotalBytes
	a.stats.StartTime = now
	a.lastSample = now
}

// OnBytes records that item has moved soFar bytes in its current attempt.
func (a *Aggregator) OnBytes(item Item, soFar int64) {
	a.mu.Lock()
	delta := soFar - a.credited[item.RelativePath]
	a.credited[item.RelativePath] = soFar
	a.raw += delta
	a.sampleRate()
	snap := a.snapshotLocked(item, soFar)
	a.mu.Unlock()

	a.sink.OnProgress(snap)
}

// Rollback removes the bytes credited by item's failed attempt.
func (a *Aggregator) Rollback(item Item) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.raw -= a.credited[item.RelativePath]
	delete(a.credited, item.RelativePath)
}

// OnTaskSettled updates the file counters and emits progress. Directory
// items do not touch the counters. It returns the updated stats.
func (a *Aggregator) OnTaskSettled(item Item, ok bool) Stats {
	a.mu.Lock()
	if !item.IsDir() {
		if ok {
			a.stats.CompletedFiles++
		} else {
			a.stats.FailedFiles++
		}
	}
	snap := a.snapshotLocked(item, a.credited[item.RelativePath])
	stats := a.statsLocked()
	a.mu.Unlock()

	a.sink.OnProgress(snap)
	return stats
}

// Emit publishes a snapshot without changing counters.
func (a *Aggregator) Emit(item Item) {
	a.mu.Lock()
	snap := a.snapshotLocked(item, a.credited[item.RelativePath])
	a.mu.Unlock()
	a.sink.OnProgress(snap)
}

// Stats returns a copy of the current stats.
func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statsLocked()
}

// Freeze returns the final stats with Duration filled in.
func (a *Aggregator) Freeze() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.statsLocked()
	if !s.StartTime.IsZero() {
		s.Duration = a.clock.Now().Sub(s.StartTime)
	}
	return s
}

func (a *Aggregator) statsLocked() Stats {
	s := a.stats
	s.TransferredBytes = a.transferredLocked()
	return s
}

func (a *Aggregator) transferredLocked() int64 {
	t := a.raw
	if t < 0 {
		t = 0
	}
	if t > a.stats.TotalBytes {
		t = a.stats.TotalBytes
	}
	return t
}

func (a *Aggregator) snapshotLocked(item Item, fileBytes int64) ProgressSnapshot {
	transferred := a.transferredLocked()
	var total float64
	if a.stats.TotalBytes > 0 {
		total = float64(transferred) / float64(a.stats.TotalBytes) * 100
	}
	return ProgressSnapshot{
		RunID:            a.runID,
		Item:             item,
		FileBytes:        fileBytes,
		FilePercent:      filePercent(fileBytes, item.Size),
		TotalPercent:     total,
		TransferredBytes: transferred,
		TotalBytes:       a.stats.TotalBytes,
		CompletedFiles:   a.stats.CompletedFiles,
		FailedFiles:      a.stats.FailedFiles,
		TotalFiles:       a.stats.TotalFiles,
		Elapsed:          a.clock.Now().Sub(a.stats.StartTime),
		BytesPerSecond:   a.rate,
	}
}

// sampleRate updates the smoothed rate. Samples closer than 100ms apart are
// folded into the next one.
func (a *Aggregator) sampleRate() {
	now := a.clock.Now()
	elapsed := now.Sub(a.lastSample).Seconds()
	if elapsed < 0.1 {
		return
	}
	instant := float64(a.raw-a.lastBytes) / elapsed
	if instant < 0 {
		instant = 0
	}
	if a.rate > 0 {
		a.rate = speedSmoothingAlpha*instant + (1-speedSmoothingAlpha)*a.rate
	} else {
		a.rate = instant
	}
	a.lastBytes = a.raw
	a.lastSample = now
}

// filePercent is soFar/size rounded to a whole percent, 100 for empty files.
func filePercent(soFar, size int64) int {
	if size <= 0 {
		return 100
	}
	pct := int(math.Round(float64(soFar) / float64(size) * 100))
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}
