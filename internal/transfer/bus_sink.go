package transfer

import (
	"sync"

	"github.com/devxfer/devxfer/internal/events"
)

// BusSink publishes engine notifications to an event bus.
type BusSink struct {
	bus *events.EventBus

	mu    sync.RWMutex
	runID string
}

// NewBusSink creates a sink publishing to bus.
func NewBusSink(bus *events.EventBus) *BusSink {
	return &BusSink{bus: bus}
}

func (b *BusSink) currentRun() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.runID
}

func (b *BusSink) OnRunStart(runID string, direction Direction) {
	b.mu.Lock()
	b.runID = runID
	b.mu.Unlock()
}

func (b *BusSink) OnRunFinished(result *Result) {
	b.bus.Publish(&events.RunFinishedEvent{
		BaseEvent:      events.NewBase(events.EventRunFinished),
		RunID:          result.RunID,
		Success:        result.Success,
		Cancelled:      result.Cancelled,
		Error:          result.Error,
		CompletedFiles: result.Stats.CompletedFiles,
		FailedFiles:    result.Stats.FailedFiles,
		TotalFiles:     result.Stats.TotalFiles,
		Duration:       result.Stats.Duration,
	})
}

func (b *BusSink) OnProgress(p ProgressSnapshot) {
	b.bus.Publish(&events.ProgressEvent{
		BaseEvent:        events.NewBase(events.EventProgress),
		RunID:            p.RunID,
		Path:             p.Item.RelativePath,
		FilePercent:      p.FilePercent,
		TotalPercent:     p.TotalPercent,
		TransferredBytes: p.TransferredBytes,
		TotalBytes:       p.TotalBytes,
		Rate:             p.BytesPerSecond,
		Elapsed:          p.Elapsed,
	})
}

func (b *BusSink) OnItemStart(item Item, stats Stats) {
	b.publishItem(events.EventItemStarted, item, false, stats)
}

func (b *BusSink) OnItemComplete(item Item, ok bool, stats Stats) {
	b.publishItem(events.EventItemCompleted, item, ok, stats)
}

func (b *BusSink) publishItem(t events.EventType, item Item, ok bool, stats Stats) {
	b.bus.Publish(&events.ItemEvent{
		BaseEvent:      events.NewBase(t),
		RunID:          b.currentRun(),
		Kind:           string(item.Kind),
		Path:           item.RelativePath,
		Size:           item.Size,
		Success:        ok,
		CompletedFiles: stats.CompletedFiles,
		FailedFiles:    stats.FailedFiles,
		TotalFiles:     stats.TotalFiles,
	})
}

func (b *BusSink) OnError(err error, path string) {
	b.bus.Publish(&events.ErrorEvent{
		BaseEvent: events.NewBase(events.EventError),
		RunID:     b.currentRun(),
		Path:      path,
		Error:     err,
	})
}

func (b *BusSink) OnCancel() {
	b.bus.Publish(&events.CancelledEvent{
		BaseEvent: events.NewBase(events.EventCancelled),
		RunID:     b.currentRun(),
	})
}

func (b *BusSink) OnScanProgress(p ScanProgress) {
	b.bus.Publish(&events.ScanProgressEvent{
		BaseEvent:   events.NewBase(events.EventScanProgress),
		RunID:       b.currentRun(),
		FilesFound:  p.FilesFound,
		CurrentPath: p.CurrentPath,
	})
}
