package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/devxfer/devxfer/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventScanProgress  EventType = "scan_progress"  // Files discovered while scanning
	EventItemStarted   EventType = "item_started"   // Task picked from the queue
	EventItemCompleted EventType = "item_completed" // Task settled (success or failure)
	EventProgress      EventType = "progress"       // Byte-level progress snapshot
	EventError         EventType = "error"          // Scan or transfer error for one path
	EventCancelled     EventType = "cancelled"      // Run cancellation requested
	EventRunFinished   EventType = "run_finished"   // Terminal result available
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// NewBase stamps an event header with the current time.
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, Time: time.Now()}
}

// ScanProgressEvent reports scanning progress
type ScanProgressEvent struct {
	BaseEvent
	RunID       string
	FilesFound  int
	CurrentPath string
}

// ItemEvent represents a queue item starting or settling
type ItemEvent struct {
	BaseEvent
	RunID          string
	Kind           string // "file" or "directory"
	Path           string // relative path of the item
	Size           int64
	Success        bool // only meaningful for EventItemCompleted
	CompletedFiles int
	FailedFiles    int
	TotalFiles     int
}

// ProgressEvent represents byte-level progress
type ProgressEvent struct {
	BaseEvent
	RunID            string
	Path             string
	FilePercent      int
	TotalPercent     float64
	TransferredBytes int64
	TotalBytes       int64
	Rate             float64 // bytes/sec
	Elapsed          time.Duration
}

// ErrorEvent represents a non-fatal error for one path
type ErrorEvent struct {
	BaseEvent
	RunID string
	Path  string
	Error error
}

// CancelledEvent is published once when a run is cancelled
type CancelledEvent struct {
	BaseEvent
	RunID string
}

// RunFinishedEvent carries the terminal counters of a run
type RunFinishedEvent struct {
	BaseEvent
	RunID          string
	Success        bool
	Cancelled      bool
	Error          string
	CompletedFiles int
	FailedFiles    int
	TotalFiles     int
	Duration       time.Duration
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	all           []chan Event
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		all:        make([]chan Event, 0),
		bufferSize: bufferSize,
	}
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking.
// Events that do not fit a subscriber's buffer are dropped and counted.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, ch := range eb.all {
		close(ch)
	}
}

// GetDroppedEventCount returns the total number of events dropped due to full buffers
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}
