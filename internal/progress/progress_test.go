package progress

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devxfer/devxfer/internal/events"
	"github.com/devxfer/devxfer/internal/logging"
	"github.com/devxfer/devxfer/internal/transfer"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.n), "FormatBytes(%d)", tt.n)
	}
}

func TestTruncatePath(t *testing.T) {
	tests := []struct {
		path string
		n    int
		want string
	}{
		{"file.txt", 3, "file.txt"},
		{"DCIM/sub/img2.jpg", 3, "DCIM/sub/img2.jpg"},
		{"a/b/c/d/file.txt", 3, "…/c/d/file.txt"},
		{"a/b/c/d/file.txt", 1, "…/file.txt"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncatePath(tt.path, tt.n))
	}
}

// syncBuffer is a bytes.Buffer safe for the render goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func fileItem(rel string, size int64) transfer.Item {
	return transfer.Item{
		Kind:         transfer.KindFile,
		SourcePath:   "/sdcard/" + rel,
		RelativePath: rel,
		Name:         rel[strings.LastIndex(rel, "/")+1:],
		Size:         size,
	}
}

func TestTransferUI_PlainOutput(t *testing.T) {
	var buf bytes.Buffer
	ui := newTransferUI(&buf, false)
	stats := transfer.Stats{TotalFiles: 2, TotalDirectories: 1, TotalBytes: 30}

	ui.OnRunStart("run-1", transfer.DirectionDownload)
	ui.OnScanProgress(transfer.ScanProgress{FilesFound: 3})
	ui.OnScanProgress(transfer.ScanProgress{FilesFound: 25})

	dir := transfer.Item{Kind: transfer.KindDirectory, SourcePath: "/sdcard/Docs", RelativePath: "Docs", Name: "Docs"}
	ui.OnItemStart(dir, stats)
	ui.OnItemComplete(dir, true, stats)

	a := fileItem("Docs/a.txt", 10)
	ui.OnItemStart(a, stats)
	ui.OnProgress(transfer.ProgressSnapshot{Item: a, FileBytes: 10, TransferredBytes: 10, TotalBytes: 30})
	ui.OnItemComplete(a, true, stats)

	b := fileItem("Docs/b.txt", 20)
	ui.OnItemStart(b, stats)
	ui.OnRetry(b, 1, errors.New("boom"), time.Second)
	ui.OnItemComplete(b, false, stats)
	ui.OnError(errors.New("permission denied"), "/sdcard/Private")
	ui.OnRunFinished(&transfer.Result{})

	out := buf.String()
	assert.NotContains(t, out, "Scanning... 3 files found")
	assert.Contains(t, out, "Scanning... 25 files found")
	assert.NotContains(t, out, "Docs/ (directory")
	assert.Contains(t, out, "[1/2] Docs/a.txt (10 B)")
	assert.Contains(t, out, "✓ Docs/a.txt ← /sdcard/Docs/a.txt (10 B,")
	assert.Contains(t, out, "[2/2] Docs/b.txt (20 B)")
	assert.Contains(t, out, "↻ Docs/b.txt: boom (retry 1 in 1s)")
	assert.Contains(t, out, "✗ Docs/b.txt ← /sdcard/Docs/b.txt (failed after 1 retries)")
	assert.Contains(t, out, "! /sdcard/Private: permission denied")

	completed, failed := ui.Summary()
	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, failed)
}

func TestTransferUI_UploadArrowAndFailedDirectory(t *testing.T) {
	var buf bytes.Buffer
	ui := newTransferUI(&buf, false)
	stats := transfer.Stats{TotalFiles: 1, TotalBytes: 4}

	ui.OnRunStart("run-2", transfer.DirectionUpload)
	dir := transfer.Item{Kind: transfer.KindDirectory, RelativePath: "photos"}
	ui.OnItemStart(dir, stats)
	ui.OnItemComplete(dir, false, stats)

	f := fileItem("note.txt", 4)
	ui.OnItemStart(f, stats)
	ui.OnItemComplete(f, true, stats)

	out := buf.String()
	assert.Contains(t, out, "✗ photos/ (directory could not be created)")
	assert.Contains(t, out, "✓ note.txt → /sdcard/note.txt")

	completed, failed := ui.Summary()
	assert.Equal(t, 1, completed)
	assert.Equal(t, 0, failed, "directories are not counted as failed files")
}

func TestTransferUI_CancelMarksInterrupted(t *testing.T) {
	var buf bytes.Buffer
	ui := newTransferUI(&buf, false)
	stats := transfer.Stats{TotalFiles: 2, TotalBytes: 30}

	ui.OnRunStart("run-3", transfer.DirectionDownload)
	a := fileItem("a.txt", 10)
	ui.OnItemStart(a, stats)
	ui.OnCancel()
	ui.OnItemComplete(a, false, stats)
	ui.OnRunFinished(&transfer.Result{Cancelled: true})

	out := buf.String()
	assert.Contains(t, out, "Cancelling")
	assert.Contains(t, out, "- a.txt (interrupted)")

	completed, failed := ui.Summary()
	assert.Equal(t, 0, completed)
	assert.Equal(t, 0, failed)

	// a new run starts clean
	ui.OnRunStart("run-4", transfer.DirectionDownload)
	ui.OnItemStart(a, stats)
	ui.OnItemComplete(a, false, stats)
	_, failed = ui.Summary()
	assert.Equal(t, 1, failed)
}

func TestTransferUI_TerminalRunFinishes(t *testing.T) {
	var buf syncBuffer
	ui := newTransferUI(&buf, true)
	stats := transfer.Stats{TotalFiles: 3, TotalBytes: 30}

	done := make(chan struct{})
	go func() {
		defer close(done)
		ui.OnRunStart("run-5", transfer.DirectionDownload)
		ui.OnScanProgress(transfer.ScanProgress{FilesFound: 1})

		a := fileItem("a.txt", 10)
		ui.OnItemStart(a, stats)
		ui.OnProgress(transfer.ProgressSnapshot{Item: a, FileBytes: 10, TransferredBytes: 10})
		ui.OnItemComplete(a, true, stats)

		b := fileItem("b.txt", 10)
		ui.OnItemStart(b, stats)
		ui.OnRetry(b, 1, errors.New("boom"), 0)
		ui.OnItemComplete(b, false, stats)

		// left in flight; OnRunFinished must still drain it
		ui.OnItemStart(fileItem("c.txt", 10), stats)
		ui.OnRunFinished(&transfer.Result{})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("OnRunFinished did not return")
	}

	completed, failed := ui.Summary()
	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, failed)
}

func TestLogEvents(t *testing.T) {
	var buf syncBuffer
	logger := logging.NewLogger(logging.ModeJSON, &buf)
	bus := events.NewEventBus(16)
	done := LogEvents(bus, logger)

	sink := transfer.NewBusSink(bus)
	stats := transfer.Stats{TotalFiles: 1, CompletedFiles: 1, TotalBytes: 10}
	sink.OnRunStart("run-6", transfer.DirectionDownload)
	sink.OnItemComplete(fileItem("a.txt", 10), true, stats)
	sink.OnError(errors.New("unreadable"), "/sdcard/x")
	sink.OnRunFinished(&transfer.Result{RunID: "run-6", Success: true, Stats: stats})

	bus.Close()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("LogEvents did not stop after Close")
	}

	var lines []map[string]interface{}
	scanner := bufio.NewScanner(strings.NewReader(buf.String()))
	for scanner.Scan() {
		var line map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.Len(t, lines, 3)

	assert.Equal(t, "item completed", lines[0]["message"])
	assert.Equal(t, "run-6", lines[0]["run_id"])
	assert.Equal(t, "a.txt", lines[0]["path"])
	assert.Equal(t, true, lines[0]["success"])

	assert.Equal(t, "warn", lines[1]["level"])
	assert.Equal(t, "unreadable", lines[1]["error"])

	assert.Equal(t, "run finished", lines[2]["message"])
	assert.Equal(t, float64(1), lines[2]["completed_files"])
}
