package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/devxfer/devxfer/internal/constants"
	"github.com/devxfer/devxfer/internal/transfer"
)

// TransferUI draws a run on the terminal. It implements transfer.Sink and
// the optional run and retry observers.
//
// On a terminal it shows a spinner while scanning, then one bar per file in
// flight plus a total bar. Otherwise it prints one line per event.
type TransferUI struct {
	out        io.Writer
	isTerminal bool

	mu         sync.Mutex
	direction  transfer.Direction
	spinner    *progressbar.ProgressBar
	progress   *mpb.Progress
	total      *mpb.Bar
	bars       map[string]*fileBar
	started    int
	totalFiles int
	scanned    int
	cancelled  bool
	completed  atomic.Int32
	failed     atomic.Int32
}

// fileBar is the bar of one file in flight.
type fileBar struct {
	bar        *mpb.Bar
	index      int
	item       transfer.Item
	retries    atomic.Int32
	startTime  time.Time
	lastUpdate time.Time
}

// NewTransferUI creates a UI writing to f, with bars only if f is a terminal.
func NewTransferUI(f *os.File) *TransferUI {
	isTerminal := IsTerminal(f)
	if isTerminal {
		enableANSI(f)
	}
	return newTransferUI(f, isTerminal)
}

// NewPlainUI creates a UI that prints one line per event to w.
func NewPlainUI(w io.Writer) *TransferUI {
	return newTransferUI(w, false)
}

func newTransferUI(w io.Writer, isTerminal bool) *TransferUI {
	return &TransferUI{
		out:        w,
		isTerminal: isTerminal,
		bars:       make(map[string]*fileBar),
	}
}

// IsTerminal returns true if bars are drawn.
func (u *TransferUI) IsTerminal() bool {
	return u.isTerminal
}

// Writer returns an io.Writer that prints above the bars while they are shown.
func (u *TransferUI) Writer() io.Writer {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.progress != nil {
		return u.progress
	}
	return u.out
}

// LogWriter returns a writer for log output that follows Writer as the bars
// come and go.
func (u *TransferUI) LogWriter() io.Writer {
	return logWriter{u}
}

type logWriter struct{ u *TransferUI }

func (w logWriter) Write(p []byte) (int, error) {
	return w.u.Writer().Write(p)
}

func (u *TransferUI) printf(format string, args ...any) {
	fmt.Fprintf(u.Writer(), format, args...)
}

func (u *TransferUI) arrow() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.direction == transfer.DirectionUpload {
		return "→"
	}
	return "←"
}

func (u *TransferUI) OnRunStart(runID string, direction transfer.Direction) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.direction = direction
	u.started = 0
	u.scanned = 0
	u.cancelled = false
	u.completed.Store(0)
	u.failed.Store(0)
}

func (u *TransferUI) OnScanProgress(p transfer.ScanProgress) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.progress != nil {
		return
	}

	if u.isTerminal {
		if u.spinner == nil {
			u.spinner = newSpinner(u.out)
		}
		u.spinner.Describe(fmt.Sprintf("Scanning: %d files found", p.FilesFound))
		_ = u.spinner.Add(1)
		return
	}

	if p.FilesFound > 0 && p.FilesFound != u.scanned && p.FilesFound%constants.ScanProgressInterval == 0 {
		u.scanned = p.FilesFound
		fmt.Fprintf(u.out, "Scanning... %d files found\n", p.FilesFound)
	}
}

// startBars ends the scan display and creates the total bar. Called with mu held.
func (u *TransferUI) startBars(stats transfer.Stats) {
	if u.spinner != nil {
		_ = u.spinner.Finish()
		u.spinner = nil
	}
	u.totalFiles = stats.TotalFiles
	if !u.isTerminal || u.progress != nil {
		return
	}

	u.progress = mpb.New(
		mpb.WithOutput(u.out),
		mpb.WithRefreshRate(constants.ProgressUpdateInterval),
		mpb.WithWidth(100),
	)
	totalFiles := u.totalFiles
	u.total = u.progress.New(stats.TotalBytes,
		mpb.BarStyle().Lbound("[").Filler("=").Tip(">").Padding(" ").Rbound("]"),
		mpb.PrependDecorators(
			decor.Any(func(decor.Statistics) string {
				return fmt.Sprintf("Total %d/%d files", u.completed.Load(), totalFiles)
			}, decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
			decor.Name("  "),
			decor.Percentage(decor.WCSyncSpace),
			decor.Name("  "),
			decor.AverageSpeed(decor.SizeB1024(0), "% .1f", decor.WCSyncSpace),
		),
		mpb.BarPriority(1<<30),
	)
}

func (u *TransferUI) OnItemStart(item transfer.Item, stats transfer.Stats) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.spinner != nil || u.started == 0 {
		u.startBars(stats)
	}
	if item.IsDir() {
		return
	}

	u.started++
	fb := &fileBar{
		index:      u.started,
		item:       item,
		startTime:  time.Now(),
		lastUpdate: time.Now(),
	}
	u.bars[item.RelativePath] = fb

	label := truncatePath(item.RelativePath, 3)
	totalFiles := u.totalFiles
	if u.progress == nil {
		fmt.Fprintf(u.out, "[%d/%d] %s (%s)\n", fb.index, totalFiles, label, FormatBytes(item.Size))
		return
	}

	fb.bar = u.progress.New(item.Size,
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Any(func(decor.Statistics) string {
				base := fmt.Sprintf("[%d/%d] %s", fb.index, totalFiles, label)
				if n := fb.retries.Load(); n > 0 {
					return fmt.Sprintf("%s (retry %d)", base, n)
				}
				return base
			}, decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
			decor.Name("  "),
			decor.Percentage(decor.WCSyncSpace),
			decor.Name("  "),
			decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 30, decor.WCSyncSpace),
			decor.Name("  "),
			decor.Name("ETA ", decor.WCSyncWidth),
			decor.EwmaETA(decor.ET_STYLE_GO, 30),
		),
		mpb.BarRemoveOnComplete(),
	)
}

func (u *TransferUI) OnProgress(p transfer.ProgressSnapshot) {
	u.mu.Lock()
	fb := u.bars[p.Item.RelativePath]
	total := u.total
	u.mu.Unlock()

	if total != nil {
		total.SetCurrent(p.TransferredBytes)
	}
	if fb == nil || fb.bar == nil {
		return
	}

	// Throttled so EWMA speed sees meaningful intervals
	now := time.Now()
	if elapsed := now.Sub(fb.lastUpdate); elapsed >= constants.ProgressUpdateInterval || p.FileBytes >= fb.item.Size {
		fb.bar.EwmaSetCurrent(p.FileBytes, elapsed)
		fb.lastUpdate = now
	}
}

func (u *TransferUI) OnRetry(item transfer.Item, attempt int, err error, delay time.Duration) {
	u.mu.Lock()
	fb := u.bars[item.RelativePath]
	u.mu.Unlock()

	if fb != nil {
		fb.retries.Store(int32(attempt))
		if fb.bar != nil {
			fb.bar.SetCurrent(0)
			fb.bar.SetRefill(0)
		}
	}
	u.printf("↻ %s: %v (retry %d in %s)\n", item.RelativePath, err, attempt, delay)
}

func (u *TransferUI) OnItemComplete(item transfer.Item, ok bool, stats transfer.Stats) {
	u.mu.Lock()
	fb := u.bars[item.RelativePath]
	delete(u.bars, item.RelativePath)
	cancelled := u.cancelled
	u.mu.Unlock()

	if item.IsDir() {
		if !ok {
			u.printf("✗ %s/ (directory could not be created)\n", item.RelativePath)
		}
		return
	}

	switch {
	case ok:
		u.completed.Add(1)
		if fb != nil && fb.bar != nil {
			fb.bar.SetCurrent(item.Size)
			fb.bar.SetTotal(-1, true)
		}
		elapsed := time.Duration(0)
		if fb != nil {
			elapsed = time.Since(fb.startTime)
		}
		u.printf("✓ %s %s %s (%s, %s)\n", item.RelativePath, u.arrow(), item.SourcePath, FormatBytes(item.Size), elapsed.Round(time.Millisecond))

	case cancelled:
		if fb != nil && fb.bar != nil {
			fb.bar.Abort(true)
		}
		u.printf("- %s (interrupted)\n", item.RelativePath)

	default:
		u.failed.Add(1)
		if fb != nil && fb.bar != nil {
			fb.bar.Abort(false)
		}
		retries := 0
		if fb != nil {
			retries = int(fb.retries.Load())
		}
		u.printf("✗ %s %s %s (failed after %d retries)\n", item.RelativePath, u.arrow(), item.SourcePath, retries)
	}
}

func (u *TransferUI) OnError(err error, path string) {
	u.printf("! %s: %v\n", path, err)
}

func (u *TransferUI) OnCancel() {
	u.mu.Lock()
	u.cancelled = true
	u.mu.Unlock()
	u.printf("Cancelling: waiting for files in flight to stop...\n")
}

// OnRunFinished removes the bars and waits for the final redraw.
func (u *TransferUI) OnRunFinished(result *transfer.Result) {
	u.mu.Lock()
	if u.spinner != nil {
		_ = u.spinner.Finish()
		u.spinner = nil
	}
	for rel, fb := range u.bars {
		if fb.bar != nil {
			fb.bar.Abort(true)
		}
		delete(u.bars, rel)
	}
	p, total := u.progress, u.total
	u.progress, u.total = nil, nil
	u.started = 0
	u.mu.Unlock()

	if total != nil {
		total.SetTotal(-1, true)
	}
	if p != nil {
		p.Wait()
	}
}

// Summary returns the counts shown so far: completed and failed files.
func (u *TransferUI) Summary() (completed, failed int) {
	return int(u.completed.Load()), int(u.failed.Load())
}
