package transfer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devxfer/devxfer/internal/constants"
	"github.com/devxfer/devxfer/internal/device"
	"github.com/devxfer/devxfer/internal/localfs"
	"github.com/devxfer/devxfer/internal/logging"
)

var (
	// ErrBusy is returned when an operation is started while another one is
	// still running on the same engine.
	ErrBusy = errors.New("a transfer is already running")

	// ErrDestination wraps failures to create the destination root.
	ErrDestination = errors.New("destination root cannot be created")
)

// SpaceChecker verifies that dir can hold requiredBytes more. It is called
// once per download, after scanning.
type SpaceChecker func(dir string, requiredBytes int64) error

// Options configures an engine. Zero values select the defaults.
type Options struct {
	Sink           Sink
	Retries        int           // attempts per file, default 3
	RetryBaseDelay time.Duration // wait after the first failed attempt, default 1s; negative disables waiting
	Concurrency    int           // file tasks in flight, default 1
	ExcludeHidden  bool
	SpaceChecker   SpaceChecker // nil skips the pre-flight check
	Clock          Clock
	Logger         *logging.Logger
}

func (o Options) withDefaults() Options {
	if o.Sink == nil {
		o.Sink = nopSink{}
	}
	if o.Retries <= 0 {
		o.Retries = constants.DefaultRetries
	}
	if o.Retries > constants.MaxRetries {
		o.Retries = constants.MaxRetries
	}
	if o.RetryBaseDelay == 0 {
		o.RetryBaseDelay = constants.RetryBaseDelay
	}
	if o.Concurrency <= 0 {
		o.Concurrency = constants.DefaultConcurrency
	}
	if o.Concurrency > constants.MaxConcurrency {
		o.Concurrency = constants.MaxConcurrency
	}
	if o.Clock == nil {
		o.Clock = SystemClock{}
	}
	if o.Logger == nil {
		o.Logger = logging.NewNopLogger()
	}
	return o
}

// engine is the state shared by Downloader and Uploader. Only one operation
// runs at a time; every operation starts from fresh stats, queue and
// failure list.
type engine struct {
	direction Direction
	provider  device.Provider
	local     *localfs.FS
	opts      Options

	mu        sync.Mutex
	running   bool
	phase     Phase
	canceller *Canceller
}

func newEngine(direction Direction, provider device.Provider, local *localfs.FS, opts Options) engine {
	if local == nil {
		local = localfs.NewOS()
	}
	return engine{
		direction: direction,
		provider:  provider,
		local:     local,
		opts:      opts.withDefaults(),
	}
}

// Cancel asks the running operation to stop. The file in flight is allowed
// to finish; no new work is started. Without a running operation it does nothing.
func (e *engine) Cancel() {
	e.mu.Lock()
	c := e.canceller
	e.mu.Unlock()
	if c != nil {
		c.Cancel()
	}
}

// Phase reports the state of the current or most recent operation.
func (e *engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

func (e *engine) setPhase(p Phase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
}

// run is one invocation of an engine operation.
type run struct {
	e         *engine
	id        string
	observed  bool // reports start and finish to a RunObserver sink
	canceller *Canceller
	logger    *logging.Logger
	results   ResultBuilder
}

func (e *engine) begin(observed bool) (*run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil, ErrBusy
	}

	id := uuid.NewString()
	r := &run{
		e:        e,
		id:       id,
		observed: observed,
		logger:   e.opts.Logger.Child("run_id", id),
		results:  ResultBuilder{RunID: id, Direction: e.direction},
	}
	r.canceller = NewCanceller(func() {
		r.logger.Info().Msg("Cancellation requested")
		e.opts.Sink.OnCancel()
	})

	e.running = true
	e.phase = PhaseIdle
	e.canceller = r.canceller

	if observed {
		if o, ok := e.opts.Sink.(RunObserver); ok {
			o.OnRunStart(id, e.direction)
		}
	}
	return r, nil
}

// end releases the engine for the next operation.
func (r *run) end(phase Phase) {
	r.e.mu.Lock()
	r.e.running = false
	r.e.phase = phase
	r.e.canceller = nil
	r.e.mu.Unlock()
}

func (r *run) finish(result *Result, phase Phase) *Result {
	r.end(phase)
	if r.observed {
		if o, ok := r.e.opts.Sink.(RunObserver); ok {
			o.OnRunFinished(result)
		}
	}
	return result
}

// fail ends the run with a fatal error. If ctx was cancelled the failure is
// a consequence of that and the run is reported as cancelled instead.
func (r *run) fail(ctx context.Context, err error) (*Result, error) {
	if r.canceller.Stopped(ctx) {
		return r.finish(r.results.Build(Stats{}, nil, nil, true), PhaseCancelled), nil
	}
	r.logger.Error().Err(err).Msg("Transfer aborted")
	return r.finish(r.results.Fatal(err), PhaseFailed), err
}

// transfer executes q through t and builds the result. A queue built by a
// cancelled scan is not executed.
func (r *run) transfer(ctx context.Context, t Transport, q Queue) *Result {
	opts := r.e.opts
	agg := NewAggregator(r.id, opts.Sink, opts.Clock)
	agg.Begin(q)

	exec := NewExecutor(t, agg, r.canceller, opts.Sink, opts.Clock, r.logger, ExecutorConfig{
		Retries:        opts.Retries,
		RetryBaseDelay: opts.RetryBaseDelay,
		Concurrency:    opts.Concurrency,
	})

	cancelled := r.canceller.Stopped(ctx)
	if !cancelled {
		r.e.setPhase(PhaseTransferring)
		r.logger.Info().
			Int("files", q.TotalFiles).
			Int("directories", q.TotalDirectories).
			Int64("bytes", q.TotalBytes).
			Msg("Transferring")
		cancelled = !exec.Execute(ctx, q)
	}

	result := r.results.Build(agg.Freeze(), exec.Failed(), q.Items, cancelled)
	r.logger.Info().
		Bool("success", result.Success).
		Bool("cancelled", result.Cancelled).
		Int("completed", result.Stats.CompletedFiles).
		Int("failed", result.Stats.FailedFiles).
		Int("total", result.Stats.TotalFiles).
		Int64("bytes", result.Stats.TransferredBytes).
		Dur("duration", result.Stats.Duration).
		Msg("Transfer finished")

	phase := PhaseCompleted
	if cancelled {
		phase = PhaseCancelled
	}
	return r.finish(result, phase)
}

// preview ends a preview run.
func (r *run) preview(ctx context.Context, q Queue) *Preview {
	phase := PhaseCompleted
	if r.canceller.Stopped(ctx) {
		phase = PhaseCancelled
	}
	r.end(phase)

	tasks := make([]Item, len(q.Items))
	copy(tasks, q.Items)
	return &Preview{
		TotalFiles:       q.TotalFiles,
		TotalDirectories: q.TotalDirectories,
		TotalBytes:       q.TotalBytes,
		Tasks:            tasks,
	}
}

func (r *run) previewFailed(err error) (*Preview, error) {
	r.end(PhaseFailed)
	return nil, err
}

func (r *run) newQueueBuilder(tree Tree) *QueueBuilder {
	return NewQueueBuilder(tree, r.e.opts.Sink, r.canceller, r.logger, r.e.opts.ExcludeHidden)
}
