package transfer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/devxfer/devxfer/internal/constants"
	"github.com/devxfer/devxfer/internal/logging"
)

type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeFailed
	outcomeInterrupted // stopped by cancellation before retries ran out
)

// ExecutorConfig holds the knobs of an Executor.
type ExecutorConfig struct {
	Retries        int
	RetryBaseDelay time.Duration
	Concurrency    int
}

// Executor walks a queue in order. Per-item failures are recorded, never returned.
type Executor struct {
	transport Transport
	agg       *Aggregator
	canceller *Canceller
	sink      Sink
	clock     Clock
	logger    *logging.Logger
	cfg       ExecutorConfig

	mu     sync.Mutex
	failed []FailedTask
}

// NewExecutor creates an executor. Retries below 1 mean a single attempt.
func NewExecutor(t Transport, agg *Aggregator, canceller *Canceller, sink Sink, clock Clock, logger *logging.Logger, cfg ExecutorConfig) *Executor {
	if sink == nil {
		sink = nopSink{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if canceller == nil {
		canceller = NewCanceller(nil)
	}
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Executor{
		transport: t,
		agg:       agg,
		canceller: canceller,
		sink:      sink,
		clock:     clock,
		logger:    logger,
		cfg:       cfg,
	}
}

// Execute processes every item of q until done or cancelled. It reports
// whether every item was settled; false means cancellation cut the run short.
func (e *Executor) Execute(ctx context.Context, q Queue) bool {
	if e.cfg.Concurrency <= 1 {
		for _, item := range q.Items {
			if e.canceller.Stopped(ctx) {
				return false
			}
			if e.runItem(ctx, item) == outcomeInterrupted {
				return false
			}
		}
		return true
	}

	var interrupted atomic.Bool

	// Directories are created on this goroutine before any later file is
	// handed to the pool, so every file's ancestors exist when it starts.
	p := pool.New().WithMaxGoroutines(e.cfg.Concurrency)
	for _, item := range q.Items {
		if e.canceller.Stopped(ctx) {
			interrupted.Store(true)
			break
		}
		if item.IsDir() {
			e.runItem(ctx, item)
			continue
		}
		item := item
		p.Go(func() {
			if e.canceller.Stopped(ctx) || e.runItem(ctx, item) == outcomeInterrupted {
				interrupted.Store(true)
			}
		})
	}
	p.Wait()
	return !interrupted.Load()
}

// Failed returns a copy of the failed tasks recorded so far.
func (e *Executor) Failed() []FailedTask {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]FailedTask, len(e.failed))
	copy(out, e.failed)
	return out
}

func (e *Executor) runItem(ctx context.Context, item Item) outcome {
	e.sink.OnItemStart(item, e.agg.Stats())

	var result outcome
	if item.IsDir() {
		result = outcomeCompleted
		if err := e.transport.EnsureDir(ctx, item); err != nil {
			e.logger.Error().Err(err).Str("path", item.RelativePath).Msg("Failed to create directory")
			e.recordFailure(item, err)
			result = outcomeFailed
		}
	} else {
		result = e.transferFileWithRetry(ctx, item)
	}

	var stats Stats
	if result == outcomeInterrupted {
		e.agg.Emit(item)
		stats = e.agg.Stats()
	} else {
		stats = e.agg.OnTaskSettled(item, result == outcomeCompleted)
	}
	e.sink.OnItemComplete(item, result == outcomeCompleted, stats)
	return result
}

// transferFileWithRetry makes up to Retries attempts, sleeping
// RetryBaseDelay*2^i after failed attempt i. Cancellation ends the loop
// without recording a failure.
func (e *Executor) transferFileWithRetry(ctx context.Context, item Item) outcome {
	log := e.logger.With().Str("path", item.RelativePath).Logger()

	for attempt := 0; ; attempt++ {
		err := e.attempt(ctx, item)
		if err == nil {
			e.transport.Finish(item)
			if attempt > 0 {
				log.Info().Int("attempt", attempt+1).Msg("Transfer succeeded after retry")
			}
			return outcomeCompleted
		}

		e.agg.Rollback(item)
		e.transport.Cleanup(item)

		if e.canceller.Stopped(ctx) {
			log.Debug().Err(err).Msg("Transfer interrupted by cancellation")
			return outcomeInterrupted
		}

		if attempt+1 >= e.cfg.Retries {
			log.Error().Err(err).Int("attempts", attempt+1).Msg("Transfer failed")
			e.recordFailure(item, err)
			return outcomeFailed
		}

		delay := e.backoff(attempt)
		log.Warn().Err(err).Int("attempt", attempt+1).Dur("delay", delay).Msg("Transfer failed, retrying")
		if o, ok := e.sink.(RetryObserver); ok {
			o.OnRetry(item, attempt+1, err, delay)
		}
		if !e.wait(ctx, delay) {
			return outcomeInterrupted
		}
	}
}

// attempt runs one stream to its terminal event.
func (e *Executor) attempt(ctx context.Context, item Item) error {
	s := e.transport.Start(ctx, item)
	for ev := range s.Events() {
		switch ev.Kind {
		case StreamProgress:
			e.agg.OnBytes(item, ev.Bytes)
		case StreamEnd:
			e.agg.OnBytes(item, ev.Bytes)
			return nil
		case StreamError:
			return ev.Err
		}
	}
	return errStreamClosed
}

func (e *Executor) backoff(attempt int) time.Duration {
	if e.cfg.RetryBaseDelay <= 0 {
		return 0
	}
	if attempt >= 32 {
		return constants.RetryMaxDelay
	}
	d := e.cfg.RetryBaseDelay << uint(attempt)
	if d <= 0 || d > constants.RetryMaxDelay {
		d = constants.RetryMaxDelay
	}
	return d
}

// wait sleeps for d. It returns false if the run was cancelled meanwhile.
func (e *Executor) wait(ctx context.Context, d time.Duration) bool {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-e.canceller.Done():
			cancel()
		case <-waitCtx.Done():
		}
	}()

	if err := e.clock.Sleep(waitCtx, d); err != nil {
		e.canceller.Stopped(ctx)
		return false
	}
	return !e.canceller.Stopped(ctx)
}

func (e *Executor) recordFailure(item Item, err error) {
	e.mu.Lock()
	e.failed = append(e.failed, FailedTask{Item: item, Error: err.Error()})
	e.mu.Unlock()
}
