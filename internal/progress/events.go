package progress

import (
	"github.com/devxfer/devxfer/internal/events"
	"github.com/devxfer/devxfer/internal/logging"
)

// LogEvents writes one structured log line per bus event until the bus is
// closed. Progress events are logged at debug level. The returned channel
// is closed once the subscription drains.
func LogEvents(bus *events.EventBus, logger *logging.Logger) <-chan struct{} {
	ch := bus.SubscribeAll()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for ev := range ch {
			logEvent(logger, ev)
		}
	}()
	return done
}

func logEvent(logger *logging.Logger, ev events.Event) {
	switch e := ev.(type) {
	case *events.ScanProgressEvent:
		logger.Debug().
			Str("event", string(e.Type())).
			Str("run_id", e.RunID).
			Int("files_found", e.FilesFound).
			Str("path", e.CurrentPath).
			Msg("scanning")

	case *events.ItemEvent:
		msg := "item started"
		if e.Type() == events.EventItemCompleted {
			msg = "item completed"
		}
		logger.Info().
			Str("event", string(e.Type())).
			Str("run_id", e.RunID).
			Str("kind", e.Kind).
			Str("path", e.Path).
			Int64("size", e.Size).
			Bool("success", e.Success).
			Int("completed_files", e.CompletedFiles).
			Int("failed_files", e.FailedFiles).
			Int("total_files", e.TotalFiles).
			Msg(msg)

	case *events.ProgressEvent:
		logger.Debug().
			Str("event", string(e.Type())).
			Str("run_id", e.RunID).
			Str("path", e.Path).
			Int("file_percent", e.FilePercent).
			Float64("total_percent", e.TotalPercent).
			Int64("transferred_bytes", e.TransferredBytes).
			Int64("total_bytes", e.TotalBytes).
			Float64("rate", e.Rate).
			Dur("elapsed", e.Elapsed).
			Msg("progress")

	case *events.ErrorEvent:
		logger.Warn().
			Str("event", string(e.Type())).
			Str("run_id", e.RunID).
			Str("path", e.Path).
			Err(e.Error).
			Msg("transfer error")

	case *events.CancelledEvent:
		logger.Warn().
			Str("event", string(e.Type())).
			Str("run_id", e.RunID).
			Msg("cancel requested")

	case *events.RunFinishedEvent:
		logger.Info().
			Str("event", string(e.Type())).
			Str("run_id", e.RunID).
			Bool("success", e.Success).
			Bool("cancelled", e.Cancelled).
			Str("error", e.Error).
			Int("completed_files", e.CompletedFiles).
			Int("failed_files", e.FailedFiles).
			Int("total_files", e.TotalFiles).
			Dur("duration", e.Duration).
			Msg("run finished")

	default:
		logger.Debug().Str("event", string(ev.Type())).Msg("event")
	}
}
