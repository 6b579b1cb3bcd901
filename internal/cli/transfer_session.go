package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/devxfer/devxfer/internal/constants"
	"github.com/devxfer/devxfer/internal/events"
	"github.com/devxfer/devxfer/internal/logging"
	"github.com/devxfer/devxfer/internal/progress"
	"github.com/devxfer/devxfer/internal/transfer"
)

var (
	errTransferCancelled = errors.New("transfer cancelled")
	errTransferFailed    = errors.New("some files failed to transfer")
)

// transferFlags are shared by pull and push.
type transferFlags struct {
	report      string
	retryReport string
	events      bool
}

func addTransferFlags(cmd *cobra.Command, tf *transferFlags) {
	cmd.Flags().StringVar(&tf.report, "report", "", "Write the result as YAML to this file")
	cmd.Flags().StringVar(&tf.retryReport, "retry-report", "", "Retry the failed tasks of an earlier --report")
	cmd.Flags().BoolVar(&tf.events, "events", false, "Print engine events as JSON lines on stdout")
}

// uiSession connects one command run to the terminal: the progress UI on
// stderr, and optionally the event log on stdout.
type uiSession struct {
	ui     *progress.TransferUI
	sink   transfer.Sink
	logger *logging.Logger
	out    io.Writer

	bus        *events.EventBus
	eventsDone <-chan struct{}
}

func newUISession(cmd *cobra.Command, withEvents bool) *uiSession {
	errOut := cmd.ErrOrStderr()
	var ui *progress.TransferUI
	if f, ok := errOut.(*os.File); ok {
		ui = progress.NewTransferUI(f)
	} else {
		ui = progress.NewPlainUI(errOut)
	}

	log := GetLogger()
	log.SetOutput(ui.LogWriter())

	s := &uiSession{ui: ui, sink: ui, logger: log, out: errOut}
	if withEvents {
		s.bus = events.NewEventBus(constants.EventBusDefaultBuffer)
		s.eventsDone = progress.LogEvents(s.bus, logging.NewLogger(logging.ModeJSON, cmd.OutOrStdout()))
		s.sink = transfer.MultiSink{ui, transfer.NewBusSink(s.bus)}
	}
	return s
}

// close drains the event log.
func (s *uiSession) close() {
	if s.bus == nil {
		return
	}
	s.bus.Close()
	<-s.eventsDone
	if dropped := s.bus.GetDroppedEventCount(); dropped > 0 {
		s.logger.Debug().Int64("dropped", dropped).Msg("events dropped")
	}
}

// finish prints the summary, writes the report and maps the outcome to the
// command's error.
func (s *uiSession) finish(result *transfer.Result, runErr error, report *Report, reportPath string) error {
	if result != nil {
		printSummary(s.out, result)
		if reportPath != "" {
			report.Result = result
			report.CreatedAt = time.Now()
			if err := writeReport(reportPath, report); err != nil {
				s.logger.Error().Err(err).Str("path", reportPath).Msg("Failed to write report")
			} else {
				fmt.Fprintf(s.out, "Report written to %s\n", reportPath)
			}
		}
	}

	switch {
	case runErr != nil:
		return runErr
	case result.Cancelled:
		return errTransferCancelled
	case !result.Success:
		if reportPath != "" {
			fmt.Fprintf(s.out, "Retry the failed files with --retry-report %s\n", reportPath)
		}
		return fmt.Errorf("%w: %d failed tasks", errTransferFailed, len(result.FailedTasks))
	}
	return nil
}
