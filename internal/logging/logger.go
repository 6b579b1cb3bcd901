// Package logging provides structured logging for the CLI and the transfer engine.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Output modes understood by NewLogger.
const (
	ModeConsole = "console" // human-readable lines (default)
	ModeJSON    = "json"    // one JSON object per line, for scripting
)

// Logger wraps zerolog with mode-specific behavior.
type Logger struct {
	zlog   zerolog.Logger
	mode   string
	output io.Writer // current output writer
}

// NewLogger creates a new logger for the specified mode writing to w.
// Progress bars own stderr while a transfer runs, so callers usually
// redirect logs through the progress UI writer (see SetOutput).
func NewLogger(mode string, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	l := &Logger{mode: mode}
	l.SetOutput(w)
	return l
}

// NewDefaultCLILogger creates a default console logger on stderr.
func NewDefaultCLILogger() *Logger {
	return NewLogger(ModeConsole, os.Stderr)
}

// NewNopLogger returns a logger that discards everything. Used by tests and
// library callers that do not care about engine logs.
func NewNopLogger() *Logger {
	return &Logger{zlog: zerolog.Nop(), mode: ModeJSON, output: io.Discard}
}

// Info returns an info level event.
func (l *Logger) Info() *zerolog.Event {
	return l.zlog.Info()
}

// Error returns an error level event.
func (l *Logger) Error() *zerolog.Event {
	return l.zlog.Error()
}

// Debug returns a debug level event.
func (l *Logger) Debug() *zerolog.Event {
	return l.zlog.Debug()
}

// Warn returns a warn level event.
func (l *Logger) Warn() *zerolog.Event {
	return l.zlog.Warn()
}

// With creates a child logger context with additional fields.
func (l *Logger) With() zerolog.Context {
	return l.zlog.With()
}

// Child returns a new Logger carrying the given string field on every event.
func (l *Logger) Child(key, value string) *Logger {
	return &Logger{
		zlog:   l.zlog.With().Str(key, value).Logger(),
		mode:   l.mode,
		output: l.output,
	}
}

// SetOutput changes the output writer for the logger.
// This is useful for redirecting logs through progress bars.
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
	if l.mode == ModeJSON {
		l.zlog = zerolog.New(w).With().Timestamp().Logger()
		return
	}
	l.zlog = zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
	}).With().Timestamp().Logger()
}

// Output returns the current output writer.
func (l *Logger) Output() io.Writer {
	return l.output
}

// SetGlobalLevel sets the global log level.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// ParseLevel maps a config string to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func init() {
	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Configure global logger
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	})
}
