package transfer

import (
	"context"
	"errors"
	"io"

	"github.com/devxfer/devxfer/internal/constants"
)

var errStreamClosed = errors.New("stream closed without a terminal event")

// StreamEventKind tags a StreamEvent.
type StreamEventKind int

const (
	StreamProgress StreamEventKind = iota // Bytes is the cumulative count
	StreamEnd                             // terminal: transfer finished
	StreamError                           // terminal: Err is set
)

// StreamEvent is emitted by a Stream.
type StreamEvent struct {
	Kind  StreamEventKind
	Bytes int64
	Err   error
}

// Stream is one in-flight byte transfer. It emits any number of progress
// events followed by exactly one terminal event, then closes.
type Stream struct {
	events chan StreamEvent
}

// NewStream runs fn on its own goroutine. fn reports cumulative progress
// through report; its return value becomes the terminal event.
func NewStream(fn func(report func(total int64)) error) *Stream {
	s := &Stream{events: make(chan StreamEvent, constants.StreamEventBuffer)}
	go func() {
		defer close(s.events)
		var last int64
		err := fn(func(total int64) {
			last = total
			s.events <- StreamEvent{Kind: StreamProgress, Bytes: total}
		})
		if err != nil {
			s.events <- StreamEvent{Kind: StreamError, Bytes: last, Err: err}
			return
		}
		s.events <- StreamEvent{Kind: StreamEnd, Bytes: last}
	}()
	return s
}

// Events returns the event channel. Consumers must read until a terminal event.
func (s *Stream) Events() <-chan StreamEvent {
	return s.events
}

// copyWithProgress copies src to dst, reporting the running total after
// every write. It stops with ctx.Err() once ctx is done.
func copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, report func(int64)) (int64, error) {
	buf := make([]byte, constants.StreamBufferSize)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			w, err := dst.Write(buf[:n])
			total += int64(w)
			if err != nil {
				return total, err
			}
			if w != n {
				return total, io.ErrShortWrite
			}
			report(total)
		}
		if readErr == io.EOF {
			return total, nil
		}
		if readErr != nil {
			return total, readErr
		}
	}
}

// progressReader reports the running total of bytes read.
type progressReader struct {
	ctx    context.Context
	r      io.Reader
	report func(int64)
	total  int64
}

func (p *progressReader) Read(b []byte) (int, error) {
	if err := p.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := p.r.Read(b)
	if n > 0 {
		p.total += int64(n)
		p.report(p.total)
	}
	return n, err
}
