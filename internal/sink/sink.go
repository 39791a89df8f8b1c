// internal/sink/sink.go
// Package sink delivers detector events to their destinations: a text
// stream for logging and an optional serial line driving external TTL
// hardware.
package sink

import (
	"fmt"
	"io"
	"sync"

	"github.com/tneurolab/crossdetect/internal/detect"
)

// Sink consumes detector events.
type Sink interface {
	Emit(ev detect.Event) error
	Close() error
}

// WriterSink writes one line per event to an io.Writer.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter creates a text sink writing to w.
func NewWriter(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Emit writes the event as a single line.
func (s *WriterSink) Emit(ev detect.Event) error {
	state := "off"
	if ev.On {
		state = "on"
	}
	dir := "falling"
	if ev.Rising {
		dir = "rising"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "%d %s crossing=%d level=%g threshold=%g direction=%s\n",
		ev.SampleIndex, state, ev.CrossingIndex, ev.Level, ev.Threshold, dir)
	return err
}

// Close is a no-op; the writer is owned by the caller.
func (s *WriterSink) Close() error {
	return nil
}

// Fanout delivers each event to every sink, returning the first error.
type Fanout []Sink

func (f Fanout) Emit(ev detect.Event) error {
	var first error
	for _, s := range f {
		if err := s.Emit(ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f Fanout) Close() error {
	var first error
	for _, s := range f {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
