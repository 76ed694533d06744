package protocol

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/davidbz/studygate/internal/observability"
)

// ErrSequence is returned when an event would break the stream ordering.
var ErrSequence = errors.New("protocol: event out of sequence")

type flusher interface {
	Flush()
}

// Encoder writes Events to w, flushing after each one when w supports it.
// It rejects any event after error, any event after done, and done unless
// it directly follows final.
type Encoder struct {
	w        io.Writer
	terminal EventType
	done     bool
}

// NewEncoder creates an Encoder over w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes one event.
func (e *Encoder) Encode(event Event) error {
	if err := e.check(event.Type); err != nil {
		return err
	}

	data, err := event.MarshalData()
	if err != nil {
		return fmt.Errorf("encode %s: %w", event.Type, err)
	}

	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("write %s: %w", event.Type, err)
	}
	e.flush()

	switch {
	case event.Type == EventDone:
		e.done = true
	case event.IsTerminal():
		e.terminal = event.Type
	}

	observability.CountStreamEvent(string(event.Type))
	return nil
}

// Comment writes a keep-alive comment line that decoders discard.
func (e *Encoder) Comment(text string) error {
	if e.done || e.terminal == EventError {
		return ErrSequence
	}

	text = strings.ReplaceAll(text, "\n", " ")
	if _, err := fmt.Fprintf(e.w, ": %s\n\n", text); err != nil {
		return fmt.Errorf("write comment: %w", err)
	}
	e.flush()
	return nil
}

// Terminated reports whether final or error has been written.
func (e *Encoder) Terminated() bool {
	return e.terminal != ""
}

func (e *Encoder) check(t EventType) error {
	switch {
	case e.done:
		return fmt.Errorf("%w: %s after done", ErrSequence, t)
	case t == EventDone && e.terminal != EventFinal:
		return fmt.Errorf("%w: done must follow final", ErrSequence)
	case t != EventDone && e.terminal != "":
		return fmt.Errorf("%w: %s after %s", ErrSequence, t, e.terminal)
	default:
		return nil
	}
}

func (e *Encoder) flush() {
	if f, ok := e.w.(flusher); ok {
		f.Flush()
	}
}
