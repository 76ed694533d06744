package protocol

import (
	"io"
)

// Decoder reads Events from one input stream.
// Blocks without a data line, with invalid JSON or with an unknown event
// name are dropped. A Decoder cannot be rewound; attach a new one to a
// fresh stream to restart.
type Decoder struct {
	blocks *BlockReader
	err    error
}

// NewDecoder creates a Decoder over r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{blocks: NewBlockReader(r)}
}

// Next returns the next event, or io.EOF once the input is exhausted.
func (d *Decoder) Next() (Event, error) {
	if d.err != nil {
		return Event{}, d.err
	}

	for {
		block, err := d.blocks.Next()
		if err != nil {
			d.err = err
			return Event{}, err
		}

		if block.Data == "" {
			continue
		}

		event, parseErr := ParseEvent(block.Event, []byte(block.Data))
		if parseErr != nil {
			continue
		}

		return event, nil
	}
}

// DecodeAll reads every event until EOF.
func DecodeAll(r io.Reader) ([]Event, error) {
	d := NewDecoder(r)

	var events []Event
	for {
		event, err := d.Next()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, event)
	}
}
