// Package protocol implements the stream event wire format shared by the
// gateway and its clients: named server-sent events carrying JSON payloads.
//
//	event: delta
//	data: {"content":"..."}
//
// A stream is meta, any number of deltas, then exactly one of final or error.
// done follows final only and is always last.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/davidbz/studygate/internal/domain"
)

// EventType names a wire event.
type EventType string

const (
	EventMeta  EventType = "meta"
	EventDelta EventType = "delta"
	EventFinal EventType = "final"
	EventError EventType = "error"
	EventDone  EventType = "done"
)

// Meta identifies the stream before any model content exists.
type Meta struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
	RequestID string `json:"requestId"`
	Model     string `json:"model,omitempty"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Code      domain.ErrorCode `json:"code"`
	Message   string           `json:"message"`
	Retryable bool             `json:"retryable"`
}

// Event is one wire event. Only the fields of its Type are meaningful.
type Event struct {
	Type    EventType
	Meta    *Meta
	Content string
	Usage   *domain.Usage
	Error   *ErrorData
}

type contentPayload struct {
	Content string        `json:"content"`
	Usage   *domain.Usage `json:"usage,omitempty"`
}

// MetaEvent builds a meta event.
func MetaEvent(meta Meta) Event {
	return Event{Type: EventMeta, Meta: &meta}
}

// DeltaEvent builds a delta event.
func DeltaEvent(content string) Event {
	return Event{Type: EventDelta, Content: content}
}

// FinalEvent builds a final event.
func FinalEvent(content string, usage *domain.Usage) Event {
	return Event{Type: EventFinal, Content: content, Usage: usage}
}

// ErrorEvent builds an error event from any error.
func ErrorEvent(err error) Event {
	e := domain.AsError(err)
	if e == nil {
		e = domain.NewError(domain.CodeInternal, "unknown error")
	}

	message := e.Message
	if message == "" && e.Cause != nil {
		message = e.Cause.Error()
	}

	return Event{Type: EventError, Error: &ErrorData{
		Code:      e.Code,
		Message:   message,
		Retryable: e.Retryable,
	}}
}

// DoneEvent builds a done event.
func DoneEvent() Event {
	return Event{Type: EventDone}
}

// IsTerminal reports whether the event ends the content of a stream.
func (e Event) IsTerminal() bool {
	return e.Type == EventFinal || e.Type == EventError
}

// MarshalData encodes the JSON payload of the event.
func (e Event) MarshalData() ([]byte, error) {
	var payload any

	switch e.Type {
	case EventMeta:
		if e.Meta == nil {
			return nil, fmt.Errorf("meta event without payload")
		}
		payload = e.Meta
	case EventDelta:
		payload = contentPayload{Content: e.Content}
	case EventFinal:
		payload = contentPayload{Content: e.Content, Usage: e.Usage}
	case EventError:
		if e.Error == nil {
			return nil, fmt.Errorf("error event without payload")
		}
		payload = e.Error
	case EventDone:
		payload = struct{}{}
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}

	return json.Marshal(payload)
}

// ParseEvent decodes a payload for the named event type.
func ParseEvent(eventType string, data []byte) (Event, error) {
	switch EventType(eventType) {
	case EventMeta:
		var meta Meta
		if err := json.Unmarshal(data, &meta); err != nil {
			return Event{}, fmt.Errorf("decode meta: %w", err)
		}
		return MetaEvent(meta), nil

	case EventDelta, EventFinal:
		var payload contentPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return Event{}, fmt.Errorf("decode %s: %w", eventType, err)
		}
		if EventType(eventType) == EventDelta {
			return DeltaEvent(payload.Content), nil
		}
		return FinalEvent(payload.Content, payload.Usage), nil

	case EventError:
		var payload ErrorData
		if err := json.Unmarshal(data, &payload); err != nil {
			return Event{}, fmt.Errorf("decode error: %w", err)
		}
		return Event{Type: EventError, Error: &payload}, nil

	case EventDone:
		if !json.Valid(data) {
			return Event{}, fmt.Errorf("decode done: invalid json")
		}
		return DoneEvent(), nil

	default:
		return Event{}, fmt.Errorf("unknown event type %q", eventType)
	}
}
