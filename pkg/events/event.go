package events

import (
	"context"
	"strings"
	"time"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "CHAT_MESSAGE_SENT").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// Handler processes one delivered event. A returned error asks the bus to redeliver
// where the transport supports it.
type Handler func(ctx context.Context, event Event) error

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close()
}

type Subscriber interface {
	// Subscribe delivers events of eventType to handler. Subscribers sharing a
	// group split the stream between them.
	Subscribe(eventType, group string, handler Handler) error
	Close()
}

const (
	SubjectPrefix = "events."

	// OccurredAtHeader carries the event time alongside the JSON payload.
	OccurredAtHeader = "Occurred-At"
)

func Subject(eventType string) string {
	return SubjectPrefix + eventType
}

func TypeFromSubject(subject string) string {
	return strings.TrimPrefix(subject, SubjectPrefix)
}

// ParseOccurredAt falls back to now when the header is missing or malformed.
func ParseOccurredAt(value string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Now().UTC()
}
