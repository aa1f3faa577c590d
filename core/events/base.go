package events

import (
	"context"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/koscakluka/luna/core/correlation"
)

type Kind string

func (k Kind) String() string { return string(k) }

// Payload is the free-form body of an event. Values should be plain data.
type Payload map[string]any

// Event is an immutable notification. The zero Event stands for "no event".
type Event struct {
	id            string
	kind          Kind
	timestamp     time.Time
	correlationID correlation.ID
	payload       Payload
}

type Option func(*Event)

// WithCorrelationID tags the event with id.
func WithCorrelationID(id correlation.ID) Option {
	return func(e *Event) { e.correlationID = id }
}

// WithContext tags the event with the correlation id found on ctx, if any.
func WithContext(ctx context.Context) Option {
	return func(e *Event) {
		if id, ok := correlation.FromContext(ctx); ok {
			e.correlationID = id
		}
	}
}

func WithTimestamp(ts time.Time) Option {
	return func(e *Event) { e.timestamp = ts }
}

// New builds an event of the given kind. The payload is copied so later
// changes to the caller's map are not observed by receivers.
func New(kind Kind, payload Payload, opts ...Option) Event {
	event := Event{
		id:        uuid.NewString(),
		kind:      kind,
		timestamp: time.Now(),
		payload:   maps.Clone(payload),
	}
	if event.payload == nil {
		event.payload = Payload{}
	}
	for _, opt := range opts {
		opt(&event)
	}
	return event
}

func (e Event) ID() string           { return e.id }
func (e Event) Kind() Kind           { return e.kind }
func (e Event) Timestamp() time.Time { return e.timestamp }
func (e Event) IsZero() bool         { return e.id == "" }

func (e Event) CorrelationID() (correlation.ID, bool) {
	return e.correlationID, !e.correlationID.IsZero()
}

// Payload returns a copy of the event body.
func (e Event) Payload() Payload { return maps.Clone(e.payload) }

func (e Event) Value(key string) (any, bool) {
	v, ok := e.payload[key]
	return v, ok
}

// String returns the payload value under key if it is a string.
func (e Event) String(key string) string {
	s, _ := e.payload[key].(string)
	return s
}

func (e Event) Bool(key string) bool {
	b, _ := e.payload[key].(bool)
	return b
}

// Float returns numeric payload values as float64.
func (e Event) Float(key string) (float64, bool) {
	switch v := e.payload[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Context returns ctx carrying the event's correlation id, when it has one.
func (e Event) Context(ctx context.Context) context.Context {
	return correlation.With(ctx, e.correlationID)
}
