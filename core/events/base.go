package events

import "time"

type Kind string

// Event is the immutable record flowing over the bus. Events are passed by
// value to every subscriber and must never be mutated after creation.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
	Origin() string
}

type Base struct {
	kind      Kind
	timestamp time.Time
	origin    string
}

func NewBase(kind Kind, origin string) Base {
	return Base{kind: kind, timestamp: time.Now(), origin: origin}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}

func (b Base) Origin() string {
	return b.origin
}
