package events

import "lendsettle/core/types"

// Event represents a structured settlement outcome.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter forwards events to downstream sinks such as the journal.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards every event. It is the default for engines built
// without a sink.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// MultiEmitter fans events out to each non-nil emitter in order.
type MultiEmitter []Emitter

// Emit implements the Emitter interface.
func (m MultiEmitter) Emit(evt Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}
