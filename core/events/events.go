package events

// Event represents a structured state change emitted by the engine.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// MemoryEmitter collects emitted events in order. Primarily intended for
// tests and the in-process event log served over RPC.
type MemoryEmitter struct {
	events []Event
}

// Emit implements the Emitter interface.
func (m *MemoryEmitter) Emit(evt Event) {
	m.events = append(m.events, evt)
}

// Events returns the emitted events in emission order.
func (m *MemoryEmitter) Events() []Event {
	return append([]Event(nil), m.events...)
}
