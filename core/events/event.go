package events

// Event represents a structured state change emitted by the swap protocol.
// Attributes are flat string pairs so downstream consumers (RPC, indexers,
// webhooks) can forward them without schema knowledge.
type Event struct {
	Sequence   int64             `json:"sequence,omitempty"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Emitter broadcasts events to downstream subscribers.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is the default for engines whose host has not wired an event sink.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}
