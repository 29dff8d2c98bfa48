package events

import (
	"sync"

	"xaumdca/core/types"
)

// Event represents a structured state change emitted by the ledger engines.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. metrics, logs).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Payload adapts a canonical types.Event to the Event interface.
type Payload struct {
	Evt *types.Event
}

// Wrap returns evt as an Event.
func Wrap(evt *types.Event) Payload { return Payload{Evt: evt} }

func (p Payload) EventType() string {
	if p.Evt == nil {
		return ""
	}
	return p.Evt.Type
}

func (p Payload) Event() *types.Event { return p.Evt }

// Canonical extracts the types.Event carried by e, if any.
func Canonical(e Event) (*types.Event, bool) {
	carrier, ok := e.(interface{ Event() *types.Event })
	if !ok {
		return nil, false
	}
	evt := carrier.Event()
	return evt, evt != nil
}

// Recorder keeps every emitted event in order. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the canonical payloads of recorded events with the given type.
func (r *Recorder) OfType(eventType string) []*types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Event
	for _, e := range r.events {
		if e.EventType() != eventType {
			continue
		}
		if evt, ok := Canonical(e); ok {
			out = append(out, evt)
		}
	}
	return out
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Multi fans every event out to each emitter in order.
type Multi []Emitter

func (m Multi) Emit(e Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(e)
		}
	}
}
