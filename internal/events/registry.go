package events

import (
	"encoding/json"
	"fmt"
)

// EventFactory creates a new zero-value event of a specific type.
type EventFactory func() Event

// Registry maps event types to their factories for decoding history.
type Registry struct {
	factories map[string]EventFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]EventFactory)}
}

// Register adds an event type to the registry.
func (r *Registry) Register(eventType string, factory EventFactory) {
	r.factories[eventType] = factory
}

// Unmarshal decodes a raw event into its concrete type.
func (r *Registry) Unmarshal(raw RawEvent) (Event, error) {
	factory, ok := r.factories[raw.EventType]
	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", raw.EventType)
	}

	event := factory()
	if err := json.Unmarshal([]byte(raw.Payload), event); err != nil {
		return nil, fmt.Errorf("unmarshal event payload: %w", err)
	}
	return event, nil
}

// Decoded is a history row with its typed event. Event is nil and Err set
// when the row could not be decoded.
type Decoded struct {
	RawEvent
	Event Event
	Err   error
}

// DecodeAll decodes every row, keeping rows it cannot decode.
func (r *Registry) DecodeAll(raws []RawEvent) []Decoded {
	out := make([]Decoded, 0, len(raws))
	for _, raw := range raws {
		e, err := r.Unmarshal(raw)
		out = append(out, Decoded{RawEvent: raw, Event: e, Err: err})
	}
	return out
}

// DefaultRegistry returns a registry with every job event registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(EventJobCreated, func() Event { return &JobCreated{} })
	r.Register(EventJobStateChanged, func() Event { return &JobStateChanged{} })
	r.Register(EventJobMaterialized, func() Event { return &JobMaterialized{} })
	r.Register(EventJobFailed, func() Event { return &JobFailed{} })
	r.Register(EventJobDeleted, func() Event { return &JobDeleted{} })
	return r
}
