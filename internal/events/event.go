// Package events provides the in-process event bus and its SQLite history.
package events

import "time"

// Event is anything that can be published on the bus and appended to the
// history. Implementations embed BaseEvent.
type Event interface {
	EventType() string
	EntityType() string
	EntityID() string
	OccurredAt() time.Time
}

// BaseEvent carries the envelope every event shares. It is serialized with
// the payload, so decoded history keeps its original timestamp.
type BaseEvent struct {
	Type      string    `json:"type"`
	Entity    string    `json:"entity_type"`
	ID        string    `json:"entity_id"`
	Timestamp time.Time `json:"occurred_at"`
}

func (e BaseEvent) EventType() string     { return e.Type }
func (e BaseEvent) EntityType() string    { return e.Entity }
func (e BaseEvent) EntityID() string      { return e.ID }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// NewBaseEvent stamps an envelope with the current UTC time.
func NewBaseEvent(eventType, entityType, entityID string) BaseEvent {
	return BaseEvent{
		Type:      eventType,
		Entity:    entityType,
		ID:        entityID,
		Timestamp: time.Now().UTC(),
	}
}

// ForJob is NewBaseEvent for a job id.
func ForJob(eventType, jobID string) BaseEvent {
	return NewBaseEvent(eventType, EntityJob, jobID)
}
