package interfaces

import "context"

// EventType identifies an event on the in-process bus.
type EventType string

const (
	EventJobCreated      EventType = "job_created"
	EventJobUpdated      EventType = "job_updated"
	EventJobCompleted    EventType = "job_completed"
	EventJobFailed       EventType = "job_failed"
	EventListChanged     EventType = "list_changed"
	EventPipelineUpdated EventType = "pipeline_updated"
)

// Event is a single published event with an arbitrary payload.
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler processes a published event.
type EventHandler func(ctx context.Context, event Event) error

// EventService is an in-process pub/sub bus connecting services to the
// WebSocket push layer and the pipeline watcher.
type EventService interface {
	Subscribe(eventType EventType, handler EventHandler) error
	Publish(ctx context.Context, event Event) error
	PublishSync(ctx context.Context, event Event) error
	Close() error
}
