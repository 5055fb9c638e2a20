package domain

import "context"

// Publisher delivers job events to whoever is listening.
type Publisher interface {
	// Publish fans the event out to the subscribers of event.JobID.
	// Delivery is best-effort: with no subscriber attached the event is
	// only kept in the short-lived history, if the implementation has one.
	Publish(ctx context.Context, event Event) error
}

// Channel is the notification channel addressed by job identifier.
// It decouples the runner from the transport (in-process, Redis, ...).
type Channel interface {
	Publisher

	// Subscribe streams live events for jobID until ctx is cancelled.
	// Events published before the call are not delivered; use History.
	Subscribe(ctx context.Context, jobID string) (<-chan Event, error)

	// History returns the retained events of jobID in sequence order.
	History(ctx context.Context, jobID string) ([]Event, error)
}
