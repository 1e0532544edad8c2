package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart EventType = "start" // spawn attempt began
	EventReady EventType = "ready" // control endpoint answered
	EventAdopt EventType = "adopt" // an already-running sidecar was taken over
	EventStop  EventType = "stop"  // termination requested
	EventExit  EventType = "exit"  // child exited
	EventFail  EventType = "fail"  // start attempt failed
)

// Event is one lifecycle record for the sidecar.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Sidecar    string    `json:"sidecar"`
	Attempt    string    `json:"attempt,omitempty"` // start attempt id
	PID        int       `json:"pid,omitempty"`
	State      string    `json:"state"` // lifecycle state after the event
	Error      string    `json:"error,omitempty"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Reader returns the most recent events, newest first.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]Event, error)
}
