package watcher

import "time"

// EventType defines the type of event being broadcast.
type EventType string

const (
	EventSynced     EventType = "synced"
	EventSyncFailed EventType = "sync_failed"
)

// Status describes the last poll of the pending queue.
type Status struct {
	LastSync time.Time `json:"last_sync"`
	Pending  int       `json:"pending"`
	Polls    int       `json:"polls"`
	Err      string    `json:"error,omitempty"`
}

// Event represents a polling event.
type Event struct {
	Type EventType
	Data Status
}

// Subscriber is a channel that receives events.
type Subscriber chan Event
