package confirm

// EventType defines the type of event being broadcast.
type EventType string

const (
	EventQueueUpdated       EventType = "queue_updated"
	EventStateChanged       EventType = "state_changed"
	EventTransactionUpdated EventType = "transaction_updated"
	EventSimulationUpdated  EventType = "simulation_updated"
	EventFeeUpdated         EventType = "fee_updated"
	EventConfirmed          EventType = "confirmed"
	EventRejected           EventType = "rejected"
	EventError              EventType = "error"
)

// Event is a change notification. ID is the pending item it concerns, if any.
type Event struct {
	Type EventType   `json:"type"`
	ID   string      `json:"id,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// Subscriber is a channel that receives events.
type Subscriber chan Event
