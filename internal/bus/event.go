package bus

import "time"

// Event represents a from-core event published on the bus: results,
// progress, and lifecycle notifications flowing out to consumers.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Command represents a to-core command sent into the bus: an external
// request (start a sync, supply a login code) addressed to a component.
type Command struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// ErrorPayload is the payload of core:error events emitted by WithError.
type ErrorPayload struct {
	Context string
	Message string
}
