package queue

import "context"

// Job handles one message type pulled from the queue.
type Job interface {
	Name() string

	// Type is the message type routed to this job.
	Type() string

	// Handle processes one payload. Returning an error schedules a retry
	// until the retry limit is reached, then the message is dead-lettered.
	Handle(ctx context.Context, payload interface{}) error
}
