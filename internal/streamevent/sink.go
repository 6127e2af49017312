package streamevent

import "context"

// Sink delivers events to a transport (WebSocket subscription, stdio
// notification stream). Implementations must be safe for concurrent Send:
// an activation's internal stream and the bidirectional channel's Request
// injection can both be writing to the same sink from different
// goroutines.
type Sink interface {
	// Send publishes a single event. Implementations are responsible for
	// wire framing (Marshal) and transport-specific delivery semantics
	// (buffering, back-pressure). Send returns an error when delivery
	// fails; the dispatcher treats a Send error as grounds to stop
	// producing further events for the subscription.
	Send(ctx context.Context, event Event) error

	// Close releases resources held by the sink. Idempotent: calling Close
	// more than once has no additional effect. After Close returns,
	// subsequent Send calls must return an error.
	Close(ctx context.Context) error
}
