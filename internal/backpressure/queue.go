// Package backpressure implements the bounded per-subscription delivery
// queue described in spec §4.4: a fixed-capacity buffer between an
// activation's producing goroutine and the transport's consuming write
// loop, with a drop-slowest-subscription policy on overflow rather than
// unbounded growth or a blocking producer.
package backpressure

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

// DefaultDepth is the target queue depth from spec §4.4 ("≤200 pending
// messages per subscription").
const DefaultDepth = 200

// ErrOverflow is returned by Push when the queue is full. The caller (a
// transport session) responds by tearing down the offending subscription
// with an unrecoverable Error event rather than blocking the producer or
// growing the queue unboundedly.
var ErrOverflow = errors.New("backpressure: subscription queue overflow")

// Queue is a bounded, non-blocking mailbox from one activation's producing
// goroutine to one transport session's consuming write loop. An optional
// rate.Limiter throttles the consuming side — the send-side throttle that
// backs the bounded-queue policy (spec §4.4): a burst of events fills the
// queue quickly, but the write loop drains it no faster than the
// configured rate, smoothing delivery to a transport that can't keep up
// with instantaneous bursts without tripping the overflow/drop path on
// every burst.
type Queue[T any] struct {
	ch      chan T
	limiter *rate.Limiter
}

// New constructs a Queue with the given capacity and no rate limit.
// depth<=0 uses DefaultDepth.
func New[T any](depth int) *Queue[T] {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Queue[T]{ch: make(chan T, depth)}
}

// NewRateLimited constructs a Queue whose consuming side is throttled to
// eventsPerSecond, with bursts up to burst events.
func NewRateLimited[T any](depth int, eventsPerSecond float64, burst int) *Queue[T] {
	q := New[T](depth)
	q.limiter = rate.NewLimiter(rate.Limit(eventsPerSecond), burst)
	return q
}

// Wait blocks the consuming write loop until the rate limiter admits one
// more event, or ctx is cancelled. It is a no-op when no limiter is
// configured.
func (q *Queue[T]) Wait(ctx context.Context) error {
	if q.limiter == nil {
		return nil
	}
	return q.limiter.Wait(ctx)
}

// Push enqueues item without blocking. It returns ErrOverflow instead of
// blocking the producer when the queue is full, so a slow consumer never
// stalls the activation goroutine producing events (spec §5 "Activations
// must not perform unbounded synchronous work between suspension points").
func (q *Queue[T]) Push(item T) error {
	select {
	case q.ch <- item:
		return nil
	default:
		return ErrOverflow
	}
}

// C returns the receive side of the queue for the consuming write loop.
func (q *Queue[T]) C() <-chan T { return q.ch }

// Close closes the queue. Callers must ensure no further Push calls occur
// after Close; transport sessions close the queue once they've stopped
// accepting new events for a cancelled or completed subscription.
func (q *Queue[T]) Close() { close(q.ch) }
