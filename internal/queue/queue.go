// Package queue carries reservation requests from the HTTP layer to the
// reservation workers.  The production implementation is a durable
// RabbitMQ queue with at-least-once delivery and retry with backoff; an
// in-memory queue with the same contract backs unit tests.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/reelseats/booking/internal/model"
)

// Job is one delivery of a reservation request.  Attempt counts prior
// deliveries of the same job, so the handler can tell a fresh job from
// a replay.
type Job struct {
	ID      string
	Attempt int
	Request model.ReservationRequest
}

// HandlerFunc processes one job.  Returning nil acknowledges the job:
// either it succeeded or its terminal failure has been recorded.
// Returning an error wrapped with Retryable requests redelivery with
// backoff; any other error is rejected without requeue and logged.
type HandlerFunc func(ctx context.Context, job Job) error

// Enqueuer is the producer side of the queue.  Enqueue must return
// quickly; it never touches seat locks or the seat store.
type Enqueuer interface {
	Enqueue(ctx context.Context, req model.ReservationRequest) (string, error)
}

// retryableError marks a transient infrastructure failure that the
// queue should redeliver, up to the configured attempt ceiling.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable wraps err so the queue will redeliver the job.  Wrapping
// nil returns nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether err (or anything it wraps) was marked
// with Retryable.
func IsRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// RetryDelay computes the exponential backoff before redelivering a job
// that failed on the given zero-based attempt: base, 2*base, 4*base...
// capped at 30 seconds.
func RetryDelay(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= 30*time.Second {
			return 30 * time.Second
		}
	}
	return d
}
