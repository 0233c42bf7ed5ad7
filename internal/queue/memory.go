package queue

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/reelseats/booking/internal/model"
)

// MemoryQueue is an in-process queue with the same delivery contract as
// the broker: at-least-once, bounded retries for Retryable errors, no
// ordering between independent jobs.  It backs unit tests and local
// development without a running broker.
type MemoryQueue struct {
	jobs        chan Job
	maxAttempts int
}

// NewMemoryQueue returns a queue buffering up to size jobs.
func NewMemoryQueue(size, maxAttempts int) *MemoryQueue {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &MemoryQueue{jobs: make(chan Job, size), maxAttempts: maxAttempts}
}

// Enqueue assigns a job ID and buffers the request.  It fails when the
// buffer is full rather than blocking the caller.
func (q *MemoryQueue) Enqueue(ctx context.Context, req model.ReservationRequest) (string, error) {
	jobID := uuid.NewString()
	select {
	case q.jobs <- Job{ID: jobID, Request: req}:
		return jobID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	default:
		return "", errors.New("queue full")
	}
}

// Consume runs a pool of workers over the buffered jobs until ctx is
// cancelled.  Retryable failures are redelivered immediately (tests
// have no use for real backoff) up to the attempt ceiling.
func (q *MemoryQueue) Consume(ctx context.Context, workers int, handle HandlerFunc) error {
	if workers < 1 {
		workers = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-q.jobs:
					err := handle(ctx, job)
					if err == nil {
						continue
					}
					if IsRetryable(err) && job.Attempt+1 < q.maxAttempts {
						job.Attempt++
						select {
						case q.jobs <- job:
						case <-ctx.Done():
							return
						}
						continue
					}
					log.Printf("queue: job %s failed terminally: %v", job.ID, err)
				}
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}
