// Package cache holds the small Redis-backed stores that sit beside the
// seat store: job results, pending-lock records and availability-cache
// invalidation.  Keys follow the conventions of the wider system
// (job:{id}, booking:{show}:{user}, seats:{show}).
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reelseats/booking/internal/model"
)

// ErrResultNotFound is returned when no record exists for a job ID:
// either the ID was never issued or its result already expired.
var ErrResultNotFound = errors.New("job result not found")

// ResultStore records reservation job outcomes under job:{id} with a
// short TTL.  A "queued" marker is written at enqueue so that polling
// clients can tell a pending job from an unknown one; the worker
// overwrites it exactly once with the final result.
type ResultStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResultStore returns a ResultStore writing entries with the given TTL.
func NewResultStore(client *redis.Client, ttl time.Duration) *ResultStore {
	return &ResultStore{client: client, ttl: ttl}
}

func resultKey(jobID string) string { return "job:" + jobID }

// MarkQueued writes the pending marker for a freshly enqueued job.
// The write is NX: if a fast worker already recorded the final result,
// the marker loses and the done record stays untouched.
func (s *ResultStore) MarkQueued(ctx context.Context, jobID string) error {
	body, err := json.Marshal(model.JobResult{Status: model.JobQueued})
	if err != nil {
		return err
	}
	if err := s.client.SetNX(ctx, resultKey(jobID), body, s.ttl).Err(); err != nil {
		return fmt.Errorf("store job result %s: %w", jobID, err)
	}
	return nil
}

// SetResult records the final outcome of a job.
func (s *ResultStore) SetResult(ctx context.Context, jobID string, success bool, message string) error {
	return s.set(ctx, jobID, model.JobResult{Status: model.JobDone, Success: success, Message: message})
}

func (s *ResultStore) set(ctx context.Context, jobID string, res model.JobResult) error {
	body, err := json.Marshal(res)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, resultKey(jobID), body, s.ttl).Err(); err != nil {
		return fmt.Errorf("store job result %s: %w", jobID, err)
	}
	return nil
}

// Get returns the current record for a job ID, or ErrResultNotFound
// when nothing is stored under it.
func (s *ResultStore) Get(ctx context.Context, jobID string) (*model.JobResult, error) {
	body, err := s.client.Get(ctx, resultKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read job result %s: %w", jobID, err)
	}
	var res model.JobResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode job result %s: %w", jobID, err)
	}
	return &res, nil
}
