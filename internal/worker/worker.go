// Package worker contains the reservation worker pool (the consumer
// side of the job queue that executes the seat-locking protocol) and
// the expiry reaper that reclaims abandoned holds.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/reelseats/booking/internal/lock"
	"github.com/reelseats/booking/internal/model"
	"github.com/reelseats/booking/internal/queue"
	"github.com/reelseats/booking/internal/repository"
)

// ShowStore is the read-only view of shows the worker needs.
type ShowStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Show, error)
}

// SeatStore is the slice of the seat-state machine the worker drives.
// LockSeats must be all-or-nothing at serializable isolation;
// ReleaseSeats is the compensating transition used when a post-commit
// step fails.
type SeatStore interface {
	CountSeats(ctx context.Context, showID uint64, seatIDs []uint64) (int, error)
	LockSeats(ctx context.Context, showID uint64, seatIDs []uint64) error
	ReleaseSeats(ctx context.Context, showID uint64, seatIDs []uint64) (int64, error)
}

// ResultStore records job outcomes for polling clients.
type ResultStore interface {
	SetResult(ctx context.Context, jobID string, success bool, message string) error
}

// HoldStore keeps the pending-lock records consumed by the finalizer.
type HoldStore interface {
	Put(ctx context.Context, showID uint64, hold model.PendingLock) error
	Get(ctx context.Context, showID, userID uint64) (*model.PendingLock, error)
}

// Invalidator drops cached availability for a show after a committed
// state change.
type Invalidator interface {
	InvalidateShow(ctx context.Context, showID uint64) error
}

// Config carries the tunables a pool needs.  It is constructed
// explicitly and passed in so pools are testable in isolation.
type Config struct {
	LockTTL     time.Duration // TTL of each per-seat distributed lock
	MaxAttempts int           // total delivery ceiling per job
	MaxSeats    int           // upper bound on seats per request
}

// Pool processes reservation jobs.  Each invocation of Handle leaves
// the system in one of two observable end states: every requested seat
// LOCKED with a pending-lock record written, or no seat state changed
// and a failure result recorded.
type Pool struct {
	shows   ShowStore
	seats   SeatStore
	locker  lock.Locker
	holds   HoldStore
	results ResultStore
	avail   Invalidator
	cfg     Config
	now     func() time.Time
}

// NewPool wires a worker pool.  All dependencies are required.
func NewPool(shows ShowStore, seats SeatStore, locker lock.Locker, holds HoldStore, results ResultStore, avail Invalidator, cfg Config) *Pool {
	if shows == nil || seats == nil || locker == nil || holds == nil || results == nil || avail == nil {
		panic("nil dependency passed to NewPool")
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxSeats < 1 {
		cfg.MaxSeats = 10
	}
	return &Pool{shows: shows, seats: seats, locker: locker, holds: holds, results: results, avail: avail, cfg: cfg, now: time.Now}
}

// Handle implements queue.HandlerFunc.  Logical rejections are recorded
// as failed results and acked; transient infrastructure failures are
// returned wrapped queue.Retryable so the queue redelivers with
// backoff, and on the final attempt the failure is recorded before the
// job is rejected, so a job outcome is never silently dropped.
func (p *Pool) Handle(ctx context.Context, job queue.Job) error {
	err := p.process(ctx, job)
	if err == nil {
		return nil
	}
	if isLogical(err) {
		p.writeFailure(ctx, job.ID, err)
		return nil
	}
	// Transient failure: keep the queued marker so polling clients see
	// "pending" while redelivery is outstanding.
	if job.Attempt+1 >= p.cfg.MaxAttempts {
		p.writeFailure(ctx, job.ID, err)
	}
	return queue.Retryable(err)
}

// process runs the seat-locking protocol for one job.
func (p *Pool) process(ctx context.Context, job queue.Job) error {
	req := job.Request
	if len(req.SeatIDs) == 0 || len(req.SeatIDs) > p.cfg.MaxSeats || len(req.IsChild) != len(req.SeatIDs) {
		return repository.ErrInvalidSeats
	}

	// 1. The show must exist and still be in the future.
	show, err := p.shows.GetByID(ctx, req.ShowID)
	if err != nil {
		if errors.Is(err, repository.ErrShowNotFound) {
			return repository.ErrShowNotFound
		}
		return fmt.Errorf("load show %d: %w", req.ShowID, err)
	}
	if show.HasStarted(p.now()) {
		return repository.ErrShowExpired
	}

	// 2. Every requested seat must belong to the show's inventory.
	n, err := p.seats.CountSeats(ctx, req.ShowID, req.SeatIDs)
	if err != nil {
		return fmt.Errorf("verify seat inventory show %d: %w", req.ShowID, err)
	}
	if n != len(req.SeatIDs) {
		return repository.ErrInvalidSeats
	}

	// 3. Acquire distributed locks in ascending seat order, so two
	// requests overlapping in seats can never deadlock by acquiring in
	// opposite order.  Whatever happens next, every acquired handle is
	// released on the way out; TTL covers us if even that fails.
	sorted := make([]uint64, len(req.SeatIDs))
	copy(sorted, req.SeatIDs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var handles []*lock.Handle
	defer func() {
		releaseCtx := context.WithoutCancel(ctx)
		for _, h := range handles {
			if err := p.locker.Release(releaseCtx, h); err != nil {
				log.Printf("reservation-worker: release lock %s: %v", h.Key, err)
			}
		}
	}()
	for _, seatID := range sorted {
		h, err := p.locker.Acquire(ctx, lock.SeatKey(req.ShowID, seatID), p.cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("acquire lock show %d seat %d: %w", req.ShowID, seatID, err)
		}
		handles = append(handles, h)
	}

	// 4–6. Serializable re-check and transition.  The database is the
	// real arbiter: the transaction only commits when every row was
	// still AVAILABLE under FOR UPDATE.
	if err := p.seats.LockSeats(ctx, req.ShowID, sorted); err != nil {
		if errors.Is(err, repository.ErrSeatsUnavailable) {
			// Replay of a job that already locked these seats? If an
			// unexpired hold for this user covers the request, the
			// previous run did the work and this is a success.
			if hold, herr := p.holds.Get(ctx, req.ShowID, req.UserID); herr == nil && hold.Covers(req.SeatIDs) {
				return p.writeSuccess(ctx, job.ID, "seats already locked")
			}
			return repository.ErrSeatsUnavailable
		}
		return fmt.Errorf("lock seats show %d: %w", req.ShowID, err)
	}

	// 7. Best-effort cache invalidation: a failure risks a stale read
	// elsewhere, never a correctness violation here.
	if err := p.avail.InvalidateShow(ctx, req.ShowID); err != nil {
		log.Printf("reservation-worker: invalidate availability show %d: %v", req.ShowID, err)
	}

	// 8. Record the hold for the finalizer.  If this fails the lock
	// commit is compensated immediately; the reaper remains the
	// backstop should the release fail too.
	holdRec := model.PendingLock{UserID: req.UserID, SeatIDs: sorted, LockedAt: p.now().UTC()}
	if err := p.holds.Put(ctx, req.ShowID, holdRec); err != nil {
		if _, relErr := p.seats.ReleaseSeats(context.WithoutCancel(ctx), req.ShowID, sorted); relErr != nil {
			log.Printf("reservation-worker: compensating release show %d failed: %v", req.ShowID, relErr)
		}
		return fmt.Errorf("record pending lock show %d: %w", req.ShowID, err)
	}

	// 9. Publish the outcome.
	return p.writeSuccess(ctx, job.ID, "seats locked successfully")
}

// writeSuccess records a successful outcome.  A failed write is
// returned as a transient error: redelivery will take the idempotent
// replay path and only rewrite the result.
func (p *Pool) writeSuccess(ctx context.Context, jobID, msg string) error {
	if err := p.results.SetResult(ctx, jobID, true, msg); err != nil {
		return fmt.Errorf("record job result %s: %w", jobID, err)
	}
	return nil
}

func (p *Pool) writeFailure(ctx context.Context, jobID string, cause error) {
	if err := p.results.SetResult(context.WithoutCancel(ctx), jobID, false, cause.Error()); err != nil {
		log.Printf("reservation-worker: record failure for job %s: %v", jobID, err)
	}
}

// isLogical reports whether err is a terminal business rejection that
// must never be retried, as opposed to a transient infrastructure
// failure.  Lock contention is deliberately transient: the competing
// holder's TTL bounds how long it lasts.
func isLogical(err error) bool {
	return errors.Is(err, repository.ErrShowNotFound) ||
		errors.Is(err, repository.ErrShowExpired) ||
		errors.Is(err, repository.ErrInvalidSeats) ||
		errors.Is(err, repository.ErrSeatsUnavailable)
}
