// Package lock provides short-lived named mutual exclusion for seat
// reservation.  The production implementation is backed by Redis; an
// in-memory implementation with the same semantics is used in tests.
// Locks are an optimization that keeps contending workers from paying
// for a database transaction they are going to lose; the serializable
// transaction in the seat store remains the correctness backstop.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotAcquired is returned when the lock is currently held by another
// owner.  Callers treat this as contention and may retry the whole
// operation later.
var ErrNotAcquired = errors.New("lock not acquired")

// ErrUnavailable is returned when the lock service cannot be reached.
// It is a transient infrastructure failure, distinct from contention.
var ErrUnavailable = errors.New("lock service unavailable")

// Handle proves exclusive ownership of one lock key for a bounded TTL.
// It is owned by the worker that acquired it and must never be shared;
// release is by Release or, if the holder dies, by TTL expiry.
type Handle struct {
	Key   string
	Token string
}

// Locker grants and releases named exclusive locks.
type Locker interface {
	// Acquire attempts to take the named lock for the given TTL.  It
	// returns ErrNotAcquired on contention and ErrUnavailable (wrapped)
	// when the lock service cannot be reached.  Acquire never blocks
	// waiting for a held lock.
	Acquire(ctx context.Context, key string, ttl time.Duration) (*Handle, error)

	// Release frees a previously acquired lock.  Releasing a handle
	// whose TTL already expired (or that was taken over) is not an
	// error; the lock is simply gone.
	Release(ctx context.Context, h *Handle) error
}

// SeatKey derives the deterministic lock key for one seat of a show.
// The same derivation is used by every worker so that overlapping
// requests contend on identical keys.
func SeatKey(showID, seatID uint64) string {
	return fmt.Sprintf("lock:%d:%d", showID, seatID)
}
