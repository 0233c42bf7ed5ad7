// Package repository implements data access to the seat store.  This
// file defines the sentinel errors shared across repositories and
// handlers.  They form the logical half of the failure taxonomy:
// everything here is terminal and must never be retried, in contrast
// to transient lock-service or store failures which the queue retries
// with backoff.
package repository

import "errors"

// ErrShowNotFound indicates that a show was not located in the DB.
var ErrShowNotFound = errors.New("show not found")

// ErrShowExpired is returned when a reservation or finalization is
// attempted for a show whose start time has already passed.
var ErrShowExpired = errors.New("show already started")

// ErrInvalidSeats is returned when a requested seat does not belong to
// the show's materialized inventory.  This guards against callers
// racing a seat-layout change or submitting foreign seat IDs.
var ErrInvalidSeats = errors.New("seats do not belong to show")

// ErrSeatsUnavailable is returned when the serializable re-check finds
// at least one requested seat in a state other than AVAILABLE.  The
// whole request fails; no partial lock is ever committed.
var ErrSeatsUnavailable = errors.New("seats not available")

// ErrReservationExpired is returned by the finalizer when no unexpired
// pending lock exists for the (show, user) pair.
var ErrReservationExpired = errors.New("seat lock expired or not found")

// ErrSeatSelectionMismatch is returned by the finalizer when the seats
// being booked are not covered by the pending lock's seat set.
var ErrSeatSelectionMismatch = errors.New("seat selection does not match held seats")

// ErrPartialRelease is reported when a release matched fewer rows than
// requested: some seats had already been booked or reclaimed.  The
// release of the remaining seats still commits.
var ErrPartialRelease = errors.New("some seats were not released")
