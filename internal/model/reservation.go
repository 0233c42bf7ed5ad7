package model

import "time"

// ReservationRequest is the transient unit of work carried by the job
// queue from the HTTP layer to the reservation workers.  It is owned by
// the queue from enqueue until completion and is not persisted beyond
// job retention.
//
// Fields:
//  ShowID  – show for which seats are requested.
//  SeatIDs – requested seats, 1..N where N is the configured cap.
//  UserID  – requesting user.
//  IsChild – per-seat child flag, same length and order as SeatIDs;
//            used for pricing at finalization.
type ReservationRequest struct {
	ShowID  uint64   `json:"show_id"`
	SeatIDs []uint64 `json:"seat_ids"`
	UserID  uint64   `json:"user_id"`
	IsChild []bool   `json:"is_child"`
}

// Job result statuses.  A queued marker is written when the request is
// accepted; workers overwrite it with a done record exactly once.
const (
	JobQueued = "queued"
	JobDone   = "done"
)

// JobResult records the outcome of a reservation job.  It is written by
// the worker, cached under the job ID with a short TTL and read many
// times by polling clients.  Once Status is done the record is
// immutable.
type JobResult struct {
	Status  string `json:"status"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// PendingLock marks "these seats are held for finalization" for a
// (show, user) pair.  It is written by the reservation worker after a
// successful lock, consumed by the booking finalizer, and expires on
// its own after the configured hold timeout.
type PendingLock struct {
	UserID   uint64    `json:"user_id"`
	SeatIDs  []uint64  `json:"seat_ids"`
	LockedAt time.Time `json:"locked_at"`
}

// Covers reports whether the pending lock's seat set is a superset of
// the given seats.  The finalizer uses this to validate that the caller
// only books seats it actually holds.
func (p *PendingLock) Covers(seatIDs []uint64) bool {
	held := make(map[uint64]struct{}, len(p.SeatIDs))
	for _, id := range p.SeatIDs {
		held[id] = struct{}{}
	}
	for _, id := range seatIDs {
		if _, ok := held[id]; !ok {
			return false
		}
	}
	return true
}
