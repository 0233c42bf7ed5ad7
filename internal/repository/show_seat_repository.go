package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/reelseats/booking/internal/model"
)

// ShowSeatRepo encapsulates the seat-state machine persisted in
// show_seats.  Every status transition runs at serializable isolation:
// the distributed lock keeps workers from racing each other, but the
// database's own concurrency control is the authoritative guard
// against any writer that bypasses the queue.
type ShowSeatRepo struct {
	db *sql.DB
}

// NewShowSeatRepo constructs a ShowSeatRepo given a DB handle.
func NewShowSeatRepo(db *sql.DB) *ShowSeatRepo {
	return &ShowSeatRepo{db: db}
}

// DB exposes the underlying handle for handler-orchestrated transactions.
func (r *ShowSeatRepo) DB() *sql.DB { return r.db }

// placeholders returns "?, ?, ..." for n bound parameters.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func seatArgs(showID uint64, seatIDs []uint64) []interface{} {
	args := make([]interface{}, 0, len(seatIDs)+1)
	args = append(args, showID)
	for _, id := range seatIDs {
		args = append(args, id)
	}
	return args
}

// CountSeats returns how many of the given seat IDs belong to the
// show's inventory, regardless of status.  A count below the requested
// length means the request contains foreign seat IDs.
func (r *ShowSeatRepo) CountSeats(ctx context.Context, showID uint64, seatIDs []uint64) (int, error) {
	if len(seatIDs) == 0 {
		return 0, nil
	}
	q := `SELECT COUNT(*) FROM show_seats WHERE show_id = ? AND seat_id IN (` + placeholders(len(seatIDs)) + `)`
	var n int
	if err := r.db.QueryRowContext(ctx, q, seatArgs(showID, seatIDs)...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// LockSeats transitions the requested seats AVAILABLE → LOCKED inside a
// single serializable transaction.  The rows are re-read with FOR
// UPDATE and the transition only happens when every row exists and is
// AVAILABLE; otherwise the transaction rolls back and
// ErrSeatsUnavailable is returned with no state changed.
func (r *ShowSeatRepo) LockSeats(ctx context.Context, showID uint64, seatIDs []uint64) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	selQ := `SELECT status FROM show_seats
	         WHERE show_id = ? AND seat_id IN (` + placeholders(len(seatIDs)) + `) FOR UPDATE`
	rows, err := tx.QueryContext(ctx, selQ, seatArgs(showID, seatIDs)...)
	if err != nil {
		return err
	}
	count := 0
	allAvailable := true
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			rows.Close()
			return err
		}
		count++
		if status != model.SeatAvailable {
			allAvailable = false
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if count != len(seatIDs) || !allAvailable {
		return ErrSeatsUnavailable
	}

	updQ := `UPDATE show_seats SET status = ?, updated_at = UTC_TIMESTAMP()
	         WHERE show_id = ? AND seat_id IN (` + placeholders(len(seatIDs)) + `)`
	args := append([]interface{}{model.SeatLocked}, seatArgs(showID, seatIDs)...)
	if _, err := tx.ExecContext(ctx, updQ, args...); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// BookSeatsTx transitions the given seats LOCKED → BOOKED within an
// existing transaction.  All rows must currently be LOCKED; on a count
// mismatch it returns ErrSeatsUnavailable and the caller is expected to
// roll back.
func (r *ShowSeatRepo) BookSeatsTx(ctx context.Context, tx *sql.Tx, showID uint64, seatIDs []uint64) error {
	q := `UPDATE show_seats SET status = ?, updated_at = UTC_TIMESTAMP()
	      WHERE show_id = ? AND status = ? AND seat_id IN (` + placeholders(len(seatIDs)) + `)`
	args := []interface{}{model.SeatBooked, showID, model.SeatLocked}
	for _, id := range seatIDs {
		args = append(args, id)
	}
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != int64(len(seatIDs)) {
		return ErrSeatsUnavailable
	}
	return nil
}

// ReleaseSeats transitions the requested seats LOCKED → AVAILABLE in a
// serializable transaction and returns how many rows actually changed.
// Seats that had already been booked or reaped are simply skipped; the
// caller surfaces the count mismatch to its client.
func (r *ShowSeatRepo) ReleaseSeats(ctx context.Context, showID uint64, seatIDs []uint64) (int64, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	q := `UPDATE show_seats SET status = ?, updated_at = UTC_TIMESTAMP()
	      WHERE show_id = ? AND status = ? AND seat_id IN (` + placeholders(len(seatIDs)) + `)`
	args := []interface{}{model.SeatAvailable, showID, model.SeatLocked}
	for _, id := range seatIDs {
		args = append(args, id)
	}
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return n, nil
}

// StaleLocked returns the seats stuck in LOCKED whose last transition
// is older than the cutoff, grouped by show.  The reaper feeds each
// group to ReapShow.
func (r *ShowSeatRepo) StaleLocked(ctx context.Context, cutoff time.Time) (map[uint64][]uint64, error) {
	const q = `SELECT show_id, seat_id FROM show_seats
	           WHERE status = ? AND updated_at < ?
	           ORDER BY show_id, seat_id`
	rows, err := r.db.QueryContext(ctx, q, model.SeatLocked, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	stale := make(map[uint64][]uint64)
	for rows.Next() {
		var showID, seatID uint64
		if err := rows.Scan(&showID, &seatID); err != nil {
			return nil, err
		}
		stale[showID] = append(stale[showID], seatID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stale, nil
}

// ReapShow force-releases one show's stale locks in a serializable
// transaction.  Staleness is re-checked in the UPDATE predicate so a
// seat finalized between the scan and the reap is left alone.  It
// returns the number of seats reclaimed.
func (r *ShowSeatRepo) ReapShow(ctx context.Context, showID uint64, cutoff time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	const q = `UPDATE show_seats SET status = ?, updated_at = UTC_TIMESTAMP()
	           WHERE show_id = ? AND status = ? AND updated_at < ?`
	res, err := tx.ExecContext(ctx, q, model.SeatAvailable, showID, model.SeatLocked, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return n, nil
}
