package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/reelseats/booking/internal/model"
)

// BookingRepo persists the permanent booking records produced by the
// finalizer.  Seat IDs are stored as a JSON column on the booking row;
// the per-seat source of truth remains show_seats.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// CreateTx inserts a booking within the scope of an existing
// transaction.  The caller supplies the UUID and must commit or roll
// back; on any failure the booking and the seat transitions disappear
// together.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	seatIDs, err := json.Marshal(b.SeatIDs)
	if err != nil {
		return err
	}
	const q = `INSERT INTO bookings (id, show_id, user_id, seat_ids, total_amount_cents, status)
	           VALUES (?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, q, b.ID, b.ShowID, b.UserID, seatIDs, b.TotalAmountCents, b.Status)
	return err
}
