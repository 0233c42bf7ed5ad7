package model

import "time"

// Booking statuses.  Bookings created by the finalizer are CONFIRMED
// immediately; PENDING and CANCELLED exist for compatibility with the
// wider system (payment flows are out of scope here).
const (
	BookingPending   = "PENDING"
	BookingConfirmed = "CONFIRMED"
	BookingCancelled = "CANCELLED"
)

// Booking is the permanent record produced when a held reservation is
// finalized.  Seat IDs are stored denormalized on the booking row; the
// authoritative per-seat state lives in show_seats.
//
// Fields:
//  ID               – UUID primary key.
//  ShowID           – show being booked.
//  UserID           – user who made the booking.
//  SeatIDs          – seats covered by this booking.
//  TotalAmountCents – total price in cents for all seats.
//  Status           – state of the booking (PENDING, CONFIRMED,
//                     CANCELLED).  CONFIRMED is terminal.
//  CreatedAt        – creation timestamp.
type Booking struct {
	ID               string    // bookings.id
	ShowID           uint64    // bookings.show_id
	UserID           uint64    // bookings.user_id
	SeatIDs          []uint64  // bookings.seat_ids (JSON column)
	TotalAmountCents uint32    // bookings.total_amount_cents
	Status           string    // bookings.status
	CreatedAt        time.Time // bookings.created_at
}
