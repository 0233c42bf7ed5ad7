package model

// Seat statuses for a show.  A show_seats row moves AVAILABLE → LOCKED
// when a reservation worker claims it, LOCKED → BOOKED when a booking
// is finalized and LOCKED → AVAILABLE when it is released or reaped
// (the row's updated_at timestamp marks the last transition and drives
// the reaper).  BOOKED is terminal for the lifetime of the show.
// Inventory rows are materialized by the catalog service; this module
// only transitions their status column and never scans whole rows.
const (
	SeatAvailable = "AVAILABLE"
	SeatLocked    = "LOCKED"
	SeatBooked    = "BOOKED"
)
