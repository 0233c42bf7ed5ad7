package model

import "time"

// Show represents a scheduled screening of a movie.  Shows are created
// and maintained by the catalog service; this subsystem reads them to
// validate reservation requests and to price bookings.  Seats may only
// be reserved while the current time is before StartsAt.
//
// Fields:
//  ID              – primary key identifier.
//  Title           – movie title or an external reference.
//  StartsAt        – when the show begins.
//  AdultPriceCents – price in cents for an adult ticket.
//  ChildPriceCents – price in cents for a child ticket.
//  Status          – current state of the show (SCHEDULED, CANCELLED,
//                    FINISHED).
//  CreatedAt       – creation timestamp.
//  UpdatedAt       – last update timestamp.
type Show struct {
	ID              uint64    // shows.id
	Title           string    // shows.title
	StartsAt        time.Time // shows.starts_at
	AdultPriceCents uint32    // shows.adult_price_cents
	ChildPriceCents uint32    // shows.child_price_cents
	Status          string    // shows.status
	CreatedAt       time.Time // shows.created_at
	UpdatedAt       time.Time // shows.updated_at
}

// HasStarted reports whether the show's start time has already passed
// relative to the given instant.  Reservation and finalization both
// reject shows that have started.
func (s *Show) HasStarted(now time.Time) bool {
	return !now.Before(s.StartsAt)
}
