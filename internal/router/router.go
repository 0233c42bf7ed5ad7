// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/reelseats/booking/internal/handler"
	"github.com/reelseats/booking/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check for load balancers and
// monitoring systems.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterBooking registers the reservation and booking endpoints under
// /v1.  All of them require a valid access token; the JWTAuth
// middleware places the caller's user ID into the request context.
func RegisterBooking(e *echo.Echo, b *handler.BookingHandler, jwtSecret string) {
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(jwtSecret))

	// Queue an asynchronous seat reservation for a show.
	g.POST("/shows/:id/reserve", b.ReserveSeats)
	// Poll the outcome of a reservation job.
	g.GET("/reservations/:job_id", b.ReservationStatus)
	// Finalize a pending lock into a permanent booking.
	g.POST("/shows/:id/bookings", b.ConfirmBooking)
	// Return locked seats to the available pool.
	g.POST("/shows/:id/release", b.ReleaseSeats)
}
