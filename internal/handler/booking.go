package handler

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/reelseats/booking/internal/cache"
	"github.com/reelseats/booking/internal/model"
	"github.com/reelseats/booking/internal/queue"
	"github.com/reelseats/booking/internal/repository"
)

// holdStore is the slice of the pending-lock store the finalizer needs.
type holdStore interface {
	Get(ctx context.Context, showID, userID uint64) (*model.PendingLock, error)
	Delete(ctx context.Context, showID, userID uint64) error
}

// availabilityInvalidator drops cached availability for a show after a
// committed seat-state change.
type availabilityInvalidator interface {
	InvalidateShow(ctx context.Context, showID uint64) error
}

// BookingHandler groups the dependencies required to accept reservation
// requests, report job outcomes, finalize bookings and release held
// seats.  All methods assume JWT authentication has already been
// performed by middleware; they return 401 Unauthorized if the user ID
// cannot be extracted from the context.  Finalization runs all critical
// DB operations inside a single serializable transaction.
type BookingHandler struct {
	ShowRepo     *repository.ShowRepo
	ShowSeatRepo *repository.ShowSeatRepo
	BookingRepo  *repository.BookingRepo
	Holds        holdStore
	Results      *cache.ResultStore
	Availability availabilityInvalidator
	Queue        queue.Enqueuer
	MaxSeats     int
}

// NewBookingHandler constructs a BookingHandler.  All dependencies must
// be non-nil.
func NewBookingHandler(showRepo *repository.ShowRepo, showSeatRepo *repository.ShowSeatRepo, bookingRepo *repository.BookingRepo, holds holdStore, results *cache.ResultStore, availability availabilityInvalidator, q queue.Enqueuer, maxSeats int) *BookingHandler {
	if showRepo == nil || showSeatRepo == nil || bookingRepo == nil || holds == nil || results == nil || availability == nil || q == nil {
		panic("nil dependency passed to NewBookingHandler")
	}
	return &BookingHandler{
		ShowRepo:     showRepo,
		ShowSeatRepo: showSeatRepo,
		BookingRepo:  bookingRepo,
		Holds:        holds,
		Results:      results,
		Availability: availability,
		Queue:        q,
		MaxSeats:     maxSeats,
	}
}

// getUserID extracts the user_id from echo.Context and converts it to uint64.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// parseShowID parses and validates the :id path parameter.
func parseShowID(c echo.Context) (uint64, error) {
	showID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || showID == 0 {
		return 0, errors.New("invalid show id")
	}
	return showID, nil
}

// validateSeatSelection checks a seat-IDs slice for emptiness, the
// configured cap, zero IDs and duplicates.  It returns a human-readable
// message for the 400 response when the selection is rejected.
func (h *BookingHandler) validateSeatSelection(seatIDs []uint64) string {
	if len(seatIDs) == 0 {
		return "seat_ids is required"
	}
	if len(seatIDs) > h.MaxSeats {
		return "too many seats requested"
	}
	seen := make(map[uint64]struct{}, len(seatIDs))
	for _, id := range seatIDs {
		if id == 0 {
			return "seat ids must be positive"
		}
		if _, ok := seen[id]; ok {
			return "duplicate seat ids"
		}
		seen[id] = struct{}{}
	}
	return ""
}

// ReserveSeats handles POST /v1/shows/:id/reserve.  It validates the
// selection, enqueues a reservation job and returns 202 Accepted with
// the job ID immediately.  Seat locking happens asynchronously in the
// worker pool; clients poll GET /v1/reservations/:job_id for the
// outcome.
func (h *BookingHandler) ReserveSeats(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	showID, err := parseShowID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	var body struct {
		SeatIDs []uint64 `json:"seat_ids"`
		IsChild []bool   `json:"is_child"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if msg := h.validateSeatSelection(body.SeatIDs); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	if len(body.IsChild) != 0 && len(body.IsChild) != len(body.SeatIDs) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "is_child must match seat_ids"})
	}
	if len(body.IsChild) == 0 {
		body.IsChild = make([]bool, len(body.SeatIDs))
	}
	ctx := c.Request().Context()
	req := model.ReservationRequest{
		ShowID:  showID,
		SeatIDs: body.SeatIDs,
		UserID:  userID,
		IsChild: body.IsChild,
	}
	jobID, err := h.Queue.Enqueue(ctx, req)
	if err != nil {
		log.Printf("enqueue reservation show=%d user=%d: %v", showID, userID, err)
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "reservation service unavailable"})
	}
	// Mark the job as queued so polling can distinguish a pending job
	// from an unknown ID.  Losing the marker only degrades polling.
	if err := h.Results.MarkQueued(ctx, jobID); err != nil {
		log.Printf("mark job %s queued: %v", jobID, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{
		"message": "reservation queued",
		"job_id":  jobID,
	})
}

// ReservationStatus handles GET /v1/reservations/:job_id.  It reports
// pending while the job is queued or running, the final outcome once
// the worker has written it, and 404 for unknown or expired job IDs.
func (h *BookingHandler) ReservationStatus(c echo.Context) error {
	if _, err := getUserID(c); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	jobID := c.Param("job_id")
	if jobID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid job id"})
	}
	res, err := h.Results.Get(c.Request().Context(), jobID)
	if err != nil {
		if errors.Is(err, cache.ErrResultNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "job not found"})
		}
		log.Printf("read job result %s: %v", jobID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to read job status"})
	}
	if res.Status == model.JobQueued {
		return c.JSON(http.StatusOK, echo.Map{"status": "pending"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "done",
		"success": res.Success,
		"message": res.Message,
	})
}

// ConfirmBooking handles POST /v1/shows/:id/bookings.  It converts an
// unexpired pending lock into a permanent booking: the pending-lock
// record is validated against the requested seats, then the booking row
// and the LOCKED→BOOKED seat transitions commit in one serializable
// transaction.  The pending lock is single use: it is deleted whether
// finalization succeeds or fails, so a failed attempt requires a fresh
// reservation.
func (h *BookingHandler) ConfirmBooking(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	showID, err := parseShowID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	var body struct {
		SeatIDs []uint64 `json:"seat_ids"`
		IsChild []bool   `json:"is_child"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if msg := h.validateSeatSelection(body.SeatIDs); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	if len(body.IsChild) != 0 && len(body.IsChild) != len(body.SeatIDs) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "is_child must match seat_ids"})
	}
	if len(body.IsChild) == 0 {
		body.IsChild = make([]bool, len(body.SeatIDs))
	}
	ctx := c.Request().Context()

	hold, err := h.Holds.Get(ctx, showID, userID)
	if err != nil {
		if errors.Is(err, cache.ErrHoldNotFound) {
			return c.JSON(http.StatusConflict, echo.Map{"error": repository.ErrReservationExpired.Error()})
		}
		log.Printf("read pending lock show=%d user=%d: %v", showID, userID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to read pending lock"})
	}
	// From here the hold is consumed regardless of outcome, and any
	// committed seat change must be visible to browsers.
	defer h.consumeHold(ctx, showID, userID)
	if !hold.Covers(body.SeatIDs) {
		return c.JSON(http.StatusConflict, echo.Map{"error": repository.ErrSeatSelectionMismatch.Error()})
	}

	tx, err := h.ShowRepo.DB().BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	adult, child, err := h.ShowRepo.GetPricingTx(ctx, tx, showID)
	if err != nil {
		if errors.Is(err, repository.ErrShowNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "show not found"})
		}
		log.Printf("read pricing show=%d: %v", showID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	var total uint32
	for i := range body.SeatIDs {
		if body.IsChild[i] {
			total += child
		} else {
			total += adult
		}
	}

	booking := &model.Booking{
		ID:               uuid.NewString(),
		ShowID:           showID,
		UserID:           userID,
		SeatIDs:          body.SeatIDs,
		TotalAmountCents: total,
		Status:           model.BookingConfirmed,
		CreatedAt:        time.Now().UTC(),
	}
	if err := h.BookingRepo.CreateTx(ctx, tx, booking); err != nil {
		log.Printf("create booking show=%d user=%d: %v", showID, userID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create booking"})
	}
	if err := h.ShowSeatRepo.BookSeatsTx(ctx, tx, showID, body.SeatIDs); err != nil {
		if errors.Is(err, repository.ErrSeatsUnavailable) {
			// A seat left LOCKED state underneath the hold, most
			// likely reclaimed by the reaper.
			return c.JSON(http.StatusConflict, echo.Map{"error": repository.ErrReservationExpired.Error()})
		}
		log.Printf("book seats show=%d user=%d: %v", showID, userID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to book seats"})
	}
	if err := tx.Commit(); err != nil {
		log.Printf("commit booking show=%d user=%d: %v", showID, userID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to commit booking"})
	}
	committed = true

	return c.JSON(http.StatusCreated, echo.Map{
		"booking_id":         booking.ID,
		"total_amount_cents": booking.TotalAmountCents,
		"status":             booking.Status,
	})
}

// consumeHold deletes the pending lock (single use) and invalidates the
// cached availability for the show.  It runs on a detached context: a
// client that disconnects mid-finalization must not keep its hold, and
// readers must not keep seeing seats that just moved.
func (h *BookingHandler) consumeHold(ctx context.Context, showID, userID uint64) {
	ctx = context.WithoutCancel(ctx)
	if err := h.Holds.Delete(ctx, showID, userID); err != nil {
		log.Printf("consume pending lock show=%d user=%d: %v", showID, userID, err)
	}
	if err := h.Availability.InvalidateShow(ctx, showID); err != nil {
		log.Printf("invalidate availability show=%d: %v", showID, err)
	}
}

// ReleaseSeats handles POST /v1/shows/:id/release.  It returns the
// given seats from LOCKED back to AVAILABLE.  Seats that are not
// currently LOCKED are skipped rather than failing the request: the
// response reports how many rows actually transitioned, and partial is
// true when some of the requested seats were left untouched.
func (h *BookingHandler) ReleaseSeats(c echo.Context) error {
	if _, err := getUserID(c); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	showID, err := parseShowID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	var body struct {
		SeatIDs []uint64 `json:"seat_ids"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if msg := h.validateSeatSelection(body.SeatIDs); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	ctx := c.Request().Context()

	released, err := h.ShowSeatRepo.ReleaseSeats(ctx, showID, body.SeatIDs)
	// Invalidate even on error: some rows may have transitioned before
	// the failure and the commit of a partial release is deliberate.
	if invErr := h.Availability.InvalidateShow(ctx, showID); invErr != nil {
		log.Printf("invalidate availability show=%d: %v", showID, invErr)
	}
	if err != nil {
		log.Printf("release seats show=%d: %v", showID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to release seats"})
	}

	resp := echo.Map{
		"released":  released,
		"requested": len(body.SeatIDs),
		"partial":   released < int64(len(body.SeatIDs)),
	}
	if released < int64(len(body.SeatIDs)) {
		resp["warning"] = repository.ErrPartialRelease.Error()
	}
	return c.JSON(http.StatusOK, resp)
}
