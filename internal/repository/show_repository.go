package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/reelseats/booking/internal/model"
)

// ShowRepo provides read access to shows.  Shows are owned by the
// catalog service; this subsystem only needs existence, start time and
// pricing to validate and price reservations.
type ShowRepo struct {
	db *sql.DB
}

// NewShowRepo returns a new ShowRepo bound to the given database.
func NewShowRepo(db *sql.DB) *ShowRepo { return &ShowRepo{db: db} }

// DB exposes the underlying handle so handlers can orchestrate
// transactions spanning multiple repositories.
func (r *ShowRepo) DB() *sql.DB { return r.db }

// GetByID retrieves a show by its ID.  It returns ErrShowNotFound if
// no row exists.
func (r *ShowRepo) GetByID(ctx context.Context, id uint64) (*model.Show, error) {
	const q = `SELECT id, title, starts_at, adult_price_cents, child_price_cents, status, created_at, updated_at
	           FROM shows WHERE id = ?`
	var s model.Show
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&s.ID, &s.Title, &s.StartsAt, &s.AdultPriceCents, &s.ChildPriceCents,
		&s.Status, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrShowNotFound
		}
		return nil, err
	}
	return &s, nil
}

// GetPricingTx reads a show's per-ticket prices within an existing
// transaction.  The finalizer uses this so pricing and the seat
// transition commit or roll back together.
func (r *ShowRepo) GetPricingTx(ctx context.Context, tx *sql.Tx, id uint64) (adult, child uint32, err error) {
	const q = `SELECT adult_price_cents, child_price_cents FROM shows WHERE id = ?`
	err = tx.QueryRowContext(ctx, q, id).Scan(&adult, &child)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, ErrShowNotFound
	}
	return adult, child, err
}
