package repository

import (
	"context"
	"database/sql"
)

// Store bundles the MySQL repositories behind the booking engine's storage
// interface.  Repositories share one transaction when called with the
// context handed to WithTx.
type Store struct {
	*EventRepo
	*BookingRepo
	*TransactionRepo
	*PromoRepo
	*TicketRepo

	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		EventRepo:       NewEventRepo(db),
		BookingRepo:     NewBookingRepo(db),
		TransactionRepo: NewTransactionRepo(db),
		PromoRepo:       NewPromoRepo(db),
		TicketRepo:      NewTicketRepo(db),
		db:              db,
	}
}

// WithTx runs fn in a database transaction.  A nested call joins the
// enclosing transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, s.db, fn)
}
