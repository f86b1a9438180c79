package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/event-booking/internal/model"
)

// Guard rejects repeated booking attempts.  It checks two independent
// keys: one active booking per (event, holder), and one booking per
// gateway reference.  Unique indexes in storage back both checks up when
// two requests race past the guard together.
type Guard struct {
	bookings BookingStore
	txs      TransactionStore
}

func NewGuard(bookings BookingStore, txs TransactionStore) *Guard {
	return &Guard{bookings: bookings, txs: txs}
}

// Check returns (0, nil) when the attempt may proceed.  Otherwise it returns
// the id of the booking already holding either key together with
// ErrDuplicateBooking.  No resource is created in either case.
func (g *Guard) Check(ctx context.Context, eventID uint64, holderKey, gatewayRef string) (uint64, error) {
	existing, err := g.bookings.FindActiveBooking(ctx, eventID, holderKey)
	if err != nil {
		return 0, fmt.Errorf("check holder booking: %w", err)
	}
	if existing != nil {
		return existing.ID, ErrDuplicateBooking
	}
	if gatewayRef == "" {
		return 0, nil
	}
	txn, err := g.txs.FindTransactionByReference(ctx, gatewayRef)
	if err != nil {
		return 0, fmt.Errorf("check gateway reference: %w", err)
	}
	if txn != nil {
		return txn.BookingID, ErrDuplicateBooking
	}
	// A payment row may outlive a lost transaction insert; it only blocks
	// reuse once it is attached to a booking.
	pay, err := g.txs.FindPaymentByReference(ctx, gatewayRef)
	if err != nil {
		return 0, fmt.Errorf("check gateway payment: %w", err)
	}
	if pay != nil && pay.BookingID != nil {
		return *pay.BookingID, ErrDuplicateBooking
	}
	return 0, nil
}

// IsDuplicate reports whether err came from a uniqueness conflict on a
// booking, transaction or payment.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateBooking) || errors.Is(err, model.ErrDuplicate)
}
