package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/event-booking/internal/model"
)

// TransactionRepo persists the financial record of each booking and the
// gateway's view of each payment reference.
type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

const transactionColumns = `id, booking_id, original_amount_cents, amount_cents, discount_cents,
	platform_fee_cents, organizer_revenue_cents, refunded_cents, currency, status,
	gateway_reference, created_at, updated_at`

func scanTransaction(row interface{ Scan(...any) error }) (*model.Transaction, error) {
	var (
		t   model.Transaction
		ref sql.NullString
	)
	err := row.Scan(&t.ID, &t.BookingID, &t.OriginalAmountCents, &t.AmountCents, &t.DiscountCents,
		&t.PlatformFeeCents, &t.OrganizerRevenueCents, &t.RefundedCents, &t.Currency, &t.Status,
		&ref, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.GatewayReference = ptrString(ref)
	return &t, nil
}

// FindTransactionByReference returns the transaction paid under ref, or nil.
func (r *TransactionRepo) FindTransactionByReference(ctx context.Context, ref string) (*model.Transaction, error) {
	return scanTransaction(conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE gateway_reference = ?`, ref))
}

// GetTransactionByBooking returns the booking's transaction, or nil.
func (r *TransactionRepo) GetTransactionByBooking(ctx context.Context, bookingID uint64) (*model.Transaction, error) {
	return scanTransaction(conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE booking_id = ?`, bookingID))
}

// CreateTransaction inserts t and sets its ID.  A second transaction for
// the booking or the gateway reference returns model.ErrDuplicate.
func (r *TransactionRepo) CreateTransaction(ctx context.Context, t *model.Transaction) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO transactions (booking_id, original_amount_cents, amount_cents, discount_cents,
			platform_fee_cents, organizer_revenue_cents, refunded_cents, currency, status,
			gateway_reference, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.BookingID, t.OriginalAmountCents, t.AmountCents, t.DiscountCents,
		t.PlatformFeeCents, t.OrganizerRevenueCents, t.RefundedCents, t.Currency, t.Status,
		nullString(t.GatewayReference), t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("transaction for booking %d: %w", t.BookingID, model.ErrDuplicate)
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}

// UpdateTransaction writes status and refunded amount while the stored
// status still equals from.  Refunded cents never decrease.
func (r *TransactionRepo) UpdateTransaction(ctx context.Context, t *model.Transaction, from model.TransactionStatus) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE transactions SET status = ?, refunded_cents = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND refunded_cents <= ? AND ? <= amount_cents`,
		t.Status, t.RefundedCents, t.UpdatedAt.UTC(), t.ID, from, t.RefundedCents, t.RefundedCents)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return model.ErrStaleState
	}
	return nil
}

// FindPaymentByReference returns the payment recorded for ref, or nil.
func (r *TransactionRepo) FindPaymentByReference(ctx context.Context, ref string) (*model.Payment, error) {
	var (
		p         model.Payment
		bookingID sql.NullInt64
	)
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, booking_id, event_id, gateway_reference, method, status, amount_cents, created_at, updated_at
		 FROM payments WHERE gateway_reference = ?`, ref).
		Scan(&p.ID, &bookingID, &p.EventID, &p.GatewayReference, &p.Method, &p.Status, &p.AmountCents, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.BookingID = ptrUint64(bookingID)
	return &p, nil
}

// UpsertPayment records the latest gateway view of a reference.  An
// existing booking link is kept when p carries none.
func (r *TransactionRepo) UpsertPayment(ctx context.Context, p *model.Payment) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO payments (booking_id, event_id, gateway_reference, method, status, amount_cents)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE
			booking_id = COALESCE(VALUES(booking_id), booking_id),
			method = VALUES(method),
			status = VALUES(status),
			amount_cents = VALUES(amount_cents),
			updated_at = UTC_TIMESTAMP()`,
		nullUint64(p.BookingID), p.EventID, p.GatewayReference, p.Method, p.Status, p.AmountCents)
	return err
}
