package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/event-booking/internal/model"
)

// BookingRepo persists bookings.  Status changes are compare-and-swap
// updates; the unique index on (event_id, active_holder) keeps one active
// booking per holder and event.
type BookingRepo struct {
	db *sql.DB
}

func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, event_id, holder_user_id, holder_email, holder_key, payment_status,
	payment_path, manual_proof, promo_code_id, created_at, updated_at, cancelled_at`

func scanBooking(row interface{ Scan(...any) error }) (model.Booking, error) {
	var (
		b         model.Booking
		userID    sql.NullInt64
		proof     sql.NullString
		promoID   sql.NullInt64
		cancelled sql.NullTime
	)
	err := row.Scan(&b.ID, &b.EventID, &userID, &b.HolderEmail, &b.HolderKey, &b.PaymentStatus,
		&b.Path, &proof, &promoID, &b.CreatedAt, &b.UpdatedAt, &cancelled)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, model.ErrNotFound
	}
	if err != nil {
		return model.Booking{}, err
	}
	b.HolderUserID = ptrUint64(userID)
	b.ManualProof = ptrString(proof)
	b.PromoCodeID = ptrUint64(promoID)
	b.CancelledAt = ptrTime(cancelled)
	return b, nil
}

// FindActiveBooking returns the holder's active booking for the event, or
// nil when there is none.
func (r *BookingRepo) FindActiveBooking(ctx context.Context, eventID uint64, holderKey string) (*model.Booking, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE event_id = ? AND active_holder = ? LIMIT 1`,
		eventID, holderKey)
	b, err := scanBooking(row)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BookingRepo) GetBooking(ctx context.Context, id uint64) (model.Booking, error) {
	return scanBooking(conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
}

// LockBooking reads a booking with a row lock.  It must run inside a
// transaction to have any effect.
func (r *BookingRepo) LockBooking(ctx context.Context, id uint64) (model.Booking, error) {
	return scanBooking(conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ? FOR UPDATE`, id))
}

// CreateBooking inserts b and sets its ID.  A second active booking for
// the same holder returns model.ErrDuplicate.
func (r *BookingRepo) CreateBooking(ctx context.Context, b *model.Booking) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO bookings (event_id, holder_user_id, holder_email, holder_key, payment_status,
			payment_path, manual_proof, promo_code_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.EventID, nullUint64(b.HolderUserID), b.HolderEmail, b.HolderKey, b.PaymentStatus,
		b.Path, nullString(b.ManualProof), nullUint64(b.PromoCodeID), b.CreatedAt.UTC(), b.UpdatedAt.UTC())
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("booking for %s: %w", b.HolderKey, model.ErrDuplicate)
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	return nil
}

// TransitionBooking moves payment_status from one value to another.  It
// returns model.ErrStaleState when the stored status is no longer from.
func (r *BookingRepo) TransitionBooking(ctx context.Context, id uint64, from, to model.PaymentStatus) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE bookings SET payment_status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ? AND payment_status = ?`,
		to, id, from)
	if err != nil {
		return err
	}
	return r.expectOne(ctx, res, id)
}

// CloseBooking stamps cancelled_at.  Closing twice is a stale state.
func (r *BookingRepo) CloseBooking(ctx context.Context, id uint64, at time.Time) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE bookings SET cancelled_at = ?, updated_at = UTC_TIMESTAMP() WHERE id = ? AND cancelled_at IS NULL`,
		at.UTC(), id)
	if err != nil {
		return err
	}
	return r.expectOne(ctx, res, id)
}

// ListPendingBefore lists active pending bookings created before cutoff,
// oldest first.
func (r *BookingRepo) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.Booking, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE payment_status = 'pending' AND cancelled_at IS NULL AND created_at < ?
		 ORDER BY created_at ASC, id ASC LIMIT ?`,
		cutoff.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *BookingRepo) expectOne(ctx context.Context, res sql.Result, id uint64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM bookings WHERE id = ?)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return model.ErrNotFound
	}
	return model.ErrStaleState
}
