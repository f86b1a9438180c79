package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/event-booking/internal/model"
)

// PromoRepo reads and redeems promo codes.
type PromoRepo struct {
	db *sql.DB
}

func NewPromoRepo(db *sql.DB) *PromoRepo { return &PromoRepo{db: db} }

// GetPromoByCode loads a code by its normalised (upper-case) form.
func (r *PromoRepo) GetPromoByCode(ctx context.Context, code string) (model.PromoCode, error) {
	var (
		p          model.PromoCode
		eventID    sql.NullInt64
		maxOff     sql.NullInt64
		limit      sql.NullInt64
		validFrom  sql.NullTime
		validUntil sql.NullTime
	)
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, code, event_id, discount_type, discount_value, max_discount_cents,
			usage_limit, used_count, valid_from, valid_until, is_active
		 FROM promo_codes WHERE code = ?`, code).
		Scan(&p.ID, &p.Code, &eventID, &p.DiscountType, &p.DiscountValue, &maxOff,
			&limit, &p.UsedCount, &validFrom, &validUntil, &p.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PromoCode{}, model.ErrNotFound
	}
	if err != nil {
		return model.PromoCode{}, err
	}
	p.EventID = ptrUint64(eventID)
	if maxOff.Valid {
		v := maxOff.Int64
		p.MaxDiscountCents = &v
	}
	if limit.Valid {
		v := uint32(limit.Int64)
		p.UsageLimit = &v
	}
	p.ValidFrom = ptrTime(validFrom)
	p.ValidUntil = ptrTime(validUntil)
	return p, nil
}

// RedeemPromo counts one use of the code.  The guard in the WHERE clause
// makes concurrent redemptions past the limit fail with
// model.ErrPromoExhausted.
func (r *PromoRepo) RedeemPromo(ctx context.Context, id uint64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE promo_codes SET used_count = used_count + 1
		 WHERE id = ? AND (usage_limit IS NULL OR used_count < usage_limit)`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM promo_codes WHERE id = ?)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return model.ErrNotFound
	}
	return model.ErrPromoExhausted
}
