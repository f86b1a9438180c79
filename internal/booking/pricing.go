package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/event-booking/internal/model"
)

// Quote is the priced breakdown of one booking.  FinalCents equals
// OriginalCents - DiscountCents and PlatformFeeCents + OrganizerRevenueCents
// equals FinalCents.
type Quote struct {
	OriginalCents         int64
	DiscountCents         int64
	FinalCents            int64
	PlatformFeeCents      int64
	OrganizerRevenueCents int64
	Currency              string
}

// Pricer resolves promo codes and computes quotes.
type Pricer struct {
	promos PromoStore
	fees   FeePolicy
}

func NewPricer(promos PromoStore, fees FeePolicy) *Pricer {
	if fees == nil {
		fees = FlatFee{}
	}
	return &Pricer{promos: promos, fees: fees}
}

// Price computes the quote for ev with an optional promo code.  Free events
// price to zero whatever the code.
func (p *Pricer) Price(ev model.Event, promo *model.PromoCode) Quote {
	q := Quote{Currency: ev.Currency}
	if ev.IsFree || ev.PriceCents <= 0 {
		return q
	}
	q.OriginalCents = ev.PriceCents
	if promo != nil {
		q.DiscountCents = Discount(ev.PriceCents, *promo)
	}
	q.FinalCents = q.OriginalCents - q.DiscountCents
	q.PlatformFeeCents, q.OrganizerRevenueCents = SplitRevenue(p.fees, q.FinalCents)
	return q
}

// Discount returns the discount promo grants on price, never more than price.
func Discount(price int64, promo model.PromoCode) int64 {
	if price <= 0 || promo.DiscountValue <= 0 {
		return 0
	}
	var d int64
	switch promo.DiscountType {
	case model.DiscountPercentage:
		d = (price*promo.DiscountValue + 50) / 100
		if promo.MaxDiscountCents != nil && d > *promo.MaxDiscountCents {
			d = *promo.MaxDiscountCents
		}
	case model.DiscountFixed:
		d = promo.DiscountValue
	}
	if d < 0 {
		d = 0
	}
	if d > price {
		d = price
	}
	return d
}

// Lookup resolves a promo code for ev.  It returns ErrPromoInvalid for
// unknown, inactive, out-of-window or out-of-scope codes and
// ErrPromoExhausted when the limit was already reached.  The redemption
// itself happens later through Redeem.
func (p *Pricer) Lookup(ctx context.Context, ev model.Event, code string, now time.Time) (*model.PromoCode, error) {
	code = NormalizePromoCode(code)
	if code == "" {
		return nil, nil
	}
	promo, err := p.promos.GetPromoByCode(ctx, code)
	if errors.Is(err, model.ErrNotFound) {
		return nil, ErrPromoInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("load promo code: %w", err)
	}
	if !promo.ValidFor(ev.ID, now) {
		return nil, ErrPromoInvalid
	}
	if promo.Exhausted() {
		return nil, ErrPromoExhausted
	}
	return &promo, nil
}

// Redeem increments the code's usage counter.  Concurrent redemptions past
// the limit fail with ErrPromoExhausted.
func (p *Pricer) Redeem(ctx context.Context, promo *model.PromoCode) error {
	if promo == nil {
		return nil
	}
	if err := p.promos.RedeemPromo(ctx, promo.ID); err != nil {
		if errors.Is(err, model.ErrPromoExhausted) {
			return ErrPromoExhausted
		}
		return fmt.Errorf("redeem promo code: %w", err)
	}
	return nil
}

// NormalizePromoCode trims and upper-cases a code as it is stored.
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
