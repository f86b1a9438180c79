package model

import "time"

// DiscountType selects how a promo code's DiscountValue is interpreted.
type DiscountType string

const (
    // DiscountPercentage treats DiscountValue as a whole percentage (0-100).
    DiscountPercentage DiscountType = "percentage"
    // DiscountFixed treats DiscountValue as an amount in minor units.
    DiscountFixed DiscountType = "fixed"
)

// PromoCode is a redeemable discount.  UsedCount only ever grows and never
// exceeds UsageLimit.
type PromoCode struct {
    ID               uint64       // promo_codes.id
    Code             string       // promo_codes.code (unique, upper-case)
    EventID          *uint64      // promo_codes.event_id (nil = any event)
    DiscountType     DiscountType // promo_codes.discount_type
    DiscountValue    int64        // promo_codes.discount_value
    MaxDiscountCents *int64       // promo_codes.max_discount_cents (nullable)
    UsageLimit       *uint32      // promo_codes.usage_limit (nil = unlimited)
    UsedCount        uint32       // promo_codes.used_count
    ValidFrom        *time.Time   // promo_codes.valid_from
    ValidUntil       *time.Time   // promo_codes.valid_until
    IsActive         bool         // promo_codes.is_active
}

// Exhausted reports whether the usage limit has been reached.
func (p PromoCode) Exhausted() bool {
    return p.UsageLimit != nil && p.UsedCount >= *p.UsageLimit
}

// ValidFor reports whether the code may be applied to the event at now,
// ignoring the usage limit.
func (p PromoCode) ValidFor(eventID uint64, now time.Time) bool {
    if !p.IsActive {
        return false
    }
    if p.EventID != nil && *p.EventID != eventID {
        return false
    }
    if p.ValidFrom != nil && now.Before(*p.ValidFrom) {
        return false
    }
    if p.ValidUntil != nil && !now.Before(*p.ValidUntil) {
        return false
    }
    return true
}
