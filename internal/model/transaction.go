package model

import "time"

// TransactionStatus is the financial state of a booking.
type TransactionStatus string

const (
    TxPending           TransactionStatus = "pending"
    TxCompleted         TransactionStatus = "completed"
    TxFailed            TransactionStatus = "failed"
    TxRefunded          TransactionStatus = "refunded"
    TxPartiallyRefunded TransactionStatus = "partially_refunded"
)

// CanTransition reports whether the status may move to next.  Refunds are
// monotonic: nothing moves back to pending or completed.
func (s TransactionStatus) CanTransition(next TransactionStatus) bool {
    switch s {
    case TxPending:
        return next == TxCompleted || next == TxFailed
    case TxCompleted, TxPartiallyRefunded:
        return next == TxRefunded || next == TxPartiallyRefunded
    }
    return false
}

// Transaction is the financial record of one booking.  Amounts are minor
// units and satisfy AmountCents = OriginalAmountCents - DiscountCents and
// OrganizerRevenueCents + PlatformFeeCents = AmountCents.
type Transaction struct {
    ID                    uint64            // transactions.id
    BookingID             uint64            // transactions.booking_id (unique)
    OriginalAmountCents   int64             // transactions.original_amount_cents
    AmountCents           int64             // transactions.amount_cents
    DiscountCents         int64             // transactions.discount_cents
    PlatformFeeCents      int64             // transactions.platform_fee_cents
    OrganizerRevenueCents int64             // transactions.organizer_revenue_cents
    RefundedCents         int64             // transactions.refunded_cents
    Currency              string            // transactions.currency
    Status                TransactionStatus // transactions.status
    GatewayReference      *string           // transactions.gateway_reference (unique, nullable)
    CreatedAt             time.Time         // transactions.created_at
    UpdatedAt             time.Time         // transactions.updated_at
}

// Refundable returns the amount that can still be refunded.
func (t Transaction) Refundable() int64 {
    return t.AmountCents - t.RefundedCents
}
