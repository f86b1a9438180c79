package model

import (
    "strconv"
    "strings"
    "time"
)

// PaymentStatus is the payment state of a booking.  PaymentNone marks a
// booking that needs no payment (free, or fully discounted).
type PaymentStatus string

const (
    PaymentNone      PaymentStatus = "none"
    PaymentPending   PaymentStatus = "pending"
    PaymentConfirmed PaymentStatus = "confirmed"
    PaymentRejected  PaymentStatus = "rejected"
)

// CanTransition reports whether a booking may move from s to next.  Only
// pending bookings move; confirmed, none and rejected are final for the
// payment state (cancellation closes a booking separately).
func (s PaymentStatus) CanTransition(next PaymentStatus) bool {
    if s != PaymentPending {
        return false
    }
    return next == PaymentConfirmed || next == PaymentRejected
}

// PathKind records which payment path created a booking.
type PathKind string

const (
    PathFree    PathKind = "free"
    PathGateway PathKind = "gateway"
    PathManual  PathKind = "manual"
)

// Holder identifies who a booking belongs to: a registered user, or a
// contact email when no user id is available.
type Holder struct {
    UserID uint64
    Email  string
}

// Key is the deduplication key for a holder.  Registered users are keyed
// by id so an email change cannot produce a second booking.
func (h Holder) Key() string {
    if h.UserID != 0 {
        return "user:" + strconv.FormatUint(h.UserID, 10)
    }
    return "email:" + strings.ToLower(strings.TrimSpace(h.Email))
}

// WaitlistKey identifies the holder's waitlist entry: the normalised
// email, or Key() for holders known only by user id.
func (h Holder) WaitlistKey() string {
    if e := strings.ToLower(strings.TrimSpace(h.Email)); e != "" {
        return e
    }
    return h.Key()
}

// Valid reports whether the holder can be resolved to someone.
func (h Holder) Valid() bool {
    return h.UserID != 0 || strings.Contains(h.Email, "@")
}

// Booking is a holder's reservation for one event.
//
// Fields:
//  HolderKey     – deduplication key (see Holder.Key); unique per event
//                  among active bookings.
//  PaymentStatus – none/pending/confirmed/rejected.
//  Path          – free/gateway/manual.
//  ManualProof   – reference to an offline payment receipt.
//  CancelledAt   – set when the booking is closed by cancellation.
type Booking struct {
    ID            uint64        // bookings.id
    EventID       uint64        // bookings.event_id
    HolderUserID  *uint64       // bookings.holder_user_id (nullable)
    HolderEmail   string        // bookings.holder_email
    HolderKey     string        // bookings.holder_key
    PaymentStatus PaymentStatus // bookings.payment_status
    Path          PathKind      // bookings.payment_path
    ManualProof   *string       // bookings.manual_proof (nullable)
    PromoCodeID   *uint64       // bookings.promo_code_id (nullable)
    CreatedAt     time.Time     // bookings.created_at
    UpdatedAt     time.Time     // bookings.updated_at
    CancelledAt   *time.Time    // bookings.cancelled_at (nullable)
}

// Active reports whether the booking still holds a slot.
func (b Booking) Active() bool {
    return b.CancelledAt == nil && b.PaymentStatus != PaymentRejected
}

// Holder returns the holder identity recorded on the booking.
func (b Booking) Holder() Holder {
    h := Holder{Email: b.HolderEmail}
    if b.HolderUserID != nil {
        h.UserID = *b.HolderUserID
    }
    return h
}
