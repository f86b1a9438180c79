package booking

// State is the terminal state of one reservation attempt.
type State string

const (
	StateConfirmed       State = "confirmed"
	StateAwaitingPayment State = "awaiting_payment"
	StateWaitlisted      State = "waitlisted"
	StateRejected        State = "rejected"
)

// Reason explains a rejection.  The set is closed.
type Reason string

const (
	ReasonSoldOut          Reason = "sold_out"
	ReasonDuplicateBooking Reason = "duplicate_booking"
	ReasonPaymentRequired  Reason = "payment_required"
	ReasonPaymentFailed    Reason = "payment_failed"
	ReasonPromoInvalid     Reason = "promo_invalid"
	ReasonPromoExhausted   Reason = "promo_exhausted"
	ReasonEventNotFound    Reason = "event_not_found"
)

// Outcome is the result of a reservation, reconciliation or review.
// Intents lists notifications to send; the engine never sends them itself.
type Outcome struct {
	State        State
	BookingID    uint64
	TicketID     uint64
	TicketNumber string
	Position     uint32
	Reason       Reason
	Intents      []Intent
}

func rejected(reason Reason) Outcome {
	return Outcome{State: StateRejected, Reason: reason}
}
