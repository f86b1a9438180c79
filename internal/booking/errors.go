package booking

import "errors"

var (
	ErrHolderUnresolved   = errors.New("holder identity cannot be resolved")
	ErrEventStarted       = errors.New("event already started")
	ErrDuplicateBooking   = errors.New("duplicate booking")
	ErrPromoInvalid       = errors.New("promo code invalid")
	ErrPromoExhausted     = errors.New("promo code exhausted")
	ErrBookingNotFound    = errors.New("booking not found")
	ErrBookingNotActive   = errors.New("booking is not active")
	ErrInvalidTransition  = errors.New("invalid booking transition")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidRefund      = errors.New("invalid refund amount")
	ErrTicketUsed         = errors.New("ticket already used")
	ErrReconcileInFlight  = errors.New("reconciliation already in progress")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrInvariant marks states that correct serialisation can never
	// produce: a second ticket for a booking, a release above capacity.
	ErrInvariant = errors.New("invariant violation")
)
