package booking

import (
	"context"
	"time"

	"github.com/iliyamo/event-booking/internal/model"
)

// Tx runs fn inside a storage transaction.  Store methods called with the
// context passed to fn take part in that transaction.
type Tx interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventStore owns events, their capacity counters and waitlists.
// ReserveSlot and ReleaseSlot must be linearizable per event.
type EventStore interface {
	GetEvent(ctx context.Context, id uint64) (model.Event, error)
	ReserveSlot(ctx context.Context, eventID uint64, holder model.Holder) (model.SlotResult, error)
	ReleaseSlot(ctx context.Context, eventID uint64) error
	NextWaitlisted(ctx context.Context, eventID uint64) (*model.WaitlistEntry, error)
	MarkWaitlistConverted(ctx context.Context, eventID uint64, key string) error
}

// BookingStore persists bookings.  TransitionBooking is a compare-and-swap
// on payment_status and returns model.ErrStaleState when from no longer
// matches.
type BookingStore interface {
	FindActiveBooking(ctx context.Context, eventID uint64, holderKey string) (*model.Booking, error)
	GetBooking(ctx context.Context, id uint64) (model.Booking, error)
	LockBooking(ctx context.Context, id uint64) (model.Booking, error)
	CreateBooking(ctx context.Context, b *model.Booking) error
	TransitionBooking(ctx context.Context, id uint64, from, to model.PaymentStatus) error
	CloseBooking(ctx context.Context, id uint64, at time.Time) error
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.Booking, error)
}

// TransactionStore persists transactions and gateway payment records.
// UpdateTransaction only succeeds while the stored status equals from.
type TransactionStore interface {
	FindTransactionByReference(ctx context.Context, ref string) (*model.Transaction, error)
	GetTransactionByBooking(ctx context.Context, bookingID uint64) (*model.Transaction, error)
	CreateTransaction(ctx context.Context, t *model.Transaction) error
	UpdateTransaction(ctx context.Context, t *model.Transaction, from model.TransactionStatus) error
	FindPaymentByReference(ctx context.Context, ref string) (*model.Payment, error)
	UpsertPayment(ctx context.Context, p *model.Payment) error
}

// PromoStore reads promo codes and redeems them.  RedeemPromo returns
// model.ErrPromoExhausted when the usage limit has been reached.
type PromoStore interface {
	GetPromoByCode(ctx context.Context, code string) (model.PromoCode, error)
	RedeemPromo(ctx context.Context, id uint64) error
}

// TicketStore persists tickets.  CreateTicket returns model.ErrDuplicate
// when the booking already has a ticket.
type TicketStore interface {
	CreateTicket(ctx context.Context, t *model.Ticket) error
	GetTicketByBooking(ctx context.Context, bookingID uint64) (*model.Ticket, error)
	TransitionTicket(ctx context.Context, id uint64, from, to model.TicketStatus) error
}

// Store is everything the engine needs from persistence.
type Store interface {
	Tx
	EventStore
	BookingStore
	TransactionStore
	PromoStore
	TicketStore
}

// Gateway verifies payment references with the payment provider.  It is
// consulted synchronously during reservation and again on webhook delivery.
type Gateway interface {
	VerifyPaymentReference(ctx context.Context, ref string) (model.PaymentCheck, error)
}

// TicketMinter produces a ticket with a globally unique number for a
// booking.  Persisting it is the engine's job.
type TicketMinter interface {
	Mint(bookingID uint64) (model.Ticket, error)
}

// Locker takes short-lived named locks.  ok is false when another holder
// owns the lock.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}
