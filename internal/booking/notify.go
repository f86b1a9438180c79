package booking

import (
	"context"
	"log"
	"sync"

	"github.com/iliyamo/event-booking/internal/model"
)

// Audience tells dashboards who a notification is for.
type Audience string

const (
	AudienceHolder    Audience = "holder"
	AudienceOrganizer Audience = "organizer"
	AudienceWaitlist  Audience = "waitlist"
)

// Notification kinds.  Organizer kinds are distinct from holder kinds so
// organizer dashboards can filter them.
const (
	KindBookingConfirmedFree = "booking_confirmed_free"
	KindBookingConfirmedPaid = "booking_confirmed_paid"
	KindPaymentProcessing    = "payment_processing"
	KindPaymentUnderReview   = "payment_under_review"
	KindPaymentFailed        = "payment_failed"
	KindPaymentRejected      = "payment_rejected"
	KindBookingExpired       = "booking_expired"
	KindBookingCancelled     = "booking_cancelled"
	KindWaitlistJoined       = "waitlist_joined"
	KindWaitlistSlotOpen     = "waitlist_slot_available"

	KindOrganizerFreeBooking    = "organizer_free_booking"
	KindOrganizerPaidBooking    = "organizer_paid_booking"
	KindOrganizerPaymentPending = "organizer_payment_pending"
	KindOrganizerReviewRequired = "organizer_review_required"
	KindOrganizerCancellation   = "organizer_booking_cancelled"
	KindOrganizerRefundRequired = "organizer_refund_required"
)

// Intent is a notification the engine wants sent.  Intents are returned
// with outcomes and executed by a Dispatcher, so a failing transport never
// affects booking state.
type Intent struct {
	Audience  Audience
	UserID    uint64
	Email     string
	Kind      string
	EventID   uint64
	BookingID uint64
	Payload   map[string]any
}

func holderIntent(b model.Booking, kind string, payload map[string]any) Intent {
	h := b.Holder()
	return Intent{
		Audience:  AudienceHolder,
		UserID:    h.UserID,
		Email:     h.Email,
		Kind:      kind,
		EventID:   b.EventID,
		BookingID: b.ID,
		Payload:   payload,
	}
}

func organizerIntent(ev model.Event, bookingID uint64, kind string, payload map[string]any) Intent {
	return Intent{
		Audience:  AudienceOrganizer,
		UserID:    ev.OrganizerID,
		Kind:      kind,
		EventID:   ev.ID,
		BookingID: bookingID,
		Payload:   payload,
	}
}

// Notifier delivers one notification.  Implementations may fail; the
// dispatcher only logs failures.
type Notifier interface {
	Notify(ctx context.Context, in Intent) error
}

// Dispatcher executes intents on background workers.
type Dispatcher struct {
	notifier Notifier
	queue    chan Intent
	wg       sync.WaitGroup
}

// NewDispatcher returns a dispatcher with a buffer of size intents.
func NewDispatcher(n Notifier, size int) *Dispatcher {
	if size <= 0 {
		size = 256
	}
	return &Dispatcher{notifier: n, queue: make(chan Intent, size)}
}

// Enqueue schedules intents without blocking.  When the buffer is full the
// intent is dropped and logged.
func (d *Dispatcher) Enqueue(intents ...Intent) {
	for _, in := range intents {
		select {
		case d.queue <- in:
		default:
			log.Printf("booking: notification queue full, dropped %s for booking %d", in.Kind, in.BookingID)
		}
	}
}

// Run starts workers and blocks until ctx is done and the queue is drained.
func (d *Dispatcher) Run(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case in := <-d.queue:
					d.deliver(ctx, in)
				case <-ctx.Done():
					d.drain()
					return
				}
			}
		}()
	}
	d.wg.Wait()
}

func (d *Dispatcher) drain() {
	for {
		select {
		case in := <-d.queue:
			d.deliver(context.Background(), in)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, in Intent) {
	if err := d.notifier.Notify(ctx, in); err != nil {
		log.Printf("booking: notify %s (%s) for booking %d failed: %v", in.Kind, in.Audience, in.BookingID, err)
	}
}

// Deliver sends intents synchronously, logging failures.  Used by
// background jobs that already run off the request path.
func Deliver(ctx context.Context, n Notifier, intents []Intent) {
	for _, in := range intents {
		if err := n.Notify(ctx, in); err != nil {
			log.Printf("booking: notify %s (%s) for booking %d failed: %v", in.Kind, in.Audience, in.BookingID, err)
		}
	}
}
