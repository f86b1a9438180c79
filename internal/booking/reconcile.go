package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/iliyamo/event-booking/internal/model"
)

// Reconcile applies the gateway's current view of ref to the booking that
// owns it.  The webhook body is never trusted: the status is re-read from
// the gateway.  Deliveries may repeat or arrive out of order; a confirmed
// booking is never reverted and a ticket is issued at most once.
func (e *Engine) Reconcile(ctx context.Context, ref string) (Outcome, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Outcome{}, ErrBookingNotFound
	}
	release, ok, err := e.locker.Acquire(ctx, "reconcile:"+ref, e.cfg.ReconcileLockTTL)
	switch {
	case err != nil:
		log.Printf("booking: reconcile lock for %s unavailable, continuing: %v", ref, err)
	case !ok:
		return Outcome{}, ErrReconcileInFlight
	default:
		defer release()
	}

	txn, err := e.store.FindTransactionByReference(ctx, ref)
	if err != nil {
		return Outcome{}, fmt.Errorf("find transaction %s: %w", ref, err)
	}
	if txn == nil {
		return Outcome{}, ErrBookingNotFound
	}
	b, ev, err := e.loadBooking(ctx, txn.BookingID)
	if err != nil {
		return Outcome{}, err
	}
	check, err := e.verify(ctx, ref)
	if err != nil {
		return Outcome{}, err
	}
	bid := b.ID
	e.recordPayment(ctx, ev.ID, &bid, ref, check, txn.AmountCents)

	var out Outcome
	err = e.store.WithTx(ctx, func(ctx context.Context) error {
		locked, err := e.store.LockBooking(ctx, b.ID)
		if err != nil {
			return fmt.Errorf("lock booking %d: %w", b.ID, err)
		}
		out, err = e.applyGatewayStatus(ctx, ev, locked, check)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// applyGatewayStatus moves a locked booking according to check.  It must
// run inside a storage transaction.
func (e *Engine) applyGatewayStatus(ctx context.Context, ev model.Event, b model.Booking, check model.PaymentCheck) (Outcome, error) {
	if !b.Active() {
		out := Outcome{State: StateRejected, BookingID: b.ID}
		if b.PaymentStatus == model.PaymentRejected {
			out.Reason = ReasonPaymentFailed
		}
		if check.Status != model.GatewaySucceeded {
			return out, nil
		}
		txn, err := e.store.GetTransactionByBooking(ctx, b.ID)
		if err != nil {
			return Outcome{}, fmt.Errorf("load transaction: %w", err)
		}
		if txn != nil && txn.Status == model.TxFailed {
			// Money arrived for a booking we already gave up on.
			log.Printf("booking: payment succeeded for closed booking %d, refund required", b.ID)
			out.Intents = []Intent{organizerIntent(ev, b.ID, KindOrganizerRefundRequired, map[string]any{
				"amount_cents": txn.AmountCents,
				"currency":     txn.Currency,
			})}
		}
		return out, nil
	}

	switch b.PaymentStatus {
	case model.PaymentConfirmed, model.PaymentNone:
		if check.Status != model.GatewaySucceeded {
			log.Printf("booking: ignoring %s for confirmed booking %d", check.Status, b.ID)
		}
		out := Outcome{State: StateConfirmed, BookingID: b.ID}
		t, err := e.store.GetTicketByBooking(ctx, b.ID)
		if err != nil {
			return Outcome{}, fmt.Errorf("load ticket: %w", err)
		}
		if t != nil {
			out.TicketID = t.ID
			out.TicketNumber = t.TicketNumber
		}
		return out, nil
	case model.PaymentPending:
	default:
		return Outcome{}, fmt.Errorf("%w: booking %d in status %q", ErrInvariant, b.ID, b.PaymentStatus)
	}

	switch check.Status {
	case model.GatewaySucceeded:
		return e.confirmPending(ctx, ev, b)
	case model.GatewayFailed, model.GatewayCancelled:
		return e.rejectPending(ctx, ev, b, KindPaymentFailed, map[string]any{"gateway_status": string(check.Status)})
	default:
		return Outcome{State: StateAwaitingPayment, BookingID: b.ID}, nil
	}
}

// confirmPending settles a pending booking: booking confirmed, transaction
// completed, one ticket issued.
func (e *Engine) confirmPending(ctx context.Context, ev model.Event, b model.Booking) (Outcome, error) {
	if err := e.transition(ctx, b.ID, model.PaymentPending, model.PaymentConfirmed); err != nil {
		return Outcome{}, err
	}
	b.PaymentStatus = model.PaymentConfirmed
	txn, err := e.moveTransaction(ctx, b.ID, model.TxCompleted)
	if err != nil {
		return Outcome{}, err
	}
	t, err := e.issueTicket(ctx, b.ID)
	if err != nil {
		return Outcome{}, err
	}
	q := Quote{FinalCents: txn.AmountCents, OrganizerRevenueCents: txn.OrganizerRevenueCents, Currency: txn.Currency}
	return e.confirmedOutcome(ev, b, t, KindBookingConfirmedPaid, KindOrganizerPaidBooking, q), nil
}

// rejectPending gives up on a pending booking and frees its slot for the
// next waitlisted holder.
func (e *Engine) rejectPending(ctx context.Context, ev model.Event, b model.Booking, kind string, payload map[string]any) (Outcome, error) {
	if err := e.transition(ctx, b.ID, model.PaymentPending, model.PaymentRejected); err != nil {
		return Outcome{}, err
	}
	b.PaymentStatus = model.PaymentRejected
	if _, err := e.moveTransaction(ctx, b.ID, model.TxFailed); err != nil {
		return Outcome{}, err
	}
	if err := e.ledger.Release(ctx, ev); err != nil {
		return Outcome{}, err
	}
	out := Outcome{State: StateRejected, BookingID: b.ID, Reason: ReasonPaymentFailed}
	out.Intents = append(out.Intents, holderIntent(b, kind, payload))
	out.Intents = append(out.Intents, e.waitlistIntents(ctx, ev)...)
	return out, nil
}

func (e *Engine) transition(ctx context.Context, id uint64, from, to model.PaymentStatus) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	err := e.store.TransitionBooking(ctx, id, from, to)
	if errors.Is(err, model.ErrStaleState) {
		return fmt.Errorf("%w: booking %d no longer %s", ErrInvalidTransition, id, from)
	}
	if err != nil {
		return fmt.Errorf("transition booking %d: %w", id, err)
	}
	return nil
}

func (e *Engine) moveTransaction(ctx context.Context, bookingID uint64, to model.TransactionStatus) (*model.Transaction, error) {
	txn, err := e.store.GetTransactionByBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("load transaction: %w", err)
	}
	if txn == nil {
		return nil, fmt.Errorf("%w: booking %d has no transaction", ErrInvariant, bookingID)
	}
	from := txn.Status
	if !from.CanTransition(to) {
		return nil, fmt.Errorf("%w: transaction %d %s -> %s", ErrInvariant, txn.ID, from, to)
	}
	txn.Status = to
	txn.UpdatedAt = e.clock.Now()
	if err := e.store.UpdateTransaction(ctx, txn, from); err != nil {
		return nil, fmt.Errorf("update transaction %d: %w", txn.ID, err)
	}
	return txn, nil
}

// waitlistIntents tells the earliest waitlisted holder that a slot opened.
// Lookup failures are logged; they never undo the release.
func (e *Engine) waitlistIntents(ctx context.Context, ev model.Event) []Intent {
	if !ev.WaitlistEnabled {
		return nil
	}
	entry, err := e.store.NextWaitlisted(ctx, ev.ID)
	if err != nil {
		log.Printf("booking: next waitlisted for event %d: %v", ev.ID, err)
		return nil
	}
	if entry == nil {
		return nil
	}
	in := Intent{
		Audience: AudienceWaitlist,
		Email:    entry.Email,
		Kind:     KindWaitlistSlotOpen,
		EventID:  ev.ID,
		Payload:  map[string]any{"position": entry.Position, "event_title": ev.Title},
	}
	if entry.UserID != nil {
		in.UserID = *entry.UserID
	}
	return []Intent{in}
}

func (e *Engine) loadBooking(ctx context.Context, id uint64) (model.Booking, model.Event, error) {
	b, err := e.store.GetBooking(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return model.Booking{}, model.Event{}, ErrBookingNotFound
	}
	if err != nil {
		return model.Booking{}, model.Event{}, fmt.Errorf("load booking %d: %w", id, err)
	}
	ev, err := e.store.GetEvent(ctx, b.EventID)
	if err != nil {
		return model.Booking{}, model.Event{}, fmt.Errorf("load event %d: %w", b.EventID, err)
	}
	return b, ev, nil
}

// Review approves or rejects a booking paid by manual proof.  Only an
// admin or the event's organizer may review.
func (e *Engine) Review(ctx context.Context, bookingID uint64, reviewer model.Caller, approve bool) (Outcome, error) {
	b, ev, err := e.loadBooking(ctx, bookingID)
	if err != nil {
		return Outcome{}, err
	}
	if !reviewer.IsReviewerFor(ev.OrganizerID) {
		return Outcome{}, ErrForbidden
	}
	var out Outcome
	err = e.store.WithTx(ctx, func(ctx context.Context) error {
		locked, err := e.store.LockBooking(ctx, b.ID)
		if err != nil {
			return fmt.Errorf("lock booking %d: %w", b.ID, err)
		}
		if locked.Path != model.PathManual || !locked.Active() || locked.PaymentStatus != model.PaymentPending {
			return fmt.Errorf("%w: booking %d is %s via %s", ErrInvalidTransition, locked.ID, locked.PaymentStatus, locked.Path)
		}
		if approve {
			out, err = e.confirmPending(ctx, ev, locked)
		} else {
			out, err = e.rejectPending(ctx, ev, locked, KindPaymentRejected, map[string]any{"reviewer_id": reviewer.ID})
		}
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// SweepResult summarises one ExpireAbandoned run.
type SweepResult struct {
	Expired   int
	Confirmed int
	Intents   []Intent
}

// ExpireAbandoned rejects bookings that have waited for payment longer
// than the awaiting window and frees their slots.  Gateway bookings are
// re-verified first so a payment that did go through is confirmed instead.
func (e *Engine) ExpireAbandoned(ctx context.Context) (SweepResult, error) {
	cutoff := e.clock.Now().Add(-e.cfg.AwaitingWindow)
	pending, err := e.store.ListPendingBefore(ctx, cutoff, e.cfg.SweepBatch)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list pending bookings: %w", err)
	}
	var res SweepResult
	for _, b := range pending {
		out, err := e.expireOne(ctx, b)
		if err != nil {
			log.Printf("booking: expire booking %d: %v", b.ID, err)
			continue
		}
		switch out.State {
		case StateConfirmed:
			res.Confirmed++
		case StateRejected:
			res.Expired++
		}
		res.Intents = append(res.Intents, out.Intents...)
	}
	return res, nil
}

func (e *Engine) expireOne(ctx context.Context, b model.Booking) (Outcome, error) {
	ev, err := e.store.GetEvent(ctx, b.EventID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load event %d: %w", b.EventID, err)
	}
	var check *model.PaymentCheck
	if b.Path == model.PathGateway {
		txn, err := e.store.GetTransactionByBooking(ctx, b.ID)
		if err != nil {
			return Outcome{}, fmt.Errorf("load transaction: %w", err)
		}
		if txn != nil && txn.GatewayReference != nil {
			c, err := e.verify(ctx, *txn.GatewayReference)
			if err != nil {
				// Cannot tell whether it was paid; try again next sweep.
				return Outcome{State: StateAwaitingPayment, BookingID: b.ID}, err
			}
			bid := b.ID
			e.recordPayment(ctx, ev.ID, &bid, *txn.GatewayReference, c, txn.AmountCents)
			check = &c
		}
	}

	var out Outcome
	err = e.store.WithTx(ctx, func(ctx context.Context) error {
		locked, err := e.store.LockBooking(ctx, b.ID)
		if err != nil {
			return fmt.Errorf("lock booking %d: %w", b.ID, err)
		}
		if !locked.Active() || locked.PaymentStatus != model.PaymentPending {
			// Settled since it was listed.
			out = Outcome{BookingID: b.ID}
			return nil
		}
		if check != nil && check.Status != model.GatewayPending {
			out, err = e.applyGatewayStatus(ctx, ev, locked, *check)
			return err
		}
		out, err = e.rejectPending(ctx, ev, locked, KindBookingExpired, map[string]any{"window": e.cfg.AwaitingWindow.String()})
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}
