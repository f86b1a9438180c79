// Package booking implements the reservation and payment reconciliation
// engine: it turns one booking request into a consistent set of booking,
// transaction, payment and ticket records, exactly once, while capacity is
// contested and the payment gateway is eventually consistent.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/iliyamo/event-booking/internal/clock"
	"github.com/iliyamo/event-booking/internal/model"
)

// Config tunes timeouts and the abandonment window.
type Config struct {
	// GatewayTimeout bounds one call to the payment gateway.
	GatewayTimeout time.Duration
	// AwaitingWindow is how long a booking may wait for payment before the
	// sweeper rejects it and frees its slot.
	AwaitingWindow time.Duration
	// SweepBatch caps the bookings examined per sweep.
	SweepBatch int
	// ReconcileLockTTL bounds the in-flight lock held per gateway reference.
	ReconcileLockTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.GatewayTimeout <= 0 {
		c.GatewayTimeout = 10 * time.Second
	}
	if c.AwaitingWindow <= 0 {
		c.AwaitingWindow = 30 * time.Minute
	}
	if c.SweepBatch <= 0 {
		c.SweepBatch = 100
	}
	if c.ReconcileLockTTL <= 0 {
		c.ReconcileLockTTL = 30 * time.Second
	}
	return c
}

// Deps are the collaborators of the engine.  Locker and Clock are optional.
type Deps struct {
	Store   Store
	Gateway Gateway
	Tickets TicketMinter
	Fees    FeePolicy
	Locker  Locker
	Clock   clock.Clock
}

// Engine is the reservation state machine.  It is safe for concurrent use;
// all shared state lives behind the Store.
type Engine struct {
	store   Store
	gateway Gateway
	tickets TicketMinter
	locker  Locker
	clock   clock.Clock
	cfg     Config

	ledger *Ledger
	guard  *Guard
	pricer *Pricer
}

// NewEngine wires the engine.  Store, Gateway and Tickets must be non-nil.
func NewEngine(d Deps, cfg Config) *Engine {
	if d.Store == nil || d.Gateway == nil || d.Tickets == nil {
		panic("booking: nil dependency passed to NewEngine")
	}
	if d.Locker == nil {
		d.Locker = noopLocker{}
	}
	if d.Clock == nil {
		d.Clock = clock.NewSystem()
	}
	return &Engine{
		store:   d.Store,
		gateway: d.Gateway,
		tickets: d.Tickets,
		locker:  d.Locker,
		clock:   d.Clock,
		cfg:     cfg.withDefaults(),
		ledger:  NewLedger(d.Store),
		guard:   NewGuard(d.Store, d.Store),
		pricer:  NewPricer(d.Store, d.Fees),
	}
}

// Request is one "book this event" attempt.  At most one of
// GatewayReference and ManualProof is expected; a gateway reference wins.
type Request struct {
	EventID          uint64
	Holder           model.Holder
	PromoCode        string
	GatewayReference string
	ManualProof      string
}

// Reserve runs the reservation state machine for req.  Business rejections
// are returned as a StateRejected outcome with a nil error; errors are
// reserved for validation of the caller, storage failures and invariant
// violations.  Once a slot has been reserved, every path that does not end
// in Confirmed, AwaitingPayment or Waitlisted releases it before returning.
func (e *Engine) Reserve(ctx context.Context, req Request) (Outcome, error) {
	req.Holder.Email = strings.ToLower(strings.TrimSpace(req.Holder.Email))
	if !req.Holder.Valid() {
		return Outcome{}, ErrHolderUnresolved
	}
	now := e.clock.Now()

	ev, err := e.store.GetEvent(ctx, req.EventID)
	if errors.Is(err, model.ErrNotFound) {
		return rejected(ReasonEventNotFound), nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("load event %d: %w", req.EventID, err)
	}
	if ev.Started(now) {
		return Outcome{}, ErrEventStarted
	}

	holderKey := req.Holder.Key()
	if id, err := e.guard.Check(ctx, ev.ID, holderKey, strings.TrimSpace(req.GatewayReference)); err != nil {
		if errors.Is(err, ErrDuplicateBooking) {
			out := rejected(ReasonDuplicateBooking)
			out.BookingID = id
			return out, nil
		}
		return Outcome{}, err
	}

	var promo *model.PromoCode
	if !ev.IsFree {
		promo, err = e.pricer.Lookup(ctx, ev, req.PromoCode, now)
		switch {
		case errors.Is(err, ErrPromoInvalid):
			return rejected(ReasonPromoInvalid), nil
		case errors.Is(err, ErrPromoExhausted):
			return rejected(ReasonPromoExhausted), nil
		case err != nil:
			return Outcome{}, err
		}
	}
	quote := e.pricer.Price(ev, promo)
	path, reason := choosePath(quote, req.GatewayReference, req.ManualProof)
	if reason != "" {
		return rejected(reason), nil
	}

	slot, err := e.ledger.Reserve(ctx, ev, req.Holder)
	if err != nil {
		return Outcome{}, err
	}
	switch slot.Outcome {
	case model.SlotSoldOut:
		return rejected(ReasonSoldOut), nil
	case model.SlotWaitlisted:
		return e.waitlisted(ev, req.Holder, slot.Position), nil
	case model.SlotReserved:
	default:
		return Outcome{}, fmt.Errorf("%w: unknown slot outcome %q", ErrInvariant, slot.Outcome)
	}

	held := true
	defer func() {
		if !held {
			return
		}
		if err := e.ledger.Release(context.WithoutCancel(ctx), ev); err != nil {
			log.Printf("booking: release slot for event %d failed: %v", ev.ID, err)
		}
	}()

	if err := e.pricer.Redeem(ctx, promo); err != nil {
		if errors.Is(err, ErrPromoExhausted) {
			return rejected(ReasonPromoExhausted), nil
		}
		return Outcome{}, err
	}

	draft := draftBooking{event: ev, holder: req.Holder, holderKey: holderKey, quote: quote, promo: promo}
	var out Outcome
	switch p := path.(type) {
	case FreePath:
		out, err = e.confirmFree(ctx, draft)
	case GatewayPath:
		out, err = e.settleGateway(ctx, draft, p)
	case ManualPath:
		out, err = e.awaitManual(ctx, draft, p)
	default:
		err = fmt.Errorf("%w: unknown payment path %T", ErrInvariant, path)
	}
	if IsDuplicate(err) {
		// Lost a race against a concurrent request for the same holder or
		// gateway reference; the winner owns the slot it reserved.
		out = rejected(ReasonDuplicateBooking)
		if existing, ferr := e.store.FindActiveBooking(ctx, ev.ID, holderKey); ferr == nil && existing != nil {
			out.BookingID = existing.ID
		}
		return out, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	if out.State == StateConfirmed || out.State == StateAwaitingPayment {
		held = false
	}
	return out, nil
}

type draftBooking struct {
	event     model.Event
	holder    model.Holder
	holderKey string
	quote     Quote
	promo     *model.PromoCode
}

func (e *Engine) waitlisted(ev model.Event, h model.Holder, pos uint32) Outcome {
	in := Intent{
		Audience: AudienceWaitlist,
		UserID:   h.UserID,
		Email:    h.Email,
		Kind:     KindWaitlistJoined,
		EventID:  ev.ID,
		Payload:  map[string]any{"position": pos, "event_title": ev.Title},
	}
	return Outcome{State: StateWaitlisted, Position: pos, Intents: []Intent{in}}
}

func (e *Engine) confirmFree(ctx context.Context, d draftBooking) (Outcome, error) {
	b, t, err := e.persist(ctx, d, persistSpec{
		path:     model.PathFree,
		status:   model.PaymentNone,
		txStatus: model.TxCompleted,
		issue:    true,
	})
	if err != nil {
		return Outcome{}, err
	}
	return e.confirmedOutcome(d.event, b, t, KindBookingConfirmedFree, KindOrganizerFreeBooking, d.quote), nil
}

func (e *Engine) settleGateway(ctx context.Context, d draftBooking, p GatewayPath) (Outcome, error) {
	check, err := e.verify(ctx, p.Reference)
	if err != nil {
		// The payment may have gone through upstream; keep the slot and let
		// the webhook or the sweeper settle it.
		log.Printf("booking: gateway verify %s failed, holding as pending: %v", p.Reference, err)
		check = model.PaymentCheck{Status: model.GatewayPending}
	}
	e.recordPayment(ctx, d.event.ID, nil, p.Reference, check, d.quote.FinalCents)

	ref := p.Reference
	switch check.Status {
	case model.GatewaySucceeded:
		b, t, err := e.persist(ctx, d, persistSpec{
			path:     model.PathGateway,
			status:   model.PaymentConfirmed,
			txStatus: model.TxCompleted,
			ref:      &ref,
			check:    &check,
			issue:    true,
		})
		if err != nil {
			return Outcome{}, err
		}
		return e.confirmedOutcome(d.event, b, t, KindBookingConfirmedPaid, KindOrganizerPaidBooking, d.quote), nil
	case model.GatewayPending:
		b, _, err := e.persist(ctx, d, persistSpec{
			path:     model.PathGateway,
			status:   model.PaymentPending,
			txStatus: model.TxPending,
			ref:      &ref,
			check:    &check,
		})
		if err != nil {
			return Outcome{}, err
		}
		payload := map[string]any{
			"amount_cents":   d.quote.FinalCents,
			"currency":       d.quote.Currency,
			"confirm_within": e.cfg.AwaitingWindow.String(),
		}
		return Outcome{
			State:     StateAwaitingPayment,
			BookingID: b.ID,
			Intents: []Intent{
				holderIntent(b, KindPaymentProcessing, payload),
				organizerIntent(d.event, b.ID, KindOrganizerPaymentPending, payload),
			},
		}, nil
	case model.GatewayFailed, model.GatewayCancelled:
		out := rejected(ReasonPaymentFailed)
		out.Intents = []Intent{{
			Audience: AudienceHolder,
			UserID:   d.holder.UserID,
			Email:    d.holder.Email,
			Kind:     KindPaymentFailed,
			EventID:  d.event.ID,
			Payload:  map[string]any{"gateway_status": string(check.Status)},
		}}
		return out, nil
	}
	return Outcome{}, fmt.Errorf("%w: unknown gateway status %q", ErrInvariant, check.Status)
}

func (e *Engine) awaitManual(ctx context.Context, d draftBooking, p ManualPath) (Outcome, error) {
	proof := p.Proof
	b, _, err := e.persist(ctx, d, persistSpec{
		path:     model.PathManual,
		status:   model.PaymentPending,
		txStatus: model.TxPending,
		proof:    &proof,
	})
	if err != nil {
		return Outcome{}, err
	}
	payload := map[string]any{
		"amount_cents":   d.quote.FinalCents,
		"currency":       d.quote.Currency,
		"confirm_within": e.cfg.AwaitingWindow.String(),
	}
	return Outcome{
		State:     StateAwaitingPayment,
		BookingID: b.ID,
		Intents: []Intent{
			holderIntent(b, KindPaymentUnderReview, payload),
			organizerIntent(d.event, b.ID, KindOrganizerReviewRequired, map[string]any{"proof": proof}),
		},
	}, nil
}

type persistSpec struct {
	path     model.PathKind
	status   model.PaymentStatus
	txStatus model.TransactionStatus
	ref      *string
	proof    *string
	check    *model.PaymentCheck
	issue    bool
}

// persist writes the booking, its transaction, the payment link and, when
// requested, the ticket in one storage transaction.
func (e *Engine) persist(ctx context.Context, d draftBooking, spec persistSpec) (model.Booking, *model.Ticket, error) {
	now := e.clock.Now()
	b := model.Booking{
		EventID:       d.event.ID,
		HolderEmail:   d.holder.Email,
		HolderKey:     d.holderKey,
		PaymentStatus: spec.status,
		Path:          spec.path,
		ManualProof:   spec.proof,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if d.holder.UserID != 0 {
		uid := d.holder.UserID
		b.HolderUserID = &uid
	}
	if d.promo != nil {
		pid := d.promo.ID
		b.PromoCodeID = &pid
	}
	var ticket *model.Ticket
	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		if err := e.store.CreateBooking(ctx, &b); err != nil {
			return fmt.Errorf("create booking: %w", err)
		}
		txn := model.Transaction{
			BookingID:             b.ID,
			OriginalAmountCents:   d.quote.OriginalCents,
			AmountCents:           d.quote.FinalCents,
			DiscountCents:         d.quote.DiscountCents,
			PlatformFeeCents:      d.quote.PlatformFeeCents,
			OrganizerRevenueCents: d.quote.OrganizerRevenueCents,
			Currency:              d.quote.Currency,
			Status:                spec.txStatus,
			GatewayReference:      spec.ref,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		if err := e.store.CreateTransaction(ctx, &txn); err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		if spec.ref != nil && spec.check != nil {
			bid := b.ID
			pay := model.Payment{
				BookingID:        &bid,
				EventID:          d.event.ID,
				GatewayReference: *spec.ref,
				Method:           spec.check.Method,
				Status:           spec.check.Status,
				AmountCents:      d.quote.FinalCents,
			}
			if err := e.store.UpsertPayment(ctx, &pay); err != nil {
				return fmt.Errorf("link payment: %w", err)
			}
		}
		if err := e.store.MarkWaitlistConverted(ctx, d.event.ID, d.holder.WaitlistKey()); err != nil {
			return fmt.Errorf("convert waitlist entry: %w", err)
		}
		if spec.issue {
			t, err := e.issueTicket(ctx, b.ID)
			if err != nil {
				return err
			}
			ticket = t
		}
		return nil
	})
	if err != nil {
		return model.Booking{}, nil, err
	}
	return b, ticket, nil
}

// issueTicket mints and stores the ticket of a booking.  A booking that
// already has a ticket means the state machine confirmed it twice.
func (e *Engine) issueTicket(ctx context.Context, bookingID uint64) (*model.Ticket, error) {
	t, err := e.tickets.Mint(bookingID)
	if err != nil {
		return nil, fmt.Errorf("mint ticket: %w", err)
	}
	t.IssuedAt = e.clock.Now()
	if err := e.store.CreateTicket(ctx, &t); err != nil {
		if errors.Is(err, model.ErrDuplicate) {
			log.Printf("booking: INVARIANT second ticket issued for booking %d", bookingID)
			return nil, fmt.Errorf("%w: ticket already issued for booking %d", ErrInvariant, bookingID)
		}
		return nil, fmt.Errorf("store ticket: %w", err)
	}
	return &t, nil
}

func (e *Engine) confirmedOutcome(ev model.Event, b model.Booking, t *model.Ticket, holderKind, organizerKind string, q Quote) Outcome {
	out := Outcome{State: StateConfirmed, BookingID: b.ID}
	payload := map[string]any{
		"event_title":  ev.Title,
		"amount_cents": q.FinalCents,
		"currency":     q.Currency,
	}
	if t != nil {
		out.TicketID = t.ID
		out.TicketNumber = t.TicketNumber
		payload["ticket_number"] = t.TicketNumber
	}
	out.Intents = []Intent{
		holderIntent(b, holderKind, payload),
		organizerIntent(ev, b.ID, organizerKind, map[string]any{
			"amount_cents":            q.FinalCents,
			"organizer_revenue_cents": q.OrganizerRevenueCents,
		}),
	}
	return out
}

// verify calls the gateway under the configured timeout.
func (e *Engine) verify(ctx context.Context, ref string) (model.PaymentCheck, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.GatewayTimeout)
	defer cancel()
	check, err := e.gateway.VerifyPaymentReference(ctx, ref)
	if err != nil {
		return model.PaymentCheck{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	switch check.Status {
	case model.GatewaySucceeded, model.GatewayPending, model.GatewayFailed, model.GatewayCancelled:
		return check, nil
	}
	// Anything the gateway cannot state plainly is treated as not yet paid.
	check.Status = model.GatewayPending
	return check, nil
}

// recordPayment upserts the gateway view of a payment outside any booking
// transaction so it survives a lost race.  Failures are logged only.
func (e *Engine) recordPayment(ctx context.Context, eventID uint64, bookingID *uint64, ref string, check model.PaymentCheck, amount int64) {
	pay := model.Payment{
		BookingID:        bookingID,
		EventID:          eventID,
		GatewayReference: ref,
		Method:           check.Method,
		Status:           check.Status,
		AmountCents:      amount,
	}
	if err := e.store.UpsertPayment(ctx, &pay); err != nil {
		log.Printf("booking: record payment %s failed: %v", ref, err)
	}
}
