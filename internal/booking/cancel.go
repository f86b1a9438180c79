package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/event-booking/internal/model"
)

// CancelRequest asks to cancel one booking.  RefundCents nil refunds the
// whole remaining amount of a completed transaction.
type CancelRequest struct {
	BookingID   uint64
	Actor       model.Caller
	RefundCents *int64
}

// CancelResult reports what cancellation changed.  Refunds are recorded
// only; moving money back is the organizer's job.
type CancelResult struct {
	BookingID         uint64
	RefundedCents     int64
	TransactionStatus model.TransactionStatus
	Intents           []Intent
}

// Cancel closes an active booking of a future event.  The holder, an admin
// or the event's organizer may cancel.  Transaction, ticket, slot and
// booking change together or not at all.
func (e *Engine) Cancel(ctx context.Context, req CancelRequest) (CancelResult, error) {
	if req.RefundCents != nil && *req.RefundCents < 0 {
		return CancelResult{}, ErrInvalidRefund
	}
	b, ev, err := e.loadBooking(ctx, req.BookingID)
	if err != nil {
		return CancelResult{}, err
	}
	if !isHolder(req.Actor, b) && !req.Actor.IsReviewerFor(ev.OrganizerID) {
		return CancelResult{}, ErrForbidden
	}
	now := e.clock.Now()
	if ev.Started(now) {
		return CancelResult{}, ErrEventStarted
	}

	res := CancelResult{BookingID: b.ID}
	err = e.store.WithTx(ctx, func(ctx context.Context) error {
		locked, err := e.store.LockBooking(ctx, b.ID)
		if err != nil {
			return fmt.Errorf("lock booking %d: %w", b.ID, err)
		}
		if !locked.Active() {
			return ErrBookingNotActive
		}

		refunded, status, err := e.settleForCancel(ctx, locked.ID, req.RefundCents, now)
		if err != nil {
			return err
		}
		res.RefundedCents, res.TransactionStatus = refunded, status

		t, err := e.store.GetTicketByBooking(ctx, locked.ID)
		if err != nil {
			return fmt.Errorf("load ticket: %w", err)
		}
		if t != nil {
			switch t.Status {
			case model.TicketUsed:
				return ErrTicketUsed
			case model.TicketActive, model.TicketTransferred:
				if err := e.store.TransitionTicket(ctx, t.ID, t.Status, model.TicketCancelled); err != nil {
					return fmt.Errorf("cancel ticket %d: %w", t.ID, err)
				}
			}
		}

		if err := e.ledger.Release(ctx, ev); err != nil {
			return err
		}
		if err := e.store.CloseBooking(ctx, locked.ID, now); err != nil {
			return fmt.Errorf("close booking %d: %w", locked.ID, err)
		}

		payload := map[string]any{"refunded_cents": refunded, "event_title": ev.Title}
		res.Intents = append(res.Intents,
			holderIntent(locked, KindBookingCancelled, payload),
			organizerIntent(ev, locked.ID, KindOrganizerCancellation, payload),
		)
		res.Intents = append(res.Intents, e.waitlistIntents(ctx, ev)...)
		return nil
	})
	if err != nil {
		return CancelResult{}, err
	}
	return res, nil
}

// settleForCancel records the refund of a completed transaction or fails a
// pending one.  It returns the amount refunded by this call.
func (e *Engine) settleForCancel(ctx context.Context, bookingID uint64, want *int64, now time.Time) (int64, model.TransactionStatus, error) {
	txn, err := e.store.GetTransactionByBooking(ctx, bookingID)
	if err != nil {
		return 0, "", fmt.Errorf("load transaction: %w", err)
	}
	if txn == nil {
		return 0, "", nil
	}
	from := txn.Status
	var refund int64
	switch from {
	case model.TxCompleted, model.TxPartiallyRefunded:
		remaining := txn.Refundable()
		refund = remaining
		if want != nil {
			refund = *want
		}
		if refund > remaining {
			return 0, "", fmt.Errorf("%w: %d exceeds remaining %d", ErrInvalidRefund, refund, remaining)
		}
		if txn.AmountCents <= 0 || refund == 0 {
			return 0, from, nil
		}
		txn.RefundedCents += refund
		txn.Status = model.TxPartiallyRefunded
		if txn.RefundedCents == txn.AmountCents {
			txn.Status = model.TxRefunded
		}
	case model.TxPending:
		txn.Status = model.TxFailed
	default:
		return 0, from, nil
	}
	txn.UpdatedAt = now
	if err := e.store.UpdateTransaction(ctx, txn, from); err != nil {
		return 0, "", fmt.Errorf("update transaction %d: %w", txn.ID, err)
	}
	return refund, txn.Status, nil
}

func isHolder(c model.Caller, b model.Booking) bool {
	if c.ID != 0 && b.HolderUserID != nil && *b.HolderUserID == c.ID {
		return true
	}
	return c.Email != "" && strings.EqualFold(strings.TrimSpace(c.Email), b.HolderEmail)
}
