package booking

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/iliyamo/event-booking/internal/model"
)

// Ledger is the only writer of an event's capacity counter and waitlist.
// Atomicity per event is delegated to the EventStore (a row lock in MySQL).
type Ledger struct {
	events EventStore
}

func NewLedger(events EventStore) *Ledger {
	return &Ledger{events: events}
}

// Reserve claims one slot of ev for holder.  Unlimited events always
// reserve.  When the event is full and has a waitlist, the holder is
// queued and the result carries its position.
func (l *Ledger) Reserve(ctx context.Context, ev model.Event, holder model.Holder) (model.SlotResult, error) {
	if ev.Unlimited() {
		return model.SlotResult{Outcome: model.SlotReserved}, nil
	}
	res, err := l.events.ReserveSlot(ctx, ev.ID, holder)
	if err != nil {
		return model.SlotResult{}, fmt.Errorf("reserve slot for event %d: %w", ev.ID, err)
	}
	return res, nil
}

// Release gives one slot of ev back.  A release that would exceed the
// capacity means a slot was released twice; it is reported, not absorbed.
func (l *Ledger) Release(ctx context.Context, ev model.Event) error {
	if ev.Unlimited() {
		return nil
	}
	err := l.events.ReleaseSlot(ctx, ev.ID)
	if errors.Is(err, model.ErrCapacityOverflow) {
		log.Printf("booking: INVARIANT release above capacity for event %d", ev.ID)
		return fmt.Errorf("%w: release above capacity for event %d", ErrInvariant, ev.ID)
	}
	if err != nil {
		return fmt.Errorf("release slot for event %d: %w", ev.ID, err)
	}
	return nil
}
