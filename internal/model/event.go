package model

import "time"

// Event is a bookable occurrence with an optional capacity limit.
//
// Fields:
//  Capacity         – total slots; nil means unlimited.
//  AvailableTickets – remaining slots; nil when Capacity is nil.  Only the
//                     capacity ledger mutates it.
//  PriceCents       – list price in minor units; ignored when IsFree.
type Event struct {
    ID               uint64    // events.id
    OrganizerID      uint64    // events.organizer_id
    Title            string    // events.title
    StartsAt         time.Time // events.starts_at
    Capacity         *uint32   // events.capacity (nullable)
    AvailableTickets *uint32   // events.available_tickets (nullable)
    IsFree           bool      // events.is_free
    PriceCents       int64     // events.price_cents
    Currency         string    // events.currency
    WaitlistEnabled  bool      // events.waitlist_enabled
    CreatedAt        time.Time // events.created_at
    UpdatedAt        time.Time // events.updated_at
}

// Unlimited reports whether the event has no capacity limit.
func (e Event) Unlimited() bool { return e.Capacity == nil }

// Started reports whether the event has begun at the given instant.
func (e Event) Started(now time.Time) bool { return !e.StartsAt.After(now) }

// SlotOutcome is the result of asking the capacity ledger for a slot.
type SlotOutcome string

const (
    SlotReserved   SlotOutcome = "reserved"
    SlotWaitlisted SlotOutcome = "waitlisted"
    SlotSoldOut    SlotOutcome = "sold_out"
)

// SlotResult carries the ledger outcome.  Position is set only for
// SlotWaitlisted.
type SlotResult struct {
    Outcome  SlotOutcome
    Position uint32
}
