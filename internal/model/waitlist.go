package model

import "time"

// WaitlistEntry queues a holder for an event whose capacity is exhausted.
// (EventID, Email) is unique and Position grows monotonically per event.
type WaitlistEntry struct {
    ID                 uint64    // waitlist_entries.id
    EventID            uint64    // waitlist_entries.event_id
    UserID             *uint64   // waitlist_entries.user_id (nullable)
    Email              string    // waitlist_entries.email
    Position           uint32    // waitlist_entries.position
    ConvertedToBooking bool      // waitlist_entries.converted_to_booking
    CreatedAt          time.Time // waitlist_entries.created_at
}
