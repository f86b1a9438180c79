// Package queue defines message payloads exchanged over the message broker
// and the consumer that records them.
package queue

// NotificationMessage is published for every notification intent produced
// by the booking engine.  It carries enough context for a mailer or a
// dashboard to act without querying the primary database.
type NotificationMessage struct {
    ID        string         `json:"id"` // ULID, sortable by creation time
    Audience  string         `json:"audience"`
    Kind      string         `json:"kind"`
    UserID    uint64         `json:"user_id,omitempty"`
    Email     string         `json:"email,omitempty"`
    EventID   uint64         `json:"event_id"`
    BookingID uint64         `json:"booking_id,omitempty"`
    Payload   map[string]any `json:"payload,omitempty"`
    CreatedAt string         `json:"created_at"`
}
