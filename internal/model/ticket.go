package model

import "time"

// TicketStatus is the lifecycle state of an issued ticket.  Used and
// cancelled are terminal.
type TicketStatus string

const (
    TicketActive      TicketStatus = "active"
    TicketUsed        TicketStatus = "used"
    TicketCancelled   TicketStatus = "cancelled"
    TicketTransferred TicketStatus = "transferred"
)

// Terminal reports whether no further transition is possible.
func (s TicketStatus) Terminal() bool {
    return s == TicketUsed || s == TicketCancelled
}

// Ticket is the verifiable proof of a confirmed booking.  BookingID is
// unique: a booking has at most one ticket.
type Ticket struct {
    ID            uint64       // tickets.id
    BookingID     uint64       // tickets.booking_id (unique)
    TicketNumber  string       // tickets.ticket_number (unique)
    Status        TicketStatus // tickets.status
    CheckedInAt   *time.Time   // tickets.checked_in_at
    CheckedInBy   *uint64      // tickets.checked_in_by
    TransferredTo *string      // tickets.transferred_to
    IssuedAt      time.Time    // tickets.issued_at
}
