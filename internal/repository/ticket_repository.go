package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/ticket"
)

// TicketRepo persists issued tickets and serves the venue check-in view,
// which joins the ticket with its booking and event.
type TicketRepo struct {
	db *sql.DB
}

func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

const ticketColumns = `t.id, t.booking_id, t.ticket_number, t.status, t.checked_in_at,
	t.checked_in_by, t.transferred_to, t.issued_at`

// ticketNulls holds the nullable ticket columns while scanning.
type ticketNulls struct {
	checkedAt   sql.NullTime
	checkedBy   sql.NullInt64
	transferred sql.NullString
}

func (n *ticketNulls) dest(t *model.Ticket) []any {
	return []any{&t.ID, &t.BookingID, &t.TicketNumber, &t.Status,
		&n.checkedAt, &n.checkedBy, &n.transferred, &t.IssuedAt}
}

func (n *ticketNulls) apply(t *model.Ticket) {
	t.CheckedInAt = ptrTime(n.checkedAt)
	t.CheckedInBy = ptrUint64(n.checkedBy)
	t.TransferredTo = ptrString(n.transferred)
	t.IssuedAt = t.IssuedAt.UTC()
}

// CreateTicket inserts t and sets its ID.  A second ticket for the booking
// returns model.ErrDuplicate.
func (r *TicketRepo) CreateTicket(ctx context.Context, t *model.Ticket) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO tickets (booking_id, ticket_number, status, issued_at) VALUES (?, ?, ?, ?)`,
		t.BookingID, t.TicketNumber, t.Status, t.IssuedAt.UTC())
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("ticket for booking %d: %w", t.BookingID, model.ErrDuplicate)
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}

// GetTicketByBooking returns the booking's ticket, or nil.
func (r *TicketRepo) GetTicketByBooking(ctx context.Context, bookingID uint64) (*model.Ticket, error) {
	var (
		t model.Ticket
		n ticketNulls
	)
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets t WHERE t.booking_id = ?`, bookingID).
		Scan(n.dest(&t)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	n.apply(&t)
	return &t, nil
}

// TransitionTicket moves a ticket between statuses while it is still in
// from.
func (r *TicketRepo) TransitionTicket(ctx context.Context, id uint64, from, to model.TicketStatus) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE tickets SET status = ? WHERE id = ? AND status = ?`, to, id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return model.ErrStaleState
	}
	return nil
}

const viewQuery = `SELECT ` + ticketColumns + `, b.event_id, e.organizer_id, b.holder_user_id, b.holder_email
	FROM tickets t
	JOIN bookings b ON b.id = t.booking_id
	JOIN events e ON e.id = b.event_id`

func (r *TicketRepo) view(ctx context.Context, where string, arg any) (ticket.View, error) {
	var (
		v      ticket.View
		n      ticketNulls
		holder sql.NullInt64
	)
	dest := append(n.dest(&v.Ticket), &v.EventID, &v.OrganizerID, &holder, &v.HolderEmail)
	err := conn(ctx, r.db).QueryRowContext(ctx, viewQuery+` WHERE `+where, arg).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return ticket.View{}, model.ErrNotFound
	}
	if err != nil {
		return ticket.View{}, err
	}
	n.apply(&v.Ticket)
	v.HolderUserID = ptrUint64(holder)
	return v, nil
}

func (r *TicketRepo) ViewByNumber(ctx context.Context, number string) (ticket.View, error) {
	return r.view(ctx, `t.ticket_number = ?`, number)
}

func (r *TicketRepo) ViewByID(ctx context.Context, id uint64) (ticket.View, error) {
	return r.view(ctx, `t.id = ?`, id)
}

// CheckIn marks an active ticket used by staffID.
func (r *TicketRepo) CheckIn(ctx context.Context, ticketID, staffID uint64, at time.Time) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE tickets SET status = 'used', checked_in_at = ?, checked_in_by = ?
		 WHERE id = ? AND status = 'active'`, at.UTC(), staffID, ticketID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return model.ErrStaleState
	}
	return nil
}
