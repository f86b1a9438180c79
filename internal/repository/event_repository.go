package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/event-booking/internal/model"
)

// EventRepo owns the events table and the waitlist.  It is the only code
// that writes events.available_tickets; every write happens under a row
// lock on the event so counters and waitlist positions stay serial.
type EventRepo struct {
	db *sql.DB
}

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

const eventColumns = `id, organizer_id, title, starts_at, capacity, available_tickets,
	is_free, price_cents, currency, waitlist_enabled, created_at, updated_at`

func scanEvent(row interface{ Scan(...any) error }) (model.Event, error) {
	var (
		ev        model.Event
		capacity  sql.NullInt64
		available sql.NullInt64
	)
	err := row.Scan(&ev.ID, &ev.OrganizerID, &ev.Title, &ev.StartsAt, &capacity, &available,
		&ev.IsFree, &ev.PriceCents, &ev.Currency, &ev.WaitlistEnabled, &ev.CreatedAt, &ev.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, model.ErrNotFound
	}
	if err != nil {
		return model.Event{}, err
	}
	if capacity.Valid {
		c := uint32(capacity.Int64)
		ev.Capacity = &c
	}
	if available.Valid {
		a := uint32(available.Int64)
		ev.AvailableTickets = &a
	}
	ev.StartsAt = ev.StartsAt.UTC()
	return ev, nil
}

// GetEvent loads one event.  Unknown ids return model.ErrNotFound.
func (r *EventRepo) GetEvent(ctx context.Context, id uint64) (model.Event, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	return scanEvent(row)
}

// ReserveSlot takes one ticket from the event, or queues the holder on the
// waitlist when none are left and the event keeps one.  A holder already
// on the waitlist gets its existing position back.
func (r *EventRepo) ReserveSlot(ctx context.Context, eventID uint64, holder model.Holder) (model.SlotResult, error) {
	var res model.SlotResult
	err := withTx(ctx, r.db, func(ctx context.Context) error {
		q := conn(ctx, r.db)
		var (
			available sql.NullInt64
			waitlist  bool
		)
		err := q.QueryRowContext(ctx,
			`SELECT available_tickets, waitlist_enabled FROM events WHERE id = ? FOR UPDATE`,
			eventID).Scan(&available, &waitlist)
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrNotFound
		}
		if err != nil {
			return err
		}
		if !available.Valid {
			res = model.SlotResult{Outcome: model.SlotReserved}
			return nil
		}
		if available.Int64 > 0 {
			if _, err := q.ExecContext(ctx,
				`UPDATE events SET available_tickets = available_tickets - 1 WHERE id = ?`, eventID); err != nil {
				return err
			}
			res = model.SlotResult{Outcome: model.SlotReserved}
			return nil
		}
		if !waitlist {
			res = model.SlotResult{Outcome: model.SlotSoldOut}
			return nil
		}

		email := holder.WaitlistKey()
		var pos uint32
		err = q.QueryRowContext(ctx,
			`SELECT position FROM waitlist_entries WHERE event_id = ? AND email = ?`,
			eventID, email).Scan(&pos)
		if err == nil {
			res = model.SlotResult{Outcome: model.SlotWaitlisted, Position: pos}
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if err := q.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position), 0) + 1 FROM waitlist_entries WHERE event_id = ?`,
			eventID).Scan(&pos); err != nil {
			return err
		}
		var userID *uint64
		if holder.UserID != 0 {
			uid := holder.UserID
			userID = &uid
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO waitlist_entries (event_id, user_id, email, position) VALUES (?, ?, ?, ?)`,
			eventID, nullUint64(userID), email, pos); err != nil {
			return err
		}
		res = model.SlotResult{Outcome: model.SlotWaitlisted, Position: pos}
		return nil
	})
	return res, err
}

// ReleaseSlot returns one ticket to the event, never above its capacity.
// A release on a full counter returns model.ErrCapacityOverflow and
// changes nothing.
func (r *EventRepo) ReleaseSlot(ctx context.Context, eventID uint64) error {
	return withTx(ctx, r.db, func(ctx context.Context) error {
		q := conn(ctx, r.db)
		var capacity, available sql.NullInt64
		err := q.QueryRowContext(ctx,
			`SELECT capacity, available_tickets FROM events WHERE id = ? FOR UPDATE`,
			eventID).Scan(&capacity, &available)
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrNotFound
		}
		if err != nil {
			return err
		}
		if !capacity.Valid {
			return nil
		}
		if available.Int64 >= capacity.Int64 {
			return model.ErrCapacityOverflow
		}
		_, err = q.ExecContext(ctx,
			`UPDATE events SET available_tickets = LEAST(capacity, available_tickets + 1) WHERE id = ?`,
			eventID)
		return err
	})
}

// NextWaitlisted returns the earliest unconverted waitlist entry, or nil.
func (r *EventRepo) NextWaitlisted(ctx context.Context, eventID uint64) (*model.WaitlistEntry, error) {
	var (
		w      model.WaitlistEntry
		userID sql.NullInt64
	)
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, event_id, user_id, email, position, converted_to_booking, created_at
		 FROM waitlist_entries
		 WHERE event_id = ? AND converted_to_booking = FALSE
		 ORDER BY position ASC LIMIT 1`,
		eventID).Scan(&w.ID, &w.EventID, &userID, &w.Email, &w.Position, &w.ConvertedToBooking, &w.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	w.UserID = ptrUint64(userID)
	return &w, nil
}

// MarkWaitlistConverted flags the waitlist entry stored under key (see
// model.Holder.WaitlistKey) once its holder has a booking.  A holder that
// was never waitlisted is not an error.
func (r *EventRepo) MarkWaitlistConverted(ctx context.Context, eventID uint64, key string) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE waitlist_entries SET converted_to_booking = TRUE WHERE event_id = ? AND email = ?`,
		eventID, key)
	return err
}

// ListUpcoming returns events starting after now, soonest first.
func (r *EventRepo) ListUpcoming(ctx context.Context, now time.Time, limit int) ([]model.Event, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE starts_at > ? ORDER BY starts_at ASC LIMIT ?`,
		now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
