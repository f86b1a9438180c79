package ticket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/iliyamo/event-booking/internal/clock"
	"github.com/iliyamo/event-booking/internal/model"
)

var (
	ErrNotFound    = errors.New("ticket not found")
	ErrNotActive   = errors.New("ticket is not active")
	ErrForbidden   = errors.New("not allowed to handle this ticket")
	ErrAlreadyUsed = errors.New("ticket already checked in")
)

const qrPixels = 256

// View is a ticket joined with the booking and event it belongs to.
type View struct {
	Ticket       model.Ticket
	EventID      uint64
	OrganizerID  uint64
	HolderUserID *uint64
	HolderEmail  string
}

// Store reads ticket views and records check-ins.  CheckIn only succeeds
// while the ticket is active and returns model.ErrStaleState otherwise.
type Store interface {
	ViewByNumber(ctx context.Context, number string) (View, error)
	ViewByID(ctx context.Context, id uint64) (View, error)
	CheckIn(ctx context.Context, ticketID, staffID uint64, at time.Time) error
}

// Service is the verification endpoint used at the venue.
type Service struct {
	issuer *Issuer
	store  Store
	clock  clock.Clock
}

func NewService(issuer *Issuer, store Store, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Service{issuer: issuer, store: store, clock: clk}
}

// Resolve checks the token signature and returns the ticket it names,
// whatever its status.
func (s *Service) Resolve(ctx context.Context, token string) (View, error) {
	number, sig, err := ParseToken(token)
	if err != nil {
		return View{}, err
	}
	v, err := s.store.ViewByNumber(ctx, number)
	if errors.Is(err, model.ErrNotFound) {
		return View{}, ErrNotFound
	}
	if err != nil {
		return View{}, fmt.Errorf("ticket: load %s: %w", number, err)
	}
	if !s.issuer.Verify(number, v.Ticket.BookingID, sig) {
		return View{}, ErrInvalidToken
	}
	return v, nil
}

// CheckIn marks the ticket behind token used.  Only an admin or the
// event's organizer may check tickets in.
func (s *Service) CheckIn(ctx context.Context, token string, staff model.Caller) (View, error) {
	v, err := s.Resolve(ctx, token)
	if err != nil {
		return View{}, err
	}
	if !staff.IsReviewerFor(v.OrganizerID) {
		return View{}, ErrForbidden
	}
	switch v.Ticket.Status {
	case model.TicketActive:
	case model.TicketUsed:
		return v, ErrAlreadyUsed
	default:
		return v, ErrNotActive
	}
	now := s.clock.Now()
	err = s.store.CheckIn(ctx, v.Ticket.ID, staff.ID, now)
	if errors.Is(err, model.ErrStaleState) {
		return v, ErrAlreadyUsed
	}
	if err != nil {
		return View{}, fmt.Errorf("ticket: check in %d: %w", v.Ticket.ID, err)
	}
	v.Ticket.Status = model.TicketUsed
	v.Ticket.CheckedInAt = &now
	staffID := staff.ID
	v.Ticket.CheckedInBy = &staffID
	return v, nil
}

// QR renders the token of ticket id as a PNG for its holder.
func (s *Service) QR(ctx context.Context, id uint64, holder model.Caller) ([]byte, error) {
	v, err := s.store.ViewByID(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ticket: load %d: %w", id, err)
	}
	if !ownedBy(v, holder) {
		return nil, ErrForbidden
	}
	if v.Ticket.Status != model.TicketActive {
		return nil, ErrNotActive
	}
	return qrcode.Encode(s.issuer.Token(v.Ticket), qrcode.Medium, qrPixels)
}

func ownedBy(v View, c model.Caller) bool {
	if c.ID != 0 && v.HolderUserID != nil && *v.HolderUserID == c.ID {
		return true
	}
	return c.Email != "" && strings.EqualFold(c.Email, v.HolderEmail)
}
