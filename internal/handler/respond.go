package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/booking"
	"github.com/iliyamo/event-booking/internal/payment"
	"github.com/iliyamo/event-booking/internal/ticket"
)

// Dispatcher schedules notification intents off the request path.
type Dispatcher interface {
	Enqueue(intents ...booking.Intent)
}

// Invalidator drops cached GET responses for a path.
type Invalidator interface {
	Invalidate(ctx context.Context, path string)
}

type outcomeResp struct {
	State        booking.State  `json:"state"`
	BookingID    uint64         `json:"booking_id,omitempty"`
	TicketID     uint64         `json:"ticket_id,omitempty"`
	TicketNumber string         `json:"ticket_number,omitempty"`
	Position     uint32         `json:"waitlist_position,omitempty"`
	Reason       booking.Reason `json:"reason,omitempty"`
}

// outcomeStatus maps a reservation outcome to its HTTP status.
func outcomeStatus(o booking.Outcome) int {
	switch o.State {
	case booking.StateConfirmed:
		return http.StatusCreated
	case booking.StateAwaitingPayment, booking.StateWaitlisted:
		return http.StatusAccepted
	}
	switch o.Reason {
	case booking.ReasonEventNotFound:
		return http.StatusNotFound
	case booking.ReasonSoldOut, booking.ReasonDuplicateBooking:
		return http.StatusConflict
	case booking.ReasonPaymentRequired, booking.ReasonPaymentFailed:
		return http.StatusPaymentRequired
	case booking.ReasonPromoInvalid, booking.ReasonPromoExhausted:
		return http.StatusUnprocessableEntity
	}
	return http.StatusOK
}

func writeOutcome(c echo.Context, o booking.Outcome) error {
	return c.JSON(outcomeStatus(o), outcomeResp{
		State:        o.State,
		BookingID:    o.BookingID,
		TicketID:     o.TicketID,
		TicketNumber: o.TicketNumber,
		Position:     o.Position,
		Reason:       o.Reason,
	})
}

// errorStatus maps engine and ticket errors to HTTP statuses.  Anything
// unknown is a 500.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, booking.ErrInvariant):
		return http.StatusInternalServerError
	case errors.Is(err, booking.ErrHolderUnresolved),
		errors.Is(err, ticket.ErrInvalidToken):
		return http.StatusBadRequest
	case errors.Is(err, booking.ErrForbidden),
		errors.Is(err, ticket.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, booking.ErrBookingNotFound),
		errors.Is(err, ticket.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrEventStarted),
		errors.Is(err, booking.ErrBookingNotActive),
		errors.Is(err, booking.ErrInvalidTransition),
		errors.Is(err, booking.ErrTicketUsed),
		errors.Is(err, booking.ErrReconcileInFlight),
		errors.Is(err, ticket.ErrAlreadyUsed),
		errors.Is(err, ticket.ErrNotActive):
		return http.StatusConflict
	case errors.Is(err, booking.ErrInvalidRefund):
		return http.StatusUnprocessableEntity
	case errors.Is(err, booking.ErrGatewayUnavailable),
		errors.Is(err, payment.ErrNotConfigured):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(c echo.Context, err error) error {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("http: %s %s: %v", c.Request().Method, c.Path(), err)
		return c.JSON(status, echo.Map{"error": "internal error"})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}

func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// touchedEvents lists the distinct events named by intents.
func touchedEvents(intents []booking.Intent) []uint64 {
	var out []uint64
	seen := map[uint64]bool{}
	for _, in := range intents {
		if in.EventID != 0 && !seen[in.EventID] {
			seen[in.EventID] = true
			out = append(out, in.EventID)
		}
	}
	return out
}

// EventPath is the public availability path of an event and the key the
// response cache stores it under.
func EventPath(id uint64) string {
	return "/v1/events/" + strconv.FormatUint(id, 10)
}

// InvalidateEvent drops the cached availability of an event.
func InvalidateEvent(ctx context.Context, cache Invalidator, id uint64) {
	if cache == nil || id == 0 {
		return
	}
	cache.Invalidate(ctx, EventPath(id))
}
