package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/middleware"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/ticket"
)

// TicketService is the venue-facing ticket API.
type TicketService interface {
	Resolve(ctx context.Context, token string) (ticket.View, error)
	CheckIn(ctx context.Context, token string, staff model.Caller) (ticket.View, error)
	QR(ctx context.Context, id uint64, holder model.Caller) ([]byte, error)
}

type TicketHandler struct {
	Tickets TicketService
}

func NewTicketHandler(s TicketService) *TicketHandler { return &TicketHandler{Tickets: s} }

type tokenReq struct {
	Token string `json:"token"`
}

type ticketResp struct {
	TicketID     uint64             `json:"ticket_id"`
	TicketNumber string             `json:"ticket_number"`
	BookingID    uint64             `json:"booking_id"`
	EventID      uint64             `json:"event_id"`
	Status       model.TicketStatus `json:"status"`
	CheckedInAt  *time.Time         `json:"checked_in_at,omitempty"`
	CheckedInBy  *uint64            `json:"checked_in_by,omitempty"`
}

func viewResp(v ticket.View) ticketResp {
	return ticketResp{
		TicketID:     v.Ticket.ID,
		TicketNumber: v.Ticket.TicketNumber,
		BookingID:    v.Ticket.BookingID,
		EventID:      v.EventID,
		Status:       v.Ticket.Status,
		CheckedInAt:  v.Ticket.CheckedInAt,
		CheckedInBy:  v.Ticket.CheckedInBy,
	}
}

func bindToken(c echo.Context) (string, bool) {
	var req tokenReq
	if err := c.Bind(&req); err != nil {
		return "", false
	}
	req.Token = strings.TrimSpace(req.Token)
	return req.Token, req.Token != ""
}

// Resolve handles POST /v1/tickets/resolve.  Staff see the status of the
// ticket behind a scanned token without changing it.
func (h *TicketHandler) Resolve(c echo.Context) error {
	caller, _ := middleware.CallerFrom(c)
	token, ok := bindToken(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token required"})
	}
	v, err := h.Tickets.Resolve(c.Request().Context(), token)
	if err != nil {
		return writeError(c, err)
	}
	if !caller.IsReviewerFor(v.OrganizerID) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": ticket.ErrForbidden.Error()})
	}
	return c.JSON(http.StatusOK, viewResp(v))
}

// CheckIn handles POST /v1/tickets/check-in.  A second scan answers 409
// with the original check-in details.
func (h *TicketHandler) CheckIn(c echo.Context) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}
	token, ok := bindToken(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token required"})
	}
	v, err := h.Tickets.CheckIn(c.Request().Context(), token, caller)
	if err != nil {
		if v.Ticket.ID != 0 {
			return c.JSON(errorStatus(err), echo.Map{"error": err.Error(), "ticket": viewResp(v)})
		}
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, viewResp(v))
}

// QR handles GET /v1/tickets/:id/qr and returns a PNG for the holder.
func (h *TicketHandler) QR(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}
	png, err := h.Tickets.QR(c.Request().Context(), id, caller)
	if err != nil {
		return writeError(c, err)
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.Blob(http.StatusOK, "image/png", png)
}
