package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/booking"
	"github.com/iliyamo/event-booking/internal/middleware"
	"github.com/iliyamo/event-booking/internal/model"
)

// BookingEngine is the part of booking.Engine the HTTP layer drives.
type BookingEngine interface {
	Reserve(ctx context.Context, req booking.Request) (booking.Outcome, error)
	Cancel(ctx context.Context, req booking.CancelRequest) (booking.CancelResult, error)
	Review(ctx context.Context, bookingID uint64, reviewer model.Caller, approve bool) (booking.Outcome, error)
	Reconcile(ctx context.Context, ref string) (booking.Outcome, error)
}

// BookingHandler serves reservation, cancellation and manual review.
type BookingHandler struct {
	Engine  BookingEngine
	Notify  Dispatcher
	Cache   Invalidator
	Timeout time.Duration
}

func NewBookingHandler(e BookingEngine, d Dispatcher, cache Invalidator) *BookingHandler {
	return &BookingHandler{Engine: e, Notify: d, Cache: cache, Timeout: 30 * time.Second}
}

type reserveReq struct {
	Email            string `json:"email"`
	PromoCode        string `json:"promo_code"`
	GatewayReference string `json:"gateway_reference"`
	ManualProof      string `json:"manual_proof"`
}

// Reserve handles POST /v1/events/:id/bookings.
func (h *BookingHandler) Reserve(c echo.Context) error {
	eventID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}
	var req reserveReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	email := caller.Email
	if email == "" {
		email = req.Email
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()
	out, err := h.Engine.Reserve(ctx, booking.Request{
		EventID:          eventID,
		Holder:           model.Holder{UserID: caller.ID, Email: email},
		PromoCode:        strings.TrimSpace(req.PromoCode),
		GatewayReference: strings.TrimSpace(req.GatewayReference),
		ManualProof:      strings.TrimSpace(req.ManualProof),
	})
	if err != nil {
		return writeError(c, err)
	}
	h.after(c.Request().Context(), out.Intents, eventID)
	return writeOutcome(c, out)
}

type cancelReq struct {
	RefundCents *int64 `json:"refund_cents"`
}

type cancelResp struct {
	BookingID         uint64                  `json:"booking_id"`
	RefundedCents     int64                   `json:"refunded_cents"`
	TransactionStatus model.TransactionStatus `json:"transaction_status,omitempty"`
}

// Cancel handles DELETE /v1/bookings/:id.  An optional JSON body
// {"refund_cents": n} asks for a partial refund.
func (h *BookingHandler) Cancel(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}
	var req cancelReq
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()
	res, err := h.Engine.Cancel(ctx, booking.CancelRequest{BookingID: id, Actor: caller, RefundCents: req.RefundCents})
	if err != nil {
		return writeError(c, err)
	}
	h.after(c.Request().Context(), res.Intents, 0)
	return c.JSON(http.StatusOK, cancelResp{
		BookingID:         res.BookingID,
		RefundedCents:     res.RefundedCents,
		TransactionStatus: res.TransactionStatus,
	})
}

type reviewReq struct {
	Approve *bool `json:"approve"`
}

// Review handles POST /v1/bookings/:id/review for manual-proof bookings.
func (h *BookingHandler) Review(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}
	var req reviewReq
	if err := c.Bind(&req); err != nil || req.Approve == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "approve must be true or false"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()
	out, err := h.Engine.Review(ctx, id, caller, *req.Approve)
	if err != nil {
		return writeError(c, err)
	}
	h.after(c.Request().Context(), out.Intents, 0)
	return c.JSON(http.StatusOK, outcomeResp{
		State:        out.State,
		BookingID:    out.BookingID,
		TicketID:     out.TicketID,
		TicketNumber: out.TicketNumber,
		Reason:       out.Reason,
	})
}

// after enqueues notifications and drops cached availability for every
// event the operation touched.
func (h *BookingHandler) after(ctx context.Context, intents []booking.Intent, eventID uint64) {
	if h.Notify != nil && len(intents) > 0 {
		h.Notify.Enqueue(intents...)
	}
	if h.Cache == nil {
		return
	}
	if eventID != 0 {
		intents = append([]booking.Intent{{EventID: eventID}}, intents...)
	}
	for _, id := range touchedEvents(intents) {
		InvalidateEvent(ctx, h.Cache, id)
	}
}
