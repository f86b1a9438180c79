package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/booking"
)

// WebhookHandler receives payment gateway callbacks.  The body only names
// the payment; its status is always re-verified through the gateway.
type WebhookHandler struct {
	Bookings *BookingHandler
	Token    string
}

func NewWebhookHandler(b *BookingHandler, token string) *WebhookHandler {
	return &WebhookHandler{Bookings: b, Token: token}
}

type webhookBody struct {
	Event     string `json:"event"`
	Reference string `json:"reference"`
	Data      struct {
		ID               string `json:"id"`
		PaymentRequestID string `json:"payment_request_id"`
		ReferenceID      string `json:"reference_id"`
	} `json:"data"`
}

func (b webhookBody) ref() string {
	for _, s := range []string{b.Data.PaymentRequestID, b.Reference, b.Data.ID} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// Payment handles POST /v1/webhooks/payments.  Non-2xx answers make the
// gateway retry: unknown references (the reservation may not be stored
// yet), a reconciliation already in flight and gateway outages all do.
func (h *WebhookHandler) Payment(c echo.Context) error {
	got := c.Request().Header.Get("x-callback-token")
	if h.Token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.Token)) != 1 {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid callback token"})
	}
	var body webhookBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ref := body.ref()
	if ref == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing payment reference"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()
	out, err := h.Bookings.Engine.Reconcile(ctx, ref)
	if errors.Is(err, booking.ErrBookingNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown payment reference"})
	}
	if err != nil {
		return writeError(c, err)
	}
	h.Bookings.after(c.Request().Context(), out.Intents, 0)
	return c.JSON(http.StatusOK, outcomeResp{
		State:        out.State,
		BookingID:    out.BookingID,
		TicketID:     out.TicketID,
		TicketNumber: out.TicketNumber,
		Reason:       out.Reason,
	})
}
