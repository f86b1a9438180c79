package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/clock"
	"github.com/iliyamo/event-booking/internal/model"
)

// EventReader is the read side of the event repository.
type EventReader interface {
	GetEvent(ctx context.Context, id uint64) (model.Event, error)
	ListUpcoming(ctx context.Context, now time.Time, limit int) ([]model.Event, error)
}

// EventHandler serves public availability.  Responses are cacheable; the
// booking handlers invalidate them on change.
type EventHandler struct {
	Events EventReader
	Clock  clock.Clock
}

func NewEventHandler(r EventReader, clk clock.Clock) *EventHandler {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &EventHandler{Events: r, Clock: clk}
}

type eventResp struct {
	ID               uint64    `json:"id"`
	Title            string    `json:"title"`
	StartsAt         time.Time `json:"starts_at"`
	IsFree           bool      `json:"is_free"`
	PriceCents       int64     `json:"price_cents"`
	Currency         string    `json:"currency"`
	Capacity         *uint32   `json:"capacity"`
	AvailableTickets *uint32   `json:"available_tickets"`
	SoldOut          bool      `json:"sold_out"`
	WaitlistEnabled  bool      `json:"waitlist_enabled"`
	Started          bool      `json:"started"`
}

func (h *EventHandler) resp(ev model.Event) eventResp {
	return eventResp{
		ID:               ev.ID,
		Title:            ev.Title,
		StartsAt:         ev.StartsAt,
		IsFree:           ev.IsFree,
		PriceCents:       ev.PriceCents,
		Currency:         ev.Currency,
		Capacity:         ev.Capacity,
		AvailableTickets: ev.AvailableTickets,
		SoldOut:          ev.AvailableTickets != nil && *ev.AvailableTickets == 0,
		WaitlistEnabled:  ev.WaitlistEnabled,
		Started:          !h.Clock.Now().Before(ev.StartsAt),
	}
}

// Get handles GET /v1/events/:id.
func (h *EventHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	ev, err := h.Events.GetEvent(c.Request().Context(), id)
	if errors.Is(err, model.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, h.resp(ev))
}

// List handles GET /v1/events?limit=n with upcoming events, soonest first.
func (h *EventHandler) List(c echo.Context) error {
	limit := 20
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 100 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "limit must be between 1 and 100"})
		}
		limit = n
	}
	events, err := h.Events.ListUpcoming(c.Request().Context(), h.Clock.Now(), limit)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]eventResp, 0, len(events))
	for _, ev := range events {
		out = append(out, h.resp(ev))
	}
	return c.JSON(http.StatusOK, echo.Map{"events": out})
}
