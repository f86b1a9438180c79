package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/middleware"
)

// RegisterHolder registers endpoints for any authenticated caller.  Booking
// creation is rate limited per user and route.  Whether the caller may
// cancel a booking or render a ticket is decided by the services.
func RegisterHolder(e *echo.Echo, b *handler.BookingHandler, t *handler.TicketHandler, jwtSecret string, users middleware.UserLookup, limit echo.MiddlewareFunc) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret, users))
	if limit != nil {
		g.POST("/events/:id/bookings", b.Reserve, limit)
	} else {
		g.POST("/events/:id/bookings", b.Reserve)
	}
	g.DELETE("/bookings/:id", b.Cancel)
	g.GET("/tickets/:id/qr", t.QR)
}
