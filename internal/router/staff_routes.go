package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/middleware"
	"github.com/iliyamo/event-booking/internal/model"
)

// RegisterStaff registers organizer and admin endpoints: manual payment
// review and venue check-in.  The role check only admits OWNER and ADMIN;
// the services then require the owner to organise the event concerned.
func RegisterStaff(e *echo.Echo, b *handler.BookingHandler, t *handler.TicketHandler, jwtSecret string, users middleware.UserLookup) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret, users),
		middleware.RequireRole(model.RoleOwner, model.RoleAdmin),
	)
	g.POST("/bookings/:id/review", b.Review)
	g.POST("/tickets/resolve", t.Resolve)
	g.POST("/tickets/check-in", t.CheckIn)
}
