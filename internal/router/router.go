package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/middleware"
)

// RegisterRoutes registers the liveness and readiness probes.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	if db != nil {
		e.GET("/readyz", handler.Ready(db))
	}
}

// RegisterPublic registers unauthenticated browse endpoints.  Responses go
// through the Redis response cache; booking writes invalidate them.
func RegisterPublic(e *echo.Echo, h *handler.EventHandler, cache *middleware.ResponseCache) {
	g := e.Group("/v1/events", cache.Middleware())
	g.GET("", h.List)
	g.GET("/:id", h.Get)
}

// RegisterWebhooks registers gateway callbacks.  They carry no JWT; the
// handler checks the callback token.
func RegisterWebhooks(e *echo.Echo, h *handler.WebhookHandler) {
	e.POST("/v1/webhooks/payments", h.Payment)
}
