package middleware

// identity.go holds the helpers that read the authenticated caller back out
// of the Echo context.

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/event-booking/internal/model"
)

const callerKey = "caller"

// CallerFrom returns the caller stored by JWTAuth.  ok is false on routes
// that are not authenticated.
func CallerFrom(c echo.Context) (model.Caller, bool) {
    caller, ok := c.Get(callerKey).(model.Caller)
    return caller, ok
}

// userID returns the caller's id as a string, or "anon" for guests.
func userID(c echo.Context) string {
    if v, ok := c.Get("user_id").(string); ok && v != "" {
        return v
    }
    return "anon"
}
