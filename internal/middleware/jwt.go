package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "context"
    "log"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/golang-jwt/jwt/v5" // JWT library for parsing and validating tokens
    "github.com/labstack/echo/v4"  // Echo framework used for defining middleware and handlers

    "github.com/iliyamo/event-booking/internal/model"
)

// UserLookup resolves a caller's email when the token does not carry one.
type UserLookup interface {
    GetByID(ctx context.Context, id uint64) (model.User, error)
}

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and stores the resulting model.Caller in the context.  The "sub" claim is
// the user id, "role" the role and "email" an optional contact address.
// When users is non-nil and the token has no email, it is looked up.
// Handlers read the caller with CallerFrom; "user_id" and "role" are also
// set as strings for the rate limiter and RequireRole.
func JWTAuth(secret string, users UserLookup) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            raw := strings.TrimPrefix(auth, "Bearer ")

            // Only HMAC-signed tokens are accepted.
            tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
                if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
                    return nil, echo.ErrUnauthorized
                }
                return []byte(secret), nil
            })
            if err != nil || !tok.Valid {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }
            claims, ok := tok.Claims.(jwt.MapClaims)
            if !ok {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
            }
            caller, ok := callerFromClaims(claims)
            if !ok {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid subject"})
            }
            if caller.Email == "" && users != nil {
                ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
                u, err := users.GetByID(ctx, caller.ID)
                cancel()
                switch {
                case err == nil && !u.IsActive:
                    return c.JSON(http.StatusUnauthorized, echo.Map{"error": "account disabled"})
                case err == nil:
                    caller.Email = u.Email
                default:
                    log.Printf("auth: email lookup for user %d failed: %v", caller.ID, err)
                }
            }

            c.Set(callerKey, caller)
            c.Set("user_id", strconv.FormatUint(caller.ID, 10))
            c.Set("role", caller.Role)
            return next(c)
        }
    }
}

// callerFromClaims reads sub as a JSON number or a decimal string.
func callerFromClaims(claims jwt.MapClaims) (model.Caller, bool) {
    var id uint64
    switch v := claims["sub"].(type) {
    case float64:
        if v <= 0 || v != float64(uint64(v)) {
            return model.Caller{}, false
        }
        id = uint64(v)
    case string:
        n, err := strconv.ParseUint(v, 10, 64)
        if err != nil || n == 0 {
            return model.Caller{}, false
        }
        id = n
    default:
        return model.Caller{}, false
    }
    role, _ := claims["role"].(string)
    email, _ := claims["email"].(string)
    return model.Caller{
        ID:    id,
        Role:  strings.ToUpper(strings.TrimSpace(role)),
        Email: strings.ToLower(strings.TrimSpace(email)),
    }, true
}
