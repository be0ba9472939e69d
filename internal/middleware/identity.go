package middleware

import "github.com/labstack/echo/v4"

// Context keys set by JWTAuth.
const (
    ctxBuyerID = "buyer_id"
    ctxRole    = "role"
)

// RoleBuyer is the only role allowed to hold and buy seats.
const RoleBuyer = "BUYER"

// BuyerID returns the authenticated buyer, or "" on public routes.
func BuyerID(c echo.Context) string {
    s, _ := c.Get(ctxBuyerID).(string)
    return s
}

// rateSubject is the buyer id, or "anon" when there is none.
func rateSubject(c echo.Context) string {
    if id := BuyerID(c); id != "" {
        return id
    }
    return "anon"
}
