package middleware

import (
    "net/http"

    "github.com/labstack/echo/v4"
)

// RequireRole aborts with 403 unless JWTAuth stored one of roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
    allowed := make(map[string]bool, len(roles))
    for _, r := range roles {
        allowed[r] = true
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            role, ok := c.Get(ctxRole).(string)
            if !ok || !allowed[role] {
                return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
            }
            return next(c)
        }
    }
}
