package middleware

import (
    "net/http"
    "strings"

    "github.com/golang-jwt/jwt/v5"
    "github.com/labstack/echo/v4"
)

// JWTAuth validates an HS256 Bearer token and stores its subject and role
// in the request context.  Tokens are issued elsewhere; the subject is the
// buyer id and must be a non-empty string.
func JWTAuth(secret string) echo.MiddlewareFunc {
    parser := jwt.NewParser(
        jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
        jwt.WithExpirationRequired(),
    )
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            raw := strings.TrimPrefix(auth, "Bearer ")

            claims := jwt.MapClaims{}
            tok, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
                return []byte(secret), nil
            })
            if err != nil || !tok.Valid {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }

            sub, err := claims.GetSubject()
            if err != nil || sub == "" {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
            }
            role, _ := claims["role"].(string)

            c.Set(ctxBuyerID, sub)
            c.Set(ctxRole, role)
            return next(c)
        }
    }
}
