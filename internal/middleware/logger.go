package middleware

import (
    "context"
    "log/slog"

    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"
)

// RequestLogger writes one structured line per request.  Server errors log
// at error level; everything else at info.
func RequestLogger(log *slog.Logger) echo.MiddlewareFunc {
    return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
        LogMethod:    true,
        LogURI:       true,
        LogStatus:    true,
        LogLatency:   true,
        LogRemoteIP:  true,
        LogRequestID: true,
        LogError:     true,
        HandleError:  true,
        LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
            level := slog.LevelInfo
            if v.Status >= 500 {
                level = slog.LevelError
            }
            attrs := []slog.Attr{
                slog.String("method", v.Method),
                slog.String("uri", v.URI),
                slog.Int("status", v.Status),
                slog.Duration("latency", v.Latency),
                slog.String("remote_ip", v.RemoteIP),
            }
            if v.RequestID != "" {
                attrs = append(attrs, slog.String("request_id", v.RequestID))
            }
            if id := BuyerID(c); id != "" {
                attrs = append(attrs, slog.String("buyer_id", id))
            }
            if v.Error != nil {
                attrs = append(attrs, slog.String("error", v.Error.Error()))
            }
            log.LogAttrs(context.Background(), level, "request", attrs...)
            return nil
        },
    })
}
