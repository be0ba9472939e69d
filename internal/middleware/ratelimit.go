package middleware

import (
    "log/slog"
    "math"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/seat-reservation-engine/internal/config"
    "github.com/iliyamo/seat-reservation-engine/internal/lib/logger/sl"
)

var limiterScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill_tokens = tonumber(ARGV[3])
local interval_ms = tonumber(ARGV[4])
local ttl_seconds = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if tokens == nil or last_refill == nil then
    tokens = capacity
    last_refill = now_ms
end

local elapsed = math.max(0, now_ms - last_refill)
local intervals = math.floor(elapsed / interval_ms)
if intervals > 0 then
    tokens = math.min(capacity, tokens + (intervals * refill_tokens))
    last_refill = last_refill + (intervals * interval_ms)
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
    allowed = 1
    tokens = tokens - 1
else
    retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)

return { allowed, tokens, retry_after_ms }
`)

// NewTokenBucket limits requests per key with a Redis token bucket.  It is
// a no-op when disabled or without Redis, and lets requests through when
// the script fails.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *slog.Logger) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    log = log.With(slog.String("component", "ratelimit"))

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := buildRateKey(cfg, c)
            args := []interface{}{
                time.Now().UnixMilli(),
                cfg.Capacity,
                cfg.RefillTokens,
                cfg.RefillInterval.Milliseconds(),
                int64(cfg.TTL / time.Second),
            }

            vals, err := limiterScript.Run(c.Request().Context(), rdb, []string{key}, args...).Int64Slice()
            if err != nil || len(vals) != 3 {
                log.Warn("limiter unavailable, allowing request", slog.String("key", key), sl.Err(err))
                return next(c)
            }
            allowed, remaining, retryMs := vals[0] == 1, vals[1], vals[2]

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
            if cfg.Debug {
                h.Set("X-RateLimit-Key", key)
            }

            if !allowed {
                secs := int(math.Ceil(float64(retryMs) / 1000.0))
                h.Set("Retry-After", strconv.Itoa(secs))
                log.Debug("request limited", slog.String("key", key), slog.Int64("retry_ms", retryMs))
                return c.JSON(http.StatusTooManyRequests, map[string]any{
                    "error":       "rate limit exceeded",
                    "retry_after": secs,
                })
            }
            return next(c)
        }
    }
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    buyer := rateSubject(c)
    route := c.Request().Method + " " + c.Path()

    parts := []string{cfg.Prefix}
    switch strings.ToLower(cfg.KeyStrategy) {
    case "ip":
        parts = append(parts, "ip", ip)
    case "buyer":
        parts = append(parts, "buyer", buyer)
    case "route":
        parts = append(parts, "route", route)
    case "ip_buyer":
        parts = append(parts, "ip", ip, "buyer", buyer)
    case "ip_route":
        parts = append(parts, "ip", ip, "route", route)
    case "buyer_route":
        parts = append(parts, "buyer", buyer, "route", route)
    default:
        parts = append(parts, "ip", ip, "buyer", buyer, "route", route)
    }
    return strings.Join(parts, ":")
}
