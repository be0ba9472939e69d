package middleware

import (
    "bytes"
    "context"
    "crypto/sha1"
    "encoding/binary"
    "encoding/json"
    "errors"
    "fmt"
    "log/slog"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/seat-reservation-engine/internal/config"
    "github.com/iliyamo/seat-reservation-engine/internal/lib/logger/sl"
)

// captureWriter forwards the response while keeping up to limit bytes of
// the body.  overflow is set once the body no longer fits.
type captureWriter struct {
    http.ResponseWriter
    status   int
    buf      bytes.Buffer
    limit    int
    overflow bool
}

func (cw *captureWriter) WriteHeader(code int) {
    cw.status = code
    cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
    if !cw.overflow {
        if cw.limit > 0 && cw.buf.Len()+len(b) > cw.limit {
            cw.overflow = true
            cw.buf.Reset()
        } else {
            cw.buf.Write(b)
        }
    }
    return cw.ResponseWriter.Write(b)
}

// cacheKeyFrom hashes the request path (not the route template, which is
// the same for every event) with the method and query as configured.
func cacheKeyFrom(cfg config.CacheConfig, r *http.Request) string {
    var tail string
    switch strings.ToLower(cfg.KeyStrategy) {
    case "path":
        tail = "path:" + r.URL.Path
    case "method_path_query":
        tail = "method:" + r.Method + ":path:" + r.URL.Path + ":q:" + r.URL.RawQuery
    default: // path_query
        tail = "path:" + r.URL.Path + ":q:" + r.URL.RawQuery
    }
    sum := sha1.Sum([]byte(tail))
    return fmt.Sprintf("%s:%x", cfg.Prefix, sum[:])
}

// encodePayload packs [4 bytes status][4 bytes header length][header JSON][body].
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
    hdrJSON, err := json.Marshal(header)
    if err != nil {
        return nil, err
    }
    out := make([]byte, 8+len(hdrJSON)+len(body))
    binary.BigEndian.PutUint32(out[0:4], uint32(status))
    binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
    copy(out[8:], hdrJSON)
    copy(out[8+len(hdrJSON):], body)
    return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
    if len(bs) < 8 {
        return 0, nil, nil, false
    }
    status = int(binary.BigEndian.Uint32(bs[0:4]))
    hlen := int(binary.BigEndian.Uint32(bs[4:8]))
    if hlen < 0 || 8+hlen > len(bs) {
        return 0, nil, nil, false
    }
    header = make(http.Header)
    if hlen > 0 {
        if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
            return 0, nil, nil, false
        }
    }
    return status, header, bs[8+hlen:], true
}

// NewRedisCache caches 200 responses of the configured methods, headers
// included.  Responses larger than MaxBodyBytes are served but not cached.
// Without Redis, or when disabled, it passes requests through.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client, log *slog.Logger) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    ttl := cfg.TTL
    if ttl <= 0 {
        ttl = 30 * time.Second
    }
    log = log.With(slog.String("component", "cache"))

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            req := c.Request()
            if !cfg.Methods[req.Method] {
                return next(c)
            }
            key := cacheKeyFrom(cfg, req)

            if bs, err := rdb.Get(req.Context(), key).Bytes(); err == nil {
                if status, hdr, body, ok := decodePayload(bs); ok {
                    for k, vals := range hdr {
                        if strings.EqualFold(k, echo.HeaderContentLength) {
                            continue
                        }
                        for _, v := range vals {
                            c.Response().Header().Add(k, v)
                        }
                    }
                    c.Response().Header().Set("X-Cache", "HIT")
                    c.Response().WriteHeader(status)
                    _, err := c.Response().Write(body)
                    return err
                }
            } else if !errors.Is(err, redis.Nil) {
                log.Warn("cache read failed", slog.String("key", key), sl.Err(err))
            }

            cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: cfg.MaxBodyBytes}
            c.Response().Writer = cw
            c.Response().Header().Set("X-Cache", "MISS")

            if err := next(c); err != nil {
                return err
            }
            if cw.status != http.StatusOK || cw.overflow {
                return nil
            }

            hdr := c.Response().Header().Clone()
            hdr.Del("X-Cache")
            payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes())
            if err != nil {
                return nil
            }
            if err := rdb.Set(context.WithoutCancel(req.Context()), key, payload, ttl).Err(); err != nil {
                log.Warn("cache write failed", slog.String("key", key), sl.Err(err))
            }
            return nil
        }
    }
}
