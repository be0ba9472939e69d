package config

import (
    "context"
    "crypto/tls"
    "fmt"
    "os"

    "github.com/redis/go-redis/v9"
)

// RedisConfig locates the Redis server shared by the ledger, the rate
// limiter and the response cache.
type RedisConfig struct {
    Addr     string
    Password string
    DB       int
    TLS      bool
}

// LoadRedisConfig reads REDIS_ADDR, or REDIS_HOST and REDIS_PORT (which win
// when both are set), plus REDIS_PASSWORD, REDIS_DB and REDIS_TLS.
func LoadRedisConfig() RedisConfig {
    addr := envStr("REDIS_ADDR", "localhost:6379")
    if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" && port != "" {
        addr = host + ":" + port
    }
    return RedisConfig{
        Addr:     addr,
        Password: os.Getenv("REDIS_PASSWORD"),
        DB:       envInt("REDIS_DB", 0),
        TLS:      envBool("REDIS_TLS", false),
    }
}

// NewRedisClient connects and pings.  On failure the client is closed and
// the error returned; callers decide whether Redis is optional for them.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
    opts := &redis.Options{
        Addr:     cfg.Addr,
        Password: cfg.Password,
        DB:       cfg.DB,
    }
    if cfg.TLS {
        opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    client := redis.NewClient(opts)
    if err := client.Ping(ctx).Err(); err != nil {
        _ = client.Close()
        return nil, fmt.Errorf("config.NewRedisClient: ping %s: %w", cfg.Addr, err)
    }
    return client, nil
}
