package config

import "time"

// RateLimitConfig configures the Redis token bucket in front of the buyer
// routes.  Each key gets Capacity tokens and regains RefillTokens every
// RefillInterval.
type RateLimitConfig struct {
    Enabled        bool
    Capacity       int
    RefillTokens   int
    RefillInterval time.Duration
    TTL            time.Duration
    KeyStrategy    string // ip, buyer, route or a combination joined by "_"
    Prefix         string
    Debug          bool
}

func LoadRateLimitConfig() RateLimitConfig {
    cfg := RateLimitConfig{
        Enabled:        envBool("RATE_LIMIT_ENABLED", true),
        Capacity:       envInt("RATE_LIMIT_CAPACITY", 30),
        RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
        RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
        TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
        KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "buyer_route"),
        Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
        Debug:          envBool("RATE_LIMIT_DEBUG", false),
    }
    return cfg.normalize()
}

func (c RateLimitConfig) normalize() RateLimitConfig {
    if c.Capacity < 1 {
        c.Capacity = 1
    }
    if c.RefillTokens < 1 {
        c.RefillTokens = 1
    }
    if c.RefillInterval <= 0 {
        c.RefillInterval = time.Second
    }
    // an idle bucket must outlive the time it takes to refill
    if minTTL := 5 * c.RefillInterval; c.TTL < minTTL {
        c.TTL = minTTL
    }
    return c
}
