package config

import (
    "strings"
    "time"
)

// CacheConfig defines settings for the response cache middleware.  Only
// event reference data is cached; seat state never is.  When Enabled is
// false or Redis is unreachable, caching is off.
type CacheConfig struct {
    Enabled      bool
    Methods      map[string]bool
    TTL          time.Duration
    KeyStrategy  string // path, path_query or method_path_query
    Prefix       string
    MaxBodyBytes int
}

// LoadCacheConfig reads CACHE_* variables.  Methods are upper-cased.
func LoadCacheConfig() CacheConfig {
    methods := map[string]bool{}
    for _, m := range envList("CACHE_METHODS", "GET") {
        methods[strings.ToUpper(m)] = true
    }
    return CacheConfig{
        Enabled:      envBool("CACHE_ENABLED", true),
        Methods:      methods,
        TTL:          envDur("CACHE_TTL", 30*time.Second),
        KeyStrategy:  envStr("CACHE_KEY_STRATEGY", "path_query"),
        Prefix:       envStr("CACHE_PREFIX", "cache"),
        MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
    }
}
