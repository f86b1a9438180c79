package config

import (
    "strings"
    "time"
)

// CacheConfig controls the Redis response cache in front of the public
// event endpoints.  Entries are keyed by the concrete request path so a
// booking write can drop exactly the event it touched.
type CacheConfig struct {
    Enabled      bool
    Methods      map[string]bool
    TTL          time.Duration
    KeyStrategy  string // path, path_query or method_path_query
    Prefix       string
    MaxBodyBytes int
}

// LoadCacheConfig keeps TTLs short by default: remaining capacity is shown
// on the event page and stale numbers mislead holders.
func LoadCacheConfig() CacheConfig {
    cfg := CacheConfig{
        Enabled:      envBool("CACHE_ENABLED", true),
        Methods:      map[string]bool{},
        TTL:          envDur("CACHE_TTL", 15*time.Second),
        KeyStrategy:  strings.ToLower(envStr("CACHE_KEY_STRATEGY", "path_query")),
        Prefix:       envStr("CACHE_PREFIX", "cache:events"),
        MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
    }
    for _, m := range strings.Split(envStr("CACHE_METHODS", "GET"), ",") {
        if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
            cfg.Methods[m] = true
        }
    }
    if cfg.TTL <= 0 {
        cfg.TTL = 15 * time.Second
    }
    return cfg
}
