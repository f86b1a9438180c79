package config

import (
    "testing"
    "time"
)

func TestLoadRateLimitConfigDefaultsAndClamps(t *testing.T) {
    t.Setenv("RATE_LIMIT_KEY_STRATEGY", "bogus")
    t.Setenv("RATE_LIMIT_CAPACITY", "0")
    t.Setenv("RATE_LIMIT_TTL", "1s")
    cfg := LoadRateLimitConfig()
    if cfg.KeyStrategy != "ip_user_route" {
        t.Fatalf("unknown strategy should fall back, got %q", cfg.KeyStrategy)
    }
    if cfg.Capacity != 1 {
        t.Fatalf("capacity = %d, want 1", cfg.Capacity)
    }
    if cfg.TTL < 2*cfg.RefillInterval {
        t.Fatalf("ttl %s shorter than a full refill", cfg.TTL)
    }
}

func TestLoadCacheConfigMethods(t *testing.T) {
    t.Setenv("CACHE_METHODS", "get, head,")
    t.Setenv("CACHE_TTL", "-1s")
    cfg := LoadCacheConfig()
    if !cfg.Methods["GET"] || !cfg.Methods["HEAD"] || len(cfg.Methods) != 2 {
        t.Fatalf("methods = %v", cfg.Methods)
    }
    if cfg.TTL != 15*time.Second {
        t.Fatalf("ttl = %s", cfg.TTL)
    }
}

func TestRedisOptionsPreferURL(t *testing.T) {
    opts, err := RedisConfig{URL: "redis://:secret@cache:6380/2", Addr: "ignored:1"}.Options()
    if err != nil {
        t.Fatal(err)
    }
    if opts.Addr != "cache:6380" || opts.DB != 2 || opts.Password != "secret" {
        t.Fatalf("unexpected options %+v", opts)
    }
    opts, err = RedisConfig{Addr: "localhost:6379", TLS: true}.Options()
    if err != nil {
        t.Fatal(err)
    }
    if opts.TLSConfig == nil {
        t.Fatal("tls requested but not configured")
    }
}

func TestEnvBoolFallsBack(t *testing.T) {
    t.Setenv("X_FLAG", "maybe")
    if !envBool("X_FLAG", true) {
        t.Fatal("unparsable bool should keep the default")
    }
    t.Setenv("X_FLAG", "OFF")
    if envBool("X_FLAG", true) {
        t.Fatal("OFF should parse as false")
    }
}
