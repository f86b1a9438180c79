package config

import (
    "context"
    "crypto/tls"
    "net"
    "time"

    "github.com/redis/go-redis/v9"
)

// RedisConfig locates the Redis instance shared by the response cache, the
// reservation rate limiter and the reconcile locks.
//
//   REDIS_URL                  redis:// or rediss:// URL, wins when set
//   REDIS_HOST, REDIS_PORT     host and port (default localhost:6379)
//   REDIS_PASSWORD, REDIS_DB   credentials and database number
//   REDIS_TLS                  dial with TLS
//   REDIS_ENABLED              false skips Redis entirely
type RedisConfig struct {
    Enabled  bool
    URL      string
    Addr     string
    Password string
    DB       int
    TLS      bool
}

func LoadRedisConfig() RedisConfig {
    return RedisConfig{
        Enabled:  envBool("REDIS_ENABLED", true),
        URL:      envStr("REDIS_URL", ""),
        Addr:     net.JoinHostPort(envStr("REDIS_HOST", "localhost"), envStr("REDIS_PORT", "6379")),
        Password: envStr("REDIS_PASSWORD", ""),
        DB:       envInt("REDIS_DB", 0),
        TLS:      envBool("REDIS_TLS", false),
    }
}

// Options converts the config into client options.
func (c RedisConfig) Options() (*redis.Options, error) {
    if c.URL != "" {
        return redis.ParseURL(c.URL)
    }
    opts := &redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB}
    if c.TLS {
        opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    return opts, nil
}

// NewRedisClient connects and pings.  It returns nil, nil when Redis is
// disabled; callers then run without caching, rate limiting or reconcile
// locks.
func NewRedisClient(ctx context.Context, c RedisConfig) (*redis.Client, error) {
    if !c.Enabled {
        return nil, nil
    }
    opts, err := c.Options()
    if err != nil {
        return nil, err
    }
    client := redis.NewClient(opts)
    pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    if err := client.Ping(pingCtx).Err(); err != nil {
        _ = client.Close()
        return nil, err
    }
    return client, nil
}
