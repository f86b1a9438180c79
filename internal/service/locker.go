package service

import (
    "context"
    "log"
    "time"

    "github.com/google/uuid"
    "github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
    if redis.call('GET', KEYS[1]) == ARGV[1] then
        return redis.call('DEL', KEYS[1])
    end
    return 0
`)

// RedisLocker implements booking.Locker with SET NX PX.  A nil client
// grants every lock.
type RedisLocker struct {
    rdb    *redis.Client
    prefix string
}

func NewRedisLocker(rdb *redis.Client, prefix string) *RedisLocker {
    if prefix == "" {
        prefix = "lock"
    }
    return &RedisLocker{rdb: rdb, prefix: prefix}
}

// Acquire takes key for ttl.  ok is false when someone else holds it.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
    if l.rdb == nil {
        return func() {}, true, nil
    }
    full := l.prefix + ":" + key
    token := uuid.NewString()
    ok, err := l.rdb.SetNX(ctx, full, token, ttl).Result()
    if err != nil {
        return nil, false, err
    }
    if !ok {
        return nil, false, nil
    }
    release := func() {
        rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
        defer cancel()
        if err := releaseScript.Run(rctx, l.rdb, []string{full}, token).Err(); err != nil {
            log.Printf("redis: release %s failed: %v", full, err)
        }
    }
    return release, true, nil
}
