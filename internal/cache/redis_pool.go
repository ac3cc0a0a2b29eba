package cache

import (
	"time"

	"github.com/gin-contrib/cache/persistence"
	redigo "github.com/gomodule/redigo/redis"
)

const (
	poolMaxIdle        = 5
	poolIdleTimeout    = 240 * time.Second
	poolConnectTimeout = 5 * time.Second
)

// NewRedisPool returns the connection pool behind the Redis page and snapshot
// stores. Every command on it is bounded by ioTimeout, since those stores
// take no context.
func NewRedisPool(addr, password string, db int, ioTimeout time.Duration) *redigo.Pool {
	return &redigo.Pool{
		MaxIdle:     poolMaxIdle,
		IdleTimeout: poolIdleTimeout,
		Dial: func() (redigo.Conn, error) {
			return redigo.Dial("tcp", addr,
				redigo.DialPassword(password),
				redigo.DialDatabase(db),
				redigo.DialConnectTimeout(poolConnectTimeout),
				redigo.DialReadTimeout(ioTimeout),
				redigo.DialWriteTimeout(ioTimeout),
			)
		},
		TestOnBorrow: func(c redigo.Conn, t time.Time) error {
			if time.Since(t) < 30*time.Second {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// NewRedisStore wraps pool as a persistence.CacheStore.
func NewRedisStore(pool *redigo.Pool, defaultExpiration time.Duration) persistence.CacheStore {
	return persistence.NewRedisCacheWithPool(pool, defaultExpiration)
}
