package storage

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	redisOnce sync.Once
	redisMgr  *redisManager
)

type redisManager struct {
	client *redis.Client
}

// RedisConfig initializes the shared Redis client.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// InitRedis connects the process-wide Redis client (singleton).
func InitRedis(c RedisConfig) error {
	var initErr error
	redisOnce.Do(func() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     c.Addr,
			Password: c.Password,
			DB:       c.DB,
			PoolSize: c.PoolSize,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := rdb.Ping(ctx).Err(); err != nil {
			initErr = err
			return
		}

		redisMgr = &redisManager{client: rdb}
	})
	return initErr
}

// GetRedis returns the shared client; InitRedis must have run.
func GetRedis() *redis.Client {
	if redisMgr == nil {
		panic("redis not initialized, call InitRedis first")
	}
	return redisMgr.client
}

// CloseRedis closes the shared client.
func CloseRedis() error {
	if redisMgr != nil && redisMgr.client != nil {
		return redisMgr.client.Close()
	}
	return nil
}
