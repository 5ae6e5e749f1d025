package storage

import (
	"context"
	"sync"

	pkgerr "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// VersionSource hands out navigation-state versions. Versions must be
// monotonically increasing per party across every gateway instance,
// because the fan-out layer gives no ordering guarantee between
// publishes from different instances.
type VersionSource interface {
	Next(ctx context.Context, partyID string) (int64, error)
}

func versionKey(partyID string) string { return "convoy:nav:ver:" + partyID }

// RedisVersionSource uses INCR, which is atomic across all writers.
type RedisVersionSource struct {
	rdb *redis.Client
}

func NewRedisVersionSource(rdb *redis.Client) *RedisVersionSource {
	return &RedisVersionSource{rdb: rdb}
}

func (v *RedisVersionSource) Next(ctx context.Context, partyID string) (int64, error) {
	n, err := v.rdb.Incr(ctx, versionKey(partyID)).Result()
	if err != nil {
		return 0, pkgerr.Wrap(err, "next nav version")
	}
	return n, nil
}

// MemoryVersionSource is the single-process counterpart.
type MemoryVersionSource struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewMemoryVersionSource() *MemoryVersionSource {
	return &MemoryVersionSource{counters: make(map[string]int64)}
}

func (v *MemoryVersionSource) Next(_ context.Context, partyID string) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.counters[partyID]++
	return v.counters[partyID], nil
}
