package storage

import (
	"context"
	"strings"
	"time"

	pkgerr "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Presence tracks which members are currently connected, and through
// which gateway instance. The TTL bounds how long a crashed gateway can
// leave a member looking online.
type Presence interface {
	Online(ctx context.Context, partyID, userID, gatewayID string, ttl time.Duration) error
	Offline(ctx context.Context, partyID, userID string) error
	Lookup(ctx context.Context, partyID, userID string) (gatewayID string, online bool, err error)
	List(ctx context.Context, partyID string) (userIDs []string, err error)
}

// presence key: convoy:presence:<party>:<user>
// Value: gateway_id, TTL controls the online validity period.
func presenceKey(partyID, userID string) string {
	return "convoy:presence:" + partyID + ":" + userID
}

func presencePrefix(partyID string) string {
	return "convoy:presence:" + partyID + ":"
}

type RedisPresence struct {
	rdb *redis.Client
}

func NewRedisPresence(rdb *redis.Client) *RedisPresence {
	return &RedisPresence{rdb: rdb}
}

func (p *RedisPresence) Online(ctx context.Context, partyID, userID, gatewayID string, ttl time.Duration) error {
	return p.rdb.Set(ctx, presenceKey(partyID, userID), gatewayID, ttl).Err()
}

func (p *RedisPresence) Offline(ctx context.Context, partyID, userID string) error {
	return p.rdb.Del(ctx, presenceKey(partyID, userID)).Err()
}

func (p *RedisPresence) Lookup(ctx context.Context, partyID, userID string) (string, bool, error) {
	val, err := p.rdb.Get(ctx, presenceKey(partyID, userID)).Result()
	if pkgerr.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (p *RedisPresence) List(ctx context.Context, partyID string) ([]string, error) {
	prefix := presencePrefix(partyID)
	var out []string
	iter := p.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		out = append(out, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, pkgerr.Wrap(err, "scan presence")
	}
	return out, nil
}
