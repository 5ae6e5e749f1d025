package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/convoylab/convoy/module/party"

	pkgerr "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultLocationTTL is how long a last-known position stays addressable
// without a refresh. An expired key reads identically to "never set".
const DefaultLocationTTL = 5 * time.Minute

// LocationStore holds the last known position per (party, user) so a
// joining member immediately sees everyone else. Overwrite-by-key, TTL
// refreshed on every write, no history.
type LocationStore interface {
	Put(ctx context.Context, partyID, userID string, sample party.LocationSample, ttl time.Duration) error
	Get(ctx context.Context, partyID, userID string) (*party.LocationSample, error)
	GetAll(ctx context.Context, partyID string) ([]party.LocationSample, error)
}

// location key: convoy:loc:<party>:<user>
// Value: the JSON-encoded sample; TTL bounds staleness.
func locationKey(partyID, userID string) string {
	return "convoy:loc:" + partyID + ":" + userID
}

func locationPrefix(partyID string) string {
	return "convoy:loc:" + partyID + ":"
}

// RedisLocationStore is the shared deployment store: every gateway
// instance reads and writes the same keys. Keys are disjoint per user,
// so concurrent writers never touch each other's entries.
type RedisLocationStore struct {
	rdb *redis.Client
}

func NewRedisLocationStore(rdb *redis.Client) *RedisLocationStore {
	return &RedisLocationStore{rdb: rdb}
}

func (s *RedisLocationStore) Put(ctx context.Context, partyID, userID string, sample party.LocationSample, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultLocationTTL
	}
	raw, err := json.Marshal(sample)
	if err != nil {
		return pkgerr.Wrap(err, "marshal sample")
	}
	if err := s.rdb.Set(ctx, locationKey(partyID, userID), raw, ttl).Err(); err != nil {
		return pkgerr.Wrap(err, "store location")
	}
	return nil
}

func (s *RedisLocationStore) Get(ctx context.Context, partyID, userID string) (*party.LocationSample, error) {
	raw, err := s.rdb.Get(ctx, locationKey(partyID, userID)).Bytes()
	if pkgerr.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerr.Wrap(err, "load location")
	}
	var sample party.LocationSample
	if err := json.Unmarshal(raw, &sample); err != nil {
		return nil, pkgerr.Wrap(err, "decode location")
	}
	return &sample, nil
}

func (s *RedisLocationStore) GetAll(ctx context.Context, partyID string) ([]party.LocationSample, error) {
	var out []party.LocationSample
	iter := s.rdb.Scan(ctx, 0, locationPrefix(partyID)+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := s.rdb.Get(ctx, iter.Val()).Bytes()
		if pkgerr.Is(err, redis.Nil) {
			continue // expired between SCAN and GET
		}
		if err != nil {
			return nil, pkgerr.Wrap(err, "load location")
		}
		var sample party.LocationSample
		if err := json.Unmarshal(raw, &sample); err != nil {
			continue
		}
		out = append(out, sample)
	}
	if err := iter.Err(); err != nil {
		return nil, pkgerr.Wrap(err, "scan locations")
	}
	return out, nil
}
