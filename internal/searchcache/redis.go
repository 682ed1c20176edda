package searchcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shpitdev/leadfinder/pkg/places"
)

const defaultRedisPrefix = "leadfinder:search:"

// RedisStore keeps entries as JSON strings with no TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects using a redis:// or rediss:// URL.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return NewRedisStoreFromClient(redis.NewClient(opt)), nil
}

func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: defaultRedisPrefix}
}

// Ping checks connectivity so a bad REDIS_URL fails at startup.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) Get(ctx context.Context, k Key) ([]places.Place, bool, error) {
	b, err := s.client.Get(ctx, s.prefix+k.Hash()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var e entry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, false, fmt.Errorf("parse cache entry: %w", err)
	}
	return e.Results, true, nil
}

func (s *RedisStore) Put(ctx context.Context, k Key, results []places.Place) error {
	b, err := json.Marshal(entry{Key: k.normalized(), Results: nonNil(results)})
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.prefix+k.Hash(), b, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
