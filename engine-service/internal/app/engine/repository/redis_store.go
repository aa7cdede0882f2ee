package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pricewatch/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

// redisStore реализует KeyValueStore поверх Redis
type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore создает хранилище, все ключи которого начинаются с prefix
func NewRedisStore(client *redis.Client, prefix string) KeyValueStore {
	return &redisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	timer := metrics.NewRedisTimer(serviceName, metrics.RedisOpGet)
	defer timer.ObserveDuration()

	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyNotFound
		}
		metrics.RecordRedisError(serviceName, metrics.RedisOpGet)
		return nil, fmt.Errorf("failed to get %s from redis: %w", key, err)
	}

	return data, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	timer := metrics.NewRedisTimer(serviceName, metrics.RedisOpSet)
	defer timer.ObserveDuration()

	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		metrics.RecordRedisError(serviceName, metrics.RedisOpSet)
		return fmt.Errorf("failed to set %s in redis: %w", key, err)
	}

	return nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	timer := metrics.NewRedisTimer(serviceName, metrics.RedisOpDel)
	defer timer.ObserveDuration()

	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		metrics.RecordRedisError(serviceName, metrics.RedisOpDel)
		return fmt.Errorf("failed to delete %s from redis: %w", key, err)
	}

	return nil
}
