package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"
	"pricewatch/pkg/metrics"
)

const cacheKeyPrefix = "recs:"

// cacheRepository хранит CacheEntry как JSON в KeyValueStore.
// Устаревшая запись живет еще staleRetention после ExpiresAt и служит
// запасным ответом, если генерация не удалась
type cacheRepository struct {
	store          KeyValueStore
	staleRetention time.Duration
	now            func() time.Time
}

// NewCacheRepository создает репозиторий записей кэша.
// staleRetention = 0 - хранить запись, пока ее не заменят
func NewCacheRepository(store KeyValueStore, staleRetention time.Duration, now func() time.Time) CacheRepository {
	if now == nil {
		now = time.Now
	}
	return &cacheRepository{
		store:          store,
		staleRetention: staleRetention,
		now:            now,
	}
}

func (r *cacheRepository) Get(ctx context.Context, key string) (*entity.CacheEntry, error) {
	data, err := r.store.Get(ctx, cacheKeyPrefix+key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			metrics.RecordCacheMiss(serviceName, cacheKeyPrefix)
			return nil, nil
		}
		return nil, err
	}
	metrics.RecordCacheHit(serviceName, cacheKeyPrefix)

	var entry entity.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry %s: %w", key, err)
	}

	return &entry, nil
}

func (r *cacheRepository) Put(ctx context.Context, entry entity.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry %s: %w", entry.Key, err)
	}

	return r.store.Set(ctx, cacheKeyPrefix+entry.Key, data, r.ttlFor(entry))
}

func (r *cacheRepository) Delete(ctx context.Context, key string) error {
	return r.store.Delete(ctx, cacheKeyPrefix+key)
}

func (r *cacheRepository) ttlFor(entry entity.CacheEntry) time.Duration {
	if r.staleRetention <= 0 {
		return 0
	}
	remaining := entry.ExpiresAt.Sub(r.now())
	if remaining < 0 {
		remaining = 0
	}
	return remaining + r.staleRetention
}
