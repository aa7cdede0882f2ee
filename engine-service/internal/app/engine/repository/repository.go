package repository

import (
	"context"
	"errors"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"
)

const serviceName = "engine-service"

// ErrKeyNotFound возвращается KeyValueStore, если ключ отсутствует
var ErrKeyNotFound = errors.New("key not found")

// KeyValueStore - хранилище ключ -> байты. Через него читается и пишется
// все персистентное состояние планировщика и кэша
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)

	// Set сохраняет значение; ttl = 0 означает хранить без срока
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error
}

// CacheRepository хранит записи кэша рекомендаций
type CacheRepository interface {
	// Get возвращает nil, nil если записи нет
	Get(ctx context.Context, key string) (*entity.CacheEntry, error)

	Put(ctx context.Context, entry entity.CacheEntry) error

	Delete(ctx context.Context, key string) error
}

// BatchStateRepository хранит время последнего завершенного пакетного прогона
type BatchStateRepository interface {
	// LastRun возвращает nil, если прогонов еще не было
	LastRun(ctx context.Context) (*time.Time, error)

	SaveLastRun(ctx context.Context, at time.Time) error
}

// PricePointRepository - архив наблюдений цен в PostgreSQL
type PricePointRepository interface {
	// Save идемпотентен по id наблюдения
	Save(ctx context.Context, point entity.PricePoint) error

	// ListRecent возвращает не более limit самых свежих наблюдений не старше since,
	// упорядоченных по времени
	ListRecent(ctx context.Context, since time.Time, limit int) ([]entity.PricePoint, error)
}
