package service

import (
	"sync"
	"testing"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"
	"pricewatch/engine-service/internal/app/engine/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var baseTime = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingReporter struct {
	mu       sync.Mutex
	keys     []string
	failures []error
}

func (r *recordingReporter) ReportGenerationFailure(key string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	r.failures = append(r.failures, err)
}

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failures)
}

// newCacheRepo поднимает miniredis и репозиторий кэша поверх него
func newCacheRepo(t *testing.T, clock *fakeClock) repository.CacheRepository {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := repository.NewRedisStore(client, "pricewatch:")
	return repository.NewCacheRepository(store, 72*time.Hour, clock.Now)
}

func price(productID string, value float64, at time.Time) entity.PricePoint {
	return entity.PricePoint{
		ProductID:  productID,
		RetailerID: "r1",
		Price:      value,
		Timestamp:  at,
		InStock:    true,
	}
}

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }
