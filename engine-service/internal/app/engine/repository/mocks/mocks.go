package mocks

import (
	"context"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"

	"github.com/stretchr/testify/mock"
)

// MockKeyValueStore мок для KeyValueStore
type MockKeyValueStore struct {
	mock.Mock
}

func (m *MockKeyValueStore) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockKeyValueStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockKeyValueStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// MockCacheRepository мок для CacheRepository
type MockCacheRepository struct {
	mock.Mock
}

func (m *MockCacheRepository) Get(ctx context.Context, key string) (*entity.CacheEntry, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.CacheEntry), args.Error(1)
}

func (m *MockCacheRepository) Put(ctx context.Context, entry entity.CacheEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockCacheRepository) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// MockBatchStateRepository мок для BatchStateRepository
type MockBatchStateRepository struct {
	mock.Mock
}

func (m *MockBatchStateRepository) LastRun(ctx context.Context) (*time.Time, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*time.Time), args.Error(1)
}

func (m *MockBatchStateRepository) SaveLastRun(ctx context.Context, at time.Time) error {
	args := m.Called(ctx, at)
	return args.Error(0)
}

// MockPricePointRepository мок для PricePointRepository
type MockPricePointRepository struct {
	mock.Mock
}

func (m *MockPricePointRepository) Save(ctx context.Context, point entity.PricePoint) error {
	args := m.Called(ctx, point)
	return args.Error(0)
}

func (m *MockPricePointRepository) ListRecent(ctx context.Context, since time.Time, limit int) ([]entity.PricePoint, error) {
	args := m.Called(ctx, since, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.PricePoint), args.Error(1)
}

// MockAIGenerator мок для внешнего AI провайдера
type MockAIGenerator struct {
	mock.Mock
}

func (m *MockAIGenerator) Generate(ctx context.Context, prompt, productContext string) (string, error) {
	args := m.Called(ctx, prompt, productContext)
	return args.String(0), args.Error(1)
}

// MockNotificationSink мок для канала push-уведомлений
type MockNotificationSink struct {
	mock.Mock
}

func (m *MockNotificationSink) Deliver(ctx context.Context, title, body, targetKey string) error {
	args := m.Called(ctx, title, body, targetKey)
	return args.Error(0)
}

// MockAlertPublisher мок для публикации оповещений в Kafka
type MockAlertPublisher struct {
	mock.Mock
}

func (m *MockAlertPublisher) PublishAlert(ctx context.Context, msg entity.AlertMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockAlertPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockNotifier мок для диспетчера уведомлений
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, alert entity.Alert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}
