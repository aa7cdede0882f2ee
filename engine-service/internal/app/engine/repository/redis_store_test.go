package repository

import (
	"context"
	"testing"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// RedisRepositoryTestSuite тестовый suite для Redis-репозиториев
type RedisRepositoryTestSuite struct {
	suite.Suite
	miniRedis *miniredis.Miniredis
	client    *redis.Client
	store     KeyValueStore
	now       time.Time
}

func TestRedisRepositorySuite(t *testing.T) {
	suite.Run(t, new(RedisRepositoryTestSuite))
}

func (s *RedisRepositoryTestSuite) SetupSuite() {
	var err error
	s.miniRedis, err = miniredis.Run()
	require.NoError(s.T(), err)

	s.client = redis.NewClient(&redis.Options{
		Addr: s.miniRedis.Addr(),
	})

	s.store = NewRedisStore(s.client, "pricewatch:")
}

func (s *RedisRepositoryTestSuite) SetupTest() {
	s.miniRedis.FlushAll()
	s.now = time.Date(2026, 4, 1, 3, 0, 0, 0, time.UTC)
}

func (s *RedisRepositoryTestSuite) TearDownSuite() {
	s.client.Close()
	s.miniRedis.Close()
}

func (s *RedisRepositoryTestSuite) clock() time.Time { return s.now }

// ===================== KeyValueStore Tests =====================

func (s *RedisRepositoryTestSuite) TestStore_SetGetDelete() {
	ctx := context.Background()

	s.NoError(s.store.Set(ctx, "k", []byte("v"), 0))
	s.True(s.miniRedis.Exists("pricewatch:k"))

	data, err := s.store.Get(ctx, "k")
	s.NoError(err)
	s.Equal([]byte("v"), data)

	s.NoError(s.store.Delete(ctx, "k"))
	_, err = s.store.Get(ctx, "k")
	s.ErrorIs(err, ErrKeyNotFound)
}

func (s *RedisRepositoryTestSuite) TestStore_SetWithTTL() {
	ctx := context.Background()

	s.NoError(s.store.Set(ctx, "k", []byte("v"), time.Minute))
	s.Equal(time.Minute, s.miniRedis.TTL("pricewatch:k"))

	s.miniRedis.FastForward(2 * time.Minute)
	_, err := s.store.Get(ctx, "k")
	s.ErrorIs(err, ErrKeyNotFound)
}

// ===================== CacheRepository Tests =====================

func (s *RedisRepositoryTestSuite) TestCache_PutAndGet() {
	ctx := context.Background()
	repo := NewCacheRepository(s.store, 72*time.Hour, s.clock)

	// Arrange
	savings := 12.5
	entry := entity.NewCacheEntry("product:p1", []entity.AIRecommendation{
		{ID: "r1", ProductID: "p1", Confidence: 0.8, PotentialSavings: &savings, Type: entity.RecommendationBuyNow, CreatedAt: s.now},
	}, s.now, 24*time.Hour)

	// Act
	err := repo.Put(ctx, entry)
	got, getErr := repo.Get(ctx, "product:p1")

	// Assert
	s.NoError(err)
	s.NoError(getErr)
	s.Require().NotNil(got)
	s.Equal("product:p1", got.Key)
	s.True(entry.ExpiresAt.Equal(got.ExpiresAt))
	s.Require().Len(got.Payload, 1)
	s.Equal(12.5, *got.Payload[0].PotentialSavings)
	s.True(s.miniRedis.Exists("pricewatch:recs:product:p1"))
	// TTL = остаток свежести + удержание устаревшей записи
	s.Equal(96*time.Hour, s.miniRedis.TTL("pricewatch:recs:product:p1"))
}

func (s *RedisRepositoryTestSuite) TestCache_GetMissing() {
	repo := NewCacheRepository(s.store, time.Hour, s.clock)

	got, err := repo.Get(context.Background(), "product:none")

	s.NoError(err)
	s.Nil(got)
}

func (s *RedisRepositoryTestSuite) TestCache_StaleEntryKeptUntilRetention() {
	ctx := context.Background()
	repo := NewCacheRepository(s.store, 24*time.Hour, s.clock)

	entry := entity.NewCacheEntry("inventory", nil, s.now, 24*time.Hour)
	s.NoError(repo.Put(ctx, entry))

	// Через 25 часов запись устарела, но еще читается
	s.miniRedis.FastForward(25 * time.Hour)
	got, err := repo.Get(ctx, "inventory")
	s.NoError(err)
	s.Require().NotNil(got)
	s.True(got.IsStale(s.now.Add(25 * time.Hour)))

	// После окончания удержания ключ удаляется
	s.miniRedis.FastForward(24 * time.Hour)
	got, err = repo.Get(ctx, "inventory")
	s.NoError(err)
	s.Nil(got)
}

func (s *RedisRepositoryTestSuite) TestCache_ZeroRetentionKeepsForever() {
	ctx := context.Background()
	repo := NewCacheRepository(s.store, 0, s.clock)

	s.NoError(repo.Put(ctx, entity.NewCacheEntry("inventory", nil, s.now, time.Hour)))

	s.Equal(time.Duration(0), s.miniRedis.TTL("pricewatch:recs:inventory"))
}

func (s *RedisRepositoryTestSuite) TestCache_Delete() {
	ctx := context.Background()
	repo := NewCacheRepository(s.store, time.Hour, s.clock)
	s.NoError(repo.Put(ctx, entity.NewCacheEntry("product:p1", nil, s.now, time.Hour)))

	s.NoError(repo.Delete(ctx, "product:p1"))

	got, err := repo.Get(ctx, "product:p1")
	s.NoError(err)
	s.Nil(got)
}

func (s *RedisRepositoryTestSuite) TestCache_CorruptedEntry() {
	ctx := context.Background()
	repo := NewCacheRepository(s.store, time.Hour, s.clock)
	s.NoError(s.miniRedis.Set("pricewatch:recs:product:p1", "{not json"))

	got, err := repo.Get(ctx, "product:p1")

	s.Error(err)
	s.Nil(got)
}

// ===================== BatchStateRepository Tests =====================

func (s *RedisRepositoryTestSuite) TestBatchState_NoRunYet() {
	repo := NewBatchStateRepository(s.store)

	last, err := repo.LastRun(context.Background())

	s.NoError(err)
	s.Nil(last)
}

func (s *RedisRepositoryTestSuite) TestBatchState_SaveAndLoad() {
	ctx := context.Background()
	repo := NewBatchStateRepository(s.store)
	at := time.Date(2026, 4, 1, 3, 0, 5, 123, time.UTC)

	s.NoError(repo.SaveLastRun(ctx, at))
	last, err := repo.LastRun(ctx)

	s.NoError(err)
	s.Require().NotNil(last)
	s.True(at.Equal(*last))

	raw, getErr := s.miniRedis.Get("pricewatch:batch:last_run")
	s.NoError(getErr)
	s.Equal(at.Format(time.RFC3339Nano), raw)
}

func (s *RedisRepositoryTestSuite) TestBatchState_InvalidValue() {
	s.NoError(s.miniRedis.Set("pricewatch:batch:last_run", "yesterday"))

	last, err := NewBatchStateRepository(s.store).LastRun(context.Background())

	s.Error(err)
	s.Nil(last)
}
