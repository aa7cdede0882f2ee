package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"
	"pricewatch/engine-service/internal/app/engine/repository"
	"pricewatch/pkg/logger"
	"pricewatch/pkg/metrics"

	"golang.org/x/sync/singleflight"
)

// Generator производит рекомендации для одного ключа кэша
type Generator func(ctx context.Context) ([]entity.AIRecommendation, error)

// CacheResult - ответ кэша. Entry может быть nil, если отдать нечего.
// Failure заполняется, когда генерация не удалась и отдана устаревшая запись
type CacheResult struct {
	Entry     *entity.CacheEntry
	Stale     bool
	Refreshed bool
	Failure   error
}

type flight struct {
	cancel    context.CancelFunc
	cancelled bool
}

type flightResult struct {
	entry     *entity.CacheEntry
	refreshed bool
	failure   error
}

// RecommendationCache гарантирует не больше одной генерации на ключ одновременно.
// Разные ключи обновляются параллельно
type RecommendationCache struct {
	repo     repository.CacheRepository
	ttl      time.Duration
	timeout  time.Duration
	now      Clock
	reporter FailureReporter

	group singleflight.Group

	mu       sync.Mutex
	inflight map[string]*flight
}

func NewRecommendationCache(repo repository.CacheRepository, ttl, timeout time.Duration, now Clock, reporter FailureReporter) *RecommendationCache {
	if now == nil {
		now = time.Now
	}
	return &RecommendationCache{
		repo:     repo,
		ttl:      ttl,
		timeout:  timeout,
		now:      now,
		reporter: reporter,
		inflight: make(map[string]*flight),
	}
}

// GetOrRefresh отдает свежую запись или запускает генерацию.
// Одновременные вызовы с одним ключом ждут одну и ту же генерацию.
// Генерация не привязана к контексту вызывающего: его отмена
// прекращает только ожидание. Ошибка возвращается лишь при отмене ctx
func (c *RecommendationCache) GetOrRefresh(ctx context.Context, key string, gen Generator) (CacheResult, error) {
	existing := c.load(ctx, key)
	if existing != nil && !existing.IsStale(c.now()) {
		metrics.RecommendationCacheRequests.WithLabelValues("fresh").Inc()
		return CacheResult{Entry: cloneEntry(existing)}, nil
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.refresh(context.WithoutCancel(ctx), key, gen), nil
	})

	select {
	case <-ctx.Done():
		return CacheResult{}, ctx.Err()
	case res := <-ch:
		fr := res.Val.(*flightResult)
		result := CacheResult{
			Entry:     cloneEntry(fr.entry),
			Refreshed: fr.refreshed,
			Failure:   fr.failure,
		}
		if fr.entry != nil && fr.entry.IsStale(c.now()) {
			result.Stale = true
		}
		switch {
		case result.Refreshed:
			metrics.RecommendationCacheRequests.WithLabelValues("refreshed").Inc()
		case result.Entry == nil:
			metrics.RecommendationCacheRequests.WithLabelValues("empty").Inc()
		case result.Stale:
			metrics.RecommendationCacheRequests.WithLabelValues("stale").Inc()
		default:
			metrics.RecommendationCacheRequests.WithLabelValues("fresh").Inc()
		}
		return result, nil
	}
}

func (c *RecommendationCache) refresh(ctx context.Context, key string, gen Generator) *flightResult {
	// Ключ регистрируется до любого обращения к хранилищу, иначе Cancel
	// в этом промежутке не найдет генерацию
	genCtx, cancel := c.generationContext(ctx)
	f := &flight{cancel: cancel}
	c.mu.Lock()
	c.inflight[key] = f
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		if c.inflight[key] == f {
			delete(c.inflight, key)
		}
		c.mu.Unlock()
	}()

	// Пока ждали singleflight, другой вызов мог уже обновить запись
	existing := c.load(ctx, key)
	if existing != nil && !existing.IsStale(c.now()) {
		return &flightResult{entry: existing}
	}

	c.mu.Lock()
	cancelledEarly := f.cancelled
	c.mu.Unlock()
	if cancelledEarly {
		metrics.RecordGeneration(metrics.OutcomeCancelled, 0)
		logger.Info().Str("key", key).Msg("Recommendation refresh cancelled before generation")
		return &flightResult{entry: existing, failure: entity.ErrRefreshCancelled}
	}

	start := time.Now()
	payload, err := runGenerator(genCtx, gen)
	duration := time.Since(start)

	c.mu.Lock()
	cancelled := f.cancelled
	c.mu.Unlock()

	switch {
	case cancelled:
		metrics.RecordGeneration(metrics.OutcomeCancelled, duration)
		logger.Info().Str("key", key).Msg("Recommendation refresh cancelled, result discarded")
		return &flightResult{entry: existing, failure: entity.ErrRefreshCancelled}

	case errors.Is(genCtx.Err(), context.DeadlineExceeded):
		metrics.RecordGeneration(metrics.OutcomeTimeout, duration)
		failure := fmt.Errorf("%w: key %s exceeded %s", entity.ErrConcurrencyTimeout, key, c.timeout)
		c.report(key, failure)
		return &flightResult{entry: existing, failure: failure}

	case err != nil:
		metrics.RecordGeneration(metrics.OutcomeFailure, duration)
		if !errors.Is(err, entity.ErrGenerationFailure) {
			err = fmt.Errorf("%w: %v", entity.ErrGenerationFailure, err)
		}
		c.report(key, err)
		return &flightResult{entry: existing, failure: err}
	}

	metrics.RecordGeneration(metrics.OutcomeSuccess, duration)
	entry := entity.NewCacheEntry(key, payload, c.now(), c.ttl)

	// Проверка отмены и запись под одним мьютексом: после Cancel запись уже не появится
	c.mu.Lock()
	if f.cancelled {
		c.mu.Unlock()
		logger.Info().Str("key", key).Msg("Recommendation refresh cancelled after generation, result discarded")
		return &flightResult{entry: existing, failure: entity.ErrRefreshCancelled}
	}
	if err := c.repo.Put(ctx, entry); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("Failed to persist recommendations, serving generated result")
	}
	c.mu.Unlock()

	logger.Debug().Str("key", key).Int("count", len(payload)).Dur("duration", duration).Msg("Recommendations refreshed")
	return &flightResult{entry: &entry, refreshed: true}
}

func (c *RecommendationCache) generationContext(parent context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(parent, c.timeout)
	}
	return context.WithCancel(parent)
}

// runGenerator не дает генератору, игнорирующему ctx, удерживать ключ дольше таймаута
func runGenerator(ctx context.Context, gen Generator) ([]entity.AIRecommendation, error) {
	type outcome struct {
		payload []entity.AIRecommendation
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		payload, err := gen(ctx)
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		return out.payload, out.err
	}
}

func (c *RecommendationCache) load(ctx context.Context, key string) *entity.CacheEntry {
	entry, err := c.repo.Get(ctx, key)
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("Failed to read recommendation cache, treating as empty")
		return nil
	}
	return entry
}

func (c *RecommendationCache) report(key string, err error) {
	logger.Warn().Err(err).Str("key", key).Msg("Recommendation generation failed, keeping previous cache entry")
	if c.reporter != nil {
		c.reporter.ReportGenerationFailure(key, err)
	}
}

// Cancel прерывает генерацию по ключу. Результат будет отброшен
func (c *RecommendationCache) Cancel(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.inflight[key]
	if !ok {
		return false
	}
	f.cancelled = true
	f.cancel()
	return true
}

// Invalidate удаляет запись
func (c *RecommendationCache) Invalidate(ctx context.Context, key string) error {
	return c.repo.Delete(ctx, key)
}

// Peek сообщает состояние ключа, не запуская генерацию
func (c *RecommendationCache) Peek(ctx context.Context, key string) (entity.CacheState, *entity.CacheEntry, error) {
	c.mu.Lock()
	_, pending := c.inflight[key]
	c.mu.Unlock()

	entry, err := c.repo.Get(ctx, key)
	if err != nil {
		return entity.CacheStateEmpty, nil, err
	}

	switch {
	case pending:
		return entity.CacheStatePending, cloneEntry(entry), nil
	case entry == nil:
		return entity.CacheStateEmpty, nil, nil
	case entry.IsStale(c.now()):
		return entity.CacheStateStale, cloneEntry(entry), nil
	default:
		return entity.CacheStateFresh, cloneEntry(entry), nil
	}
}

// InFlightKeys - ключи, по которым сейчас идет генерация
func (c *RecommendationCache) InFlightKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.inflight))
	for k := range c.inflight {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cloneEntry(e *entity.CacheEntry) *entity.CacheEntry {
	if e == nil {
		return nil
	}
	clone := e.Clone()
	return &clone
}
