package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"
	"pricewatch/engine-service/internal/app/engine/repository"
	"pricewatch/pkg/logger"
	"pricewatch/pkg/metrics"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultRecommendationLimit = 20
	notifyTimeout              = 30 * time.Second
)

// Options - настройки движка. Нулевые значения заменяются значениями по умолчанию
type Options struct {
	Rules             RuleConfig
	LedgerDropWindow  time.Duration
	LedgerMaxPoints   int
	HistoryLimit      int
	CacheTTL          time.Duration
	GenerationTimeout time.Duration
	BuyWindow         time.Duration
	ConfidenceFloor   float64
	DefaultLimit      int
	BatchConcurrency  int
	AlertRetention    time.Duration
	RestoreWindow     time.Duration
	RestoreLimit      int
}

func (o Options) withDefaults() Options {
	if o.Rules.DropThresholdPercent <= 0 {
		o.Rules.DropThresholdPercent = 15
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = 30
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 24 * time.Hour
	}
	if o.GenerationTimeout <= 0 {
		o.GenerationTimeout = 2 * time.Minute
	}
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = DefaultRecommendationLimit
	}
	if o.BatchConcurrency <= 0 {
		o.BatchConcurrency = 4
	}
	if o.AlertRetention <= 0 {
		o.AlertRetention = 7 * 24 * time.Hour
	}
	if o.RestoreWindow <= 0 {
		o.RestoreWindow = 90 * 24 * time.Hour
	}
	return o
}

// Dependencies - внешние коллабораторы. Archive, Notifier и Entitlements необязательны
type Dependencies struct {
	AI           AIGenerator
	Cache        repository.CacheRepository
	Archive      repository.PricePointRepository
	Notifier     Notifier
	Entitlements EntitlementChecker
	Clock        Clock
}

// ScheduleReporter отдает состояние планировщика для Status
type ScheduleReporter interface {
	ScheduleStatus(ctx context.Context) (lastRun, nextRun *time.Time, running bool)
}

// RecordPriceResult - итог записи наблюдения
type RecordPriceResult struct {
	Delta  LedgerDelta
	Alerts []entity.Alert
}

// Engine - фасад движка ценовой аналитики
type Engine struct {
	opts  Options
	clock Clock

	catalog   *Catalog
	ledgers   *LedgerBook
	rules     *RuleEngine
	tracking  *TrackingRegistry
	budget    *BudgetKeeper
	inventory *InventoryBook
	cache     *RecommendationCache
	generator *RecommendationGenerator

	archive      repository.PricePointRepository
	notifier     Notifier
	entitlements EntitlementChecker

	alertsMu   sync.RWMutex
	alerts     []entity.Alert
	alertIndex map[string]struct{}

	subsMu  sync.Mutex
	subs    map[int]chan entity.EngineEvent
	nextSub int

	statusMu  sync.Mutex
	lastErr   error
	lastErrAt *time.Time
	schedule  ScheduleReporter

	notifyWG sync.WaitGroup
}

func NewEngine(opts Options, deps Dependencies) *Engine {
	opts = opts.withDefaults()
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	entitlements := deps.Entitlements
	if entitlements == nil {
		entitlements = AllowAll{}
	}

	e := &Engine{
		opts:         opts,
		clock:        clock,
		catalog:      NewCatalog(),
		ledgers:      NewLedgerBook(opts.LedgerDropWindow, opts.LedgerMaxPoints),
		rules:        NewRuleEngine(opts.Rules),
		archive:      deps.Archive,
		notifier:     deps.Notifier,
		entitlements: entitlements,
		alertIndex:   make(map[string]struct{}),
		subs:         make(map[int]chan entity.EngineEvent),
	}
	e.tracking = NewTrackingRegistry(opts.HistoryLimit, clock)
	e.budget = NewBudgetKeeper(e.rules)
	e.inventory = NewInventoryBook(e.rules)
	e.cache = NewRecommendationCache(deps.Cache, opts.CacheTTL, opts.GenerationTimeout, clock, e)
	e.generator = NewRecommendationGenerator(deps.AI, e.catalog, e.ledgers, e.tracking, e.inventory, opts.BuyWindow, clock)

	return e
}

// SetScheduleReporter подключает планировщик к Status
func (e *Engine) SetScheduleReporter(r ScheduleReporter) {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	e.schedule = r
}

// ===================== Catalog =====================

func (e *Engine) RegisterProduct(ctx context.Context, p entity.Product) (entity.Product, error) {
	if err := e.catalog.PutProduct(p); err != nil {
		return entity.Product{}, err
	}
	stored, _ := e.catalog.Product(strings.TrimSpace(p.ID))
	return stored, nil
}

func (e *Engine) RegisterRetailer(ctx context.Context, r entity.Retailer) (entity.Retailer, error) {
	if err := e.catalog.PutRetailer(r); err != nil {
		return entity.Retailer{}, err
	}
	stored, _ := e.catalog.Retailer(strings.TrimSpace(r.ID))
	return stored, nil
}

func (e *Engine) Product(id string) (entity.Product, bool) {
	return e.catalog.Product(id)
}

func (e *Engine) Products() []entity.Product {
	return e.catalog.Products()
}

// ProductName - имя товара из каталога или его id
func (e *Engine) ProductName(id string) string {
	return e.catalog.ProductName(id)
}

// ===================== Prices =====================

// RecordPrice добавляет наблюдение в ledger и синхронно прогоняет правила.
// Повтор наблюдения с тем же id ничего не меняет и не порождает оповещений
func (e *Engine) RecordPrice(ctx context.Context, point entity.PricePoint) (RecordPriceResult, error) {
	delta, err := e.ledgers.Append(point)
	if err != nil {
		metrics.PriceObservations.WithLabelValues("rejected").Inc()
		return RecordPriceResult{}, fmt.Errorf("failed to record price for %s: %w", point.ProductID, err)
	}
	if delta.Replayed {
		metrics.PriceObservations.WithLabelValues("replayed").Inc()
		logger.Debug().Str("product_id", point.ProductID).Str("point_id", point.ID).Msg("Price observation replayed, ignoring")
		return RecordPriceResult{Delta: delta}, nil
	}
	metrics.PriceObservations.WithLabelValues("recorded").Inc()

	if e.archive != nil {
		if err := e.archive.Save(ctx, delta.Point); err != nil {
			logger.Warn().Err(err).Str("point_id", delta.Point.ID).Msg("Failed to archive price point")
		}
	}

	productID := delta.Point.ProductID
	eval := e.rules.Evaluate(RuleInput{
		Delta:    &delta,
		Tracking: e.tracking.ActiveForProduct(productID),
		Now:      e.clock(),
	})
	e.tracking.MarkChecked(productID, e.clock(), e.ledgers.Snapshot(productID, e.opts.HistoryLimit))

	raised := e.raise(ctx, eval.Alerts)

	logger.Debug().
		Str("product_id", productID).
		Float64("total_price", delta.Point.TotalPrice()).
		Bool("is_drop", delta.IsDrop).
		Int("alerts", len(raised)).
		Msg("Price observation recorded")

	return RecordPriceResult{Delta: delta, Alerts: raised}, nil
}

func (e *Engine) LedgerStats(productID string) entity.LedgerStats {
	return e.ledgers.Stats(productID)
}

func (e *Engine) LedgerHistory(productID string, n int) []entity.PricePoint {
	return e.ledgers.Snapshot(productID, n)
}

// Restore заполняет ledger из архива при старте. Правила не прогоняются
func (e *Engine) Restore(ctx context.Context) (int, error) {
	if e.archive == nil {
		return 0, nil
	}

	points, err := e.archive.ListRecent(ctx, e.clock().Add(-e.opts.RestoreWindow), e.opts.RestoreLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to restore ledgers: %w", err)
	}

	restored := 0
	for _, p := range points {
		if _, err := e.ledgers.Append(p); err != nil {
			logger.Debug().Err(err).Str("point_id", p.ID).Msg("Skipping archived price point")
			continue
		}
		restored++
	}

	logger.Info().Int("restored", restored).Int("archived", len(points)).Msg("Ledgers restored from archive")
	return restored, nil
}

// ===================== Tracking =====================

func (e *Engine) StartTracking(ctx context.Context, productID string, target *float64, notifyKey string) (entity.TrackingItem, error) {
	item, err := e.tracking.Start(strings.TrimSpace(productID), target, notifyKey)
	if err != nil {
		return entity.TrackingItem{}, err
	}
	e.tracking.MarkChecked(item.ProductID, e.clock(), e.ledgers.Snapshot(item.ProductID, e.opts.HistoryLimit))

	updated, _ := e.tracking.Get(item.ID)
	logger.Info().Str("tracking_id", item.ID).Str("product_id", item.ProductID).Msg("Tracking started")
	return updated, nil
}

// StopTracking деактивирует отслеживание и прерывает генерацию по товару
func (e *Engine) StopTracking(ctx context.Context, trackingID string) (entity.TrackingItem, error) {
	item, err := e.tracking.Stop(trackingID)
	if err != nil {
		return entity.TrackingItem{}, err
	}

	key := entity.ProductCacheKey(item.ProductID)
	if e.cache.Cancel(key) {
		logger.Info().Str("key", key).Msg("Cancelled in-flight recommendation refresh")
	}
	if err := e.cache.Invalidate(ctx, key); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("Failed to invalidate recommendations")
	}

	logger.Info().Str("tracking_id", item.ID).Str("product_id", item.ProductID).Msg("Tracking stopped")
	return item, nil
}

func (e *Engine) GetTracking(trackingID string) (entity.TrackingItem, error) {
	item, ok := e.tracking.Get(trackingID)
	if !ok {
		return entity.TrackingItem{}, entity.ErrTrackingNotFound
	}
	return item, nil
}

func (e *Engine) ListTracking(activeOnly bool) []entity.TrackingItem {
	if activeOnly {
		return e.tracking.Active()
	}
	return e.tracking.All()
}

// ===================== Budget =====================

func (e *Engine) SetBudget(ctx context.Context, limit float64, categoryLimits map[entity.Category]float64, thresholds []float64) (entity.Budget, []entity.Alert, error) {
	alerts, err := e.budget.Set(limit, categoryLimits, thresholds, e.clock())
	if err != nil {
		return entity.Budget{}, nil, err
	}
	budget, _ := e.budget.Snapshot()
	return budget, e.raise(ctx, alerts), nil
}

func (e *Engine) RecordBudgetSpend(ctx context.Context, category entity.Category, amount float64) ([]entity.Alert, error) {
	alerts, err := e.budget.RecordSpend(category, amount, e.clock())
	if err != nil {
		return nil, fmt.Errorf("failed to record spend: %w", err)
	}
	return e.raise(ctx, alerts), nil
}

func (e *Engine) RolloverBudgetPeriod(ctx context.Context) (entity.Budget, error) {
	budget, err := e.budget.Rollover(e.clock())
	if err != nil {
		return entity.Budget{}, err
	}
	logger.Info().Time("period_start", budget.PeriodStart).Msg("Budget period rolled over")
	return budget, nil
}

func (e *Engine) Budget() (entity.Budget, bool) {
	return e.budget.Snapshot()
}

// ===================== Inventory =====================

func (e *Engine) AddInventoryItem(ctx context.Context, item entity.InventoryItem) (entity.InventoryItem, []entity.Alert, error) {
	item.ProductID = strings.TrimSpace(item.ProductID)
	if err := e.inventory.Add(item); err != nil {
		return entity.InventoryItem{}, nil, err
	}
	stored, _ := e.inventory.Get(item.ProductID)
	return stored, e.EvaluateInventory(ctx), nil
}

func (e *Engine) RecordPurchase(ctx context.Context, productID string, quantity int) (entity.InventoryItem, []entity.Alert, error) {
	item, err := e.inventory.RecordPurchase(productID, quantity, e.clock())
	if err != nil {
		return entity.InventoryItem{}, nil, err
	}
	return item, e.EvaluateInventory(ctx), nil
}

func (e *Engine) RecordConsumption(ctx context.Context, productID string, quantity int) (entity.InventoryItem, []entity.Alert, error) {
	item, err := e.inventory.RecordConsumption(productID, quantity)
	if err != nil {
		return entity.InventoryItem{}, nil, err
	}
	return item, e.EvaluateInventory(ctx), nil
}

// EvaluateInventory прогоняет правило reorder по всем позициям
func (e *Engine) EvaluateInventory(ctx context.Context) []entity.Alert {
	return e.raise(ctx, e.inventory.Evaluate(e.clock()))
}

func (e *Engine) Inventory() []entity.InventoryItem {
	return e.inventory.List()
}

// ===================== Alerts =====================

// raise сохраняет новые оповещения, пропуская дубликаты, и рассылает их
func (e *Engine) raise(ctx context.Context, alerts []entity.Alert) []entity.Alert {
	if len(alerts) == 0 {
		return nil
	}

	now := e.clock()
	fresh := make([]entity.Alert, 0, len(alerts))

	e.alertsMu.Lock()
	for _, a := range alerts {
		key := a.DedupeKey()
		if _, seen := e.alertIndex[key]; seen {
			continue
		}
		e.alertIndex[key] = struct{}{}
		e.alerts = append(e.alerts, a)
		fresh = append(fresh, a)
	}
	e.pruneAlertsLocked(now)
	e.alertsMu.Unlock()

	for _, a := range fresh {
		metrics.AlertsRaised.WithLabelValues(string(a.Kind())).Inc()
		logger.Info().Str("kind", string(a.Kind())).Str("alert_id", a.AlertID()).Str("product_id", a.ProductRef()).Msg("Alert raised")
		e.publish(entity.EngineEvent{Type: entity.EventAlertRaised, Alert: a, Occurred: now})
		e.dispatch(ctx, a)
	}
	return fresh
}

func (e *Engine) pruneAlertsLocked(now time.Time) {
	cutoff := now.Add(-e.opts.AlertRetention)
	kept := e.alerts[:0]
	for _, a := range e.alerts {
		if a.OccurredAt().Before(cutoff) {
			delete(e.alertIndex, a.DedupeKey())
			continue
		}
		kept = append(kept, a)
	}
	e.alerts = kept
}

// dispatch отправляет уведомление асинхронно, не задерживая вызывающего
func (e *Engine) dispatch(ctx context.Context, a entity.Alert) {
	if e.notifier == nil {
		return
	}
	e.notifyWG.Add(1)
	go func() {
		defer e.notifyWG.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := e.notifier.Notify(nctx, a); err != nil {
			logger.Warn().Err(err).Str("alert_id", a.AlertID()).Msg("Failed to deliver alert notification")
		}
	}()
}

// Alerts возвращает текущие оповещения, новые первыми
func (e *Engine) Alerts() []entity.Alert {
	e.alertsMu.RLock()
	defer e.alertsMu.RUnlock()

	out := make([]entity.Alert, len(e.alerts))
	for i, a := range e.alerts {
		out[len(e.alerts)-1-i] = a
	}
	return out
}

// ===================== Recommendations =====================

// RecommendationKeys - ключи кэша, которые обновляет пакетный прогон
func (e *Engine) RecommendationKeys() []string {
	var keys []string
	for _, item := range e.tracking.Active() {
		keys = append(keys, entity.ProductCacheKey(item.ProductID))
	}
	if len(e.inventory.List()) > 0 {
		keys = append(keys, entity.CacheKeyInventory)
	}
	sort.Strings(keys)
	return keys
}

func (e *Engine) generatorFor(key string) (Generator, error) {
	if key == entity.CacheKeyInventory {
		return e.generator.ForInventory(), nil
	}
	if productID, ok := strings.CutPrefix(key, entity.CacheKeyPrefixProduct); ok && productID != "" {
		return e.generator.ForProduct(productID), nil
	}
	return nil, fmt.Errorf("recommendation key %q: %w", key, entity.ErrNotFound)
}

// RefreshRecommendations отдает свежие рекомендации по ключу, при необходимости
// генерируя их. Ошибка генерации не возвращается, а лежит в CacheResult.Failure
func (e *Engine) RefreshRecommendations(ctx context.Context, key string) (CacheResult, error) {
	if !e.entitlements.RecommendationsAllowed(ctx) {
		return CacheResult{}, entity.ErrNotEntitled
	}
	gen, err := e.generatorFor(key)
	if err != nil {
		return CacheResult{}, err
	}

	result, err := e.cache.GetOrRefresh(ctx, key, gen)
	if err != nil {
		return CacheResult{}, err
	}
	if result.Refreshed {
		e.publish(entity.EngineEvent{Type: entity.EventRecommendationsRefreshed, Key: key, Occurred: e.clock()})
	}
	if result.Stale {
		e.publish(entity.EngineEvent{Type: entity.EventCacheStale, Key: key, Occurred: e.clock()})
	}
	return result, nil
}

// GetRecommendations читает только кэш: устаревшие записи тоже отдаются, с флагом stale
func (e *Engine) GetRecommendations(ctx context.Context, limit int) ([]entity.AIRecommendation, bool) {
	if !e.entitlements.RecommendationsAllowed(ctx) {
		return []entity.AIRecommendation{}, false
	}
	if limit <= 0 {
		limit = e.opts.DefaultLimit
	}
	recs, stale := e.cachedRecommendations(ctx)
	return Rank(recs, limit, e.opts.ConfidenceFloor), stale
}

func (e *Engine) cachedRecommendations(ctx context.Context) ([]entity.AIRecommendation, bool) {
	var (
		recs  []entity.AIRecommendation
		stale bool
	)
	for _, key := range e.RecommendationKeys() {
		state, entry, err := e.cache.Peek(ctx, key)
		if err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("Failed to read cached recommendations")
			stale = true
			continue
		}
		if entry == nil {
			continue
		}
		if state == entity.CacheStateStale || entry.IsStale(e.clock()) {
			stale = true
		}
		recs = append(recs, entry.Payload...)
	}
	return recs, stale
}

// GetDashboardDigest собирает сводку из текущих оповещений и кэша рекомендаций
func (e *Engine) GetDashboardDigest(ctx context.Context) entity.DailyDigest {
	var (
		recs  []entity.AIRecommendation
		stale bool
	)
	if e.entitlements.RecommendationsAllowed(ctx) {
		cached, isStale := e.cachedRecommendations(ctx)
		recs = Rank(cached, 0, e.opts.ConfidenceFloor)
		stale = isStale
	}

	digest := BuildDigest(e.Alerts(), recs, e.clock())
	digest.Stale = stale
	return digest
}

// RunRecommendationBatch обновляет все ключи параллельно, не больше BatchConcurrency сразу.
// Ошибки отдельных ключей собираются в одну и не прерывают остальные
func (e *Engine) RunRecommendationBatch(ctx context.Context) error {
	if !e.entitlements.RecommendationsAllowed(ctx) {
		logger.Info().Msg("Recommendations not entitled, skipping batch")
		return nil
	}

	start := time.Now()
	keys := e.RecommendationKeys()

	var (
		mu       sync.Mutex
		combined error
	)
	g := new(errgroup.Group)
	g.SetLimit(e.opts.BatchConcurrency)

	for _, key := range keys {
		g.Go(func() error {
			result, err := e.RefreshRecommendations(ctx, key)
			if err == nil {
				err = result.Failure
			}
			if err != nil {
				mu.Lock()
				combined = multierr.Append(combined, fmt.Errorf("%s: %w", key, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := len(multierr.Errors(combined))
	status := metrics.OutcomeSuccess
	if failed > 0 {
		status = "partial"
	}
	metrics.BatchRuns.WithLabelValues(status).Inc()
	metrics.BatchDuration.Observe(time.Since(start).Seconds())

	e.publish(entity.EngineEvent{Type: entity.EventBatchCompleted, Occurred: e.clock()})

	logger.Info().
		Int("keys", len(keys)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Recommendation batch completed")

	return combined
}

// ===================== Status & events =====================

// ReportGenerationFailure реализует FailureReporter
func (e *Engine) ReportGenerationFailure(key string, err error) {
	now := e.clock()
	e.statusMu.Lock()
	e.lastErr = err
	e.lastErrAt = &now
	e.statusMu.Unlock()

	e.publish(entity.EngineEvent{Type: entity.EventGenerationFailed, Key: key, Error: err.Error(), Occurred: now})
}

func (e *Engine) Status(ctx context.Context) entity.EngineStatus {
	e.alertsMu.RLock()
	alertCount := len(e.alerts)
	e.alertsMu.RUnlock()

	status := entity.EngineStatus{
		InFlightKeys:    e.cache.InFlightKeys(),
		TrackedProducts: len(e.tracking.Active()),
		AlertCount:      alertCount,
	}

	e.statusMu.Lock()
	if e.lastErr != nil {
		status.LastGenerationError = e.lastErr.Error()
		at := *e.lastErrAt
		status.LastGenerationErrorAt = &at
	}
	schedule := e.schedule
	e.statusMu.Unlock()

	if schedule != nil {
		status.LastBatchRun, status.NextBatchRun, status.BatchRunning = schedule.ScheduleStatus(ctx)
	}
	return status
}

// LastGenerationError - последняя ошибка генерации или nil
func (e *Engine) LastGenerationError() error {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	return e.lastErr
}

// Subscribe возвращает поток событий. Медленный подписчик теряет события,
// движок его не ждет. Вызовите cancel, чтобы отписаться
func (e *Engine) Subscribe(buffer int) (<-chan entity.EngineEvent, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan entity.EngineEvent, buffer)

	e.subsMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.subsMu.Lock()
			if _, ok := e.subs[id]; ok {
				delete(e.subs, id)
				close(ch)
			}
			e.subsMu.Unlock()
		})
	}
	return ch, cancel
}

func (e *Engine) publish(evt entity.EngineEvent) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	for _, ch := range e.subs {
		select {
		case ch <- evt:
		default:
			metrics.EventsDropped.Inc()
		}
	}
}

// Shutdown дожидается отправки уведомлений и закрывает подписки
func (e *Engine) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.notifyWG.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = errors.New("timed out waiting for notifications to be delivered")
	}

	e.subsMu.Lock()
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
	e.subsMu.Unlock()

	return err
}
