package processor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"
	"pricewatch/engine-service/internal/app/engine/repository"
	"pricewatch/pkg/logger"

	"github.com/robfig/cron/v3"
)

// BatchRunner - то, что планировщик запускает на каждом тике
type BatchRunner interface {
	RunRecommendationBatch(ctx context.Context) error
	EvaluateInventory(ctx context.Context) []entity.Alert
}

// ClockTime - время суток в локальной зоне
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime разбирает строку вида "03:00"
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ScheduleNextRun - время следующего пакетного прогона.
// Без прошлого прогона это ближайшее наступление runAt после now,
// иначе lastRun + period
func ScheduleNextRun(now time.Time, lastRun *time.Time, runAt ClockTime, period time.Duration) time.Time {
	if lastRun != nil {
		return lastRun.Add(period)
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), runAt.Hour, runAt.Minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// BatchScheduler тикает по cron, проверяет запасы и запускает пакет
// рекомендаций, когда подошло время. Пакет идет в отдельной горутине,
// одновременно не больше одного
type BatchScheduler struct {
	cron   *cron.Cron
	runner BatchRunner
	state  repository.BatchStateRepository
	runAt  ClockTime
	period time.Duration
	now    func() time.Time

	mu      sync.Mutex
	lastRun *time.Time
	nextRun time.Time

	running atomic.Bool
	wg      sync.WaitGroup
}

func NewBatchScheduler(runner BatchRunner, state repository.BatchStateRepository, runAt ClockTime, period time.Duration, now func() time.Time) *BatchScheduler {
	if now == nil {
		now = time.Now
	}
	if period <= 0 {
		period = 24 * time.Hour
	}
	c := cron.New(cron.WithLogger(logger.CronLogger{}))

	return &BatchScheduler{
		cron:   c,
		runner: runner,
		state:  state,
		runAt:  runAt,
		period: period,
		now:    now,
	}
}

// Start загружает время прошлого прогона, регистрирует тик и сразу делает первый
func (s *BatchScheduler) Start(ctx context.Context, schedule string) error {
	logger.Info().Str("schedule", schedule).Str("run_at", s.runAt.String()).Dur("period", s.period).Msg("Starting batch scheduler")

	lastRun, err := s.state.LastRun(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load last batch run, scheduling from run time")
		lastRun = nil
	}

	s.mu.Lock()
	s.lastRun = lastRun
	s.nextRun = ScheduleNextRun(s.now(), lastRun, s.runAt, s.period)
	next := s.nextRun
	s.mu.Unlock()

	_, err = s.cron.AddFunc(schedule, func() {
		s.Tick(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	logger.Info().Time("next_run", next).Msg("Batch scheduler started")

	s.Tick(ctx)
	return nil
}

// Tick проверяет запасы и, если пора, запускает пакет.
// Возвращает true, если пакет был запущен этим тиком
func (s *BatchScheduler) Tick(ctx context.Context) bool {
	s.runner.EvaluateInventory(ctx)

	now := s.now()
	s.mu.Lock()
	due := !now.Before(s.nextRun)
	s.mu.Unlock()
	if !due {
		return false
	}

	if !s.running.CompareAndSwap(false, true) {
		logger.Debug().Msg("Recommendation batch still running, skipping tick")
		return false
	}

	s.wg.Add(1)
	go s.runBatch(ctx, now)
	return true
}

// runBatch сохраняет прогон только после его завершения. Записывается момент
// старта завершенного прогона, чтобы следующий отсчитывался от запланированного
// времени, а не сдвигался на длительность пакета
func (s *BatchScheduler) runBatch(ctx context.Context, startedAt time.Time) {
	defer s.wg.Done()
	defer s.running.Store(false)

	logger.Info().Time("started_at", startedAt).Msg("Recommendation batch triggered")

	if err := s.runner.RunRecommendationBatch(ctx); err != nil {
		logger.Warn().Err(err).Msg("Recommendation batch finished with failures")
	}

	// Прогон засчитывается и при частичных ошибках: они уже отданы в статус
	if err := s.state.SaveLastRun(ctx, startedAt); err != nil {
		logger.Error().Err(err).Msg("Failed to persist last batch run")
	}

	s.mu.Lock()
	last := startedAt
	s.lastRun = &last
	s.nextRun = ScheduleNextRun(s.now(), s.lastRun, s.runAt, s.period)
	next := s.nextRun
	s.mu.Unlock()

	logger.Info().Time("next_run", next).Msg("Recommendation batch completed")
}

// ScheduleStatus реализует service.ScheduleReporter
func (s *BatchScheduler) ScheduleStatus(ctx context.Context) (*time.Time, *time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last *time.Time
	if s.lastRun != nil {
		v := *s.lastRun
		last = &v
	}
	var next *time.Time
	if !s.nextRun.IsZero() {
		v := s.nextRun
		next = &v
	}
	return last, next, s.running.Load()
}

// Wait дожидается завершения запущенного пакета
func (s *BatchScheduler) Wait() {
	s.wg.Wait()
}

func (s *BatchScheduler) Stop() {
	logger.Info().Msg("Stopping batch scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.wg.Wait()
	logger.Info().Msg("Batch scheduler stopped")
}

func (s *BatchScheduler) GetEntries() []cron.Entry {
	return s.cron.Entries()
}
