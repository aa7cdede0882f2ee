package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"
	"pricewatch/engine-service/internal/app/engine/repository/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockBatchRunner мок для BatchRunner
type MockBatchRunner struct {
	mock.Mock
}

func (m *MockBatchRunner) RunRecommendationBatch(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockBatchRunner) EvaluateInventory(ctx context.Context) []entity.Alert {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]entity.Alert)
}

var (
	schedulerNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	threeAM      = ClockTime{Hour: 3}
)

func fixedNow() time.Time { return schedulerNow }

// ===================== ScheduleNextRun Tests =====================

func TestScheduleNextRun(t *testing.T) {
	last := schedulerNow.Add(-2 * time.Hour)

	cases := []struct {
		name     string
		now      time.Time
		lastRun  *time.Time
		expected time.Time
	}{
		{
			name:     "before run time today",
			now:      time.Date(2026, 5, 10, 1, 30, 0, 0, time.UTC),
			expected: time.Date(2026, 5, 10, 3, 0, 0, 0, time.UTC),
		},
		{
			name:     "after run time today",
			now:      schedulerNow,
			expected: time.Date(2026, 5, 11, 3, 0, 0, 0, time.UTC),
		},
		{
			name:     "exactly at run time",
			now:      time.Date(2026, 5, 10, 3, 0, 0, 0, time.UTC),
			expected: time.Date(2026, 5, 11, 3, 0, 0, 0, time.UTC),
		},
		{
			name:     "after previous run",
			now:      schedulerNow,
			lastRun:  &last,
			expected: last.Add(24 * time.Hour),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ScheduleNextRun(tc.now, tc.lastRun, threeAM, 24*time.Hour))
		})
	}
}

func TestParseClockTime(t *testing.T) {
	ct, err := ParseClockTime("03:00")
	require.NoError(t, err)
	assert.Equal(t, ClockTime{Hour: 3}, ct)
	assert.Equal(t, "03:00", ct.String())

	_, err = ParseClockTime("25:99")
	assert.Error(t, err)
}

// ===================== Start Tests =====================

func TestBatchScheduler_Start_NotDue(t *testing.T) {
	// Arrange
	runner := new(MockBatchRunner)
	state := new(mocks.MockBatchStateRepository)
	scheduler := NewBatchScheduler(runner, state, threeAM, 24*time.Hour, fixedNow)

	state.On("LastRun", mock.Anything).Return(nil, nil)
	runner.On("EvaluateInventory", mock.Anything).Return(nil)

	// Act
	err := scheduler.Start(context.Background(), "@every 1h")
	defer scheduler.Stop()

	// Assert
	require.NoError(t, err)
	assert.Len(t, scheduler.GetEntries(), 1)
	runner.AssertNumberOfCalls(t, "EvaluateInventory", 1)
	runner.AssertNotCalled(t, "RunRecommendationBatch", mock.Anything)

	last, next, running := scheduler.ScheduleStatus(context.Background())
	assert.Nil(t, last)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 5, 11, 3, 0, 0, 0, time.UTC), *next)
	assert.False(t, running)
}

func TestBatchScheduler_Start_DueRunsBatch(t *testing.T) {
	// Arrange: прошлый прогон был 25 часов назад
	runner := new(MockBatchRunner)
	state := new(mocks.MockBatchStateRepository)
	scheduler := NewBatchScheduler(runner, state, threeAM, 24*time.Hour, fixedNow)

	previous := schedulerNow.Add(-25 * time.Hour)
	state.On("LastRun", mock.Anything).Return(&previous, nil)
	state.On("SaveLastRun", mock.Anything, schedulerNow).Return(nil)
	runner.On("EvaluateInventory", mock.Anything).Return(nil)
	runner.On("RunRecommendationBatch", mock.Anything).Return(nil)

	// Act
	err := scheduler.Start(context.Background(), "@every 1h")
	require.NoError(t, err)
	scheduler.Wait()
	scheduler.Stop()

	// Assert
	runner.AssertNumberOfCalls(t, "RunRecommendationBatch", 1)
	state.AssertExpectations(t)

	last, next, running := scheduler.ScheduleStatus(context.Background())
	require.NotNil(t, last)
	assert.Equal(t, schedulerNow, *last)
	assert.Equal(t, schedulerNow.Add(24*time.Hour), *next)
	assert.False(t, running)
}

func TestBatchScheduler_LastRunPersistedAfterCompletion(t *testing.T) {
	// Arrange
	runner := new(MockBatchRunner)
	state := new(mocks.MockBatchStateRepository)
	scheduler := NewBatchScheduler(runner, state, threeAM, 24*time.Hour, fixedNow)

	previous := schedulerNow.Add(-25 * time.Hour)
	entered := make(chan struct{})
	release := make(chan struct{})
	state.On("LastRun", mock.Anything).Return(&previous, nil)
	state.On("SaveLastRun", mock.Anything, schedulerNow).Return(nil)
	runner.On("EvaluateInventory", mock.Anything).Return(nil)
	runner.On("RunRecommendationBatch", mock.Anything).Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return(nil)

	// Act
	require.NoError(t, scheduler.Start(context.Background(), "@every 1h"))
	<-entered

	// Assert: пока пакет идет, прогон не записан
	state.AssertNotCalled(t, "SaveLastRun", mock.Anything, mock.Anything)
	last, _, running := scheduler.ScheduleStatus(context.Background())
	assert.Equal(t, previous, *last)
	assert.True(t, running)

	close(release)
	scheduler.Wait()
	scheduler.Stop()

	state.AssertCalled(t, "SaveLastRun", mock.Anything, schedulerNow)
	last, _, _ = scheduler.ScheduleStatus(context.Background())
	assert.Equal(t, schedulerNow, *last)
}

func TestBatchScheduler_Start_InvalidSchedule(t *testing.T) {
	runner := new(MockBatchRunner)
	state := new(mocks.MockBatchStateRepository)
	scheduler := NewBatchScheduler(runner, state, threeAM, 24*time.Hour, fixedNow)
	state.On("LastRun", mock.Anything).Return(nil, nil)

	err := scheduler.Start(context.Background(), "not a schedule")

	assert.Error(t, err)
}

func TestBatchScheduler_Start_LastRunError(t *testing.T) {
	runner := new(MockBatchRunner)
	state := new(mocks.MockBatchStateRepository)
	scheduler := NewBatchScheduler(runner, state, threeAM, 24*time.Hour, fixedNow)
	state.On("LastRun", mock.Anything).Return(nil, errors.New("redis down"))
	runner.On("EvaluateInventory", mock.Anything).Return(nil)

	err := scheduler.Start(context.Background(), "@every 1h")
	defer scheduler.Stop()

	require.NoError(t, err)
	_, next, _ := scheduler.ScheduleStatus(context.Background())
	assert.Equal(t, time.Date(2026, 5, 11, 3, 0, 0, 0, time.UTC), *next)
}

// ===================== Tick Tests =====================

func TestBatchScheduler_Tick_OneBatchAtATime(t *testing.T) {
	// Arrange
	runner := new(MockBatchRunner)
	state := new(mocks.MockBatchStateRepository)
	scheduler := NewBatchScheduler(runner, state, threeAM, 24*time.Hour, fixedNow)

	release := make(chan struct{})
	runner.On("EvaluateInventory", mock.Anything).Return(nil)
	runner.On("RunRecommendationBatch", mock.Anything).Run(func(mock.Arguments) {
		<-release
	}).Return(nil)
	state.On("SaveLastRun", mock.Anything, schedulerNow).Return(nil)

	// Act
	first := scheduler.Tick(context.Background())
	second := scheduler.Tick(context.Background())
	_, _, runningDuring := scheduler.ScheduleStatus(context.Background())
	close(release)
	scheduler.Wait()
	third := scheduler.Tick(context.Background())

	// Assert
	assert.True(t, first)
	assert.False(t, second)
	assert.True(t, runningDuring)
	assert.False(t, third)
	runner.AssertNumberOfCalls(t, "RunRecommendationBatch", 1)
	runner.AssertNumberOfCalls(t, "EvaluateInventory", 3)
}

func TestBatchScheduler_Tick_FailedBatchStillAdvances(t *testing.T) {
	runner := new(MockBatchRunner)
	state := new(mocks.MockBatchStateRepository)
	scheduler := NewBatchScheduler(runner, state, threeAM, 24*time.Hour, fixedNow)

	runner.On("EvaluateInventory", mock.Anything).Return(nil)
	runner.On("RunRecommendationBatch", mock.Anything).Return(errors.New("product:p1: network error"))
	state.On("SaveLastRun", mock.Anything, schedulerNow).Return(errors.New("redis down"))

	assert.True(t, scheduler.Tick(context.Background()))
	scheduler.Wait()

	last, next, _ := scheduler.ScheduleStatus(context.Background())
	require.NotNil(t, last)
	assert.Equal(t, schedulerNow.Add(24*time.Hour), *next)
	state.AssertExpectations(t)
}
